package domain

import (
	"context"
	"time"

	"hairstudio/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DocumentStore is the generic persistence collaborator. Get, Update and Delete
// return ErrNotFound for unknown ids; Insert assigns an id when the document has none.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*models.Document, error)
	List(ctx context.Context, collection string, filter models.Filter) ([]*models.Document, error)
	Insert(ctx context.Context, collection string, doc *models.Document) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

type AvailabilityStore interface {
	Get(ctx context.Context, date string) (*models.Availability, error)
	ListRange(ctx context.Context, from, to string) ([]*models.Availability, error)
	Upsert(ctx context.Context, availability *models.Availability) error
}

type AppointmentStore interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	ListByDate(ctx context.Context, date, status string) ([]*models.Appointment, error)
	ListRange(ctx context.Context, from, to, status string) ([]*models.Appointment, error)
	Insert(ctx context.Context, appointment *models.Appointment) (string, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	CountConfirmed(ctx context.Context, date string) (int, error)
}

// DateLocker serializes writes touching one calendar date.
type DateLocker interface {
	Lock(ctx context.Context, date string) (func(), error)
}

// Notifier dispatches best-effort notices. Implementations must not block on
// delivery and report failures only through their own logs.
type Notifier interface {
	SendBookingConfirmation(ctx context.Context, appointment *models.Appointment)
	SendAdminNotification(ctx context.Context, appointment *models.Appointment)
	SendCancellation(ctx context.Context, appointment *models.Appointment, isCustomer bool)
	SendChangeNotice(ctx context.Context, appointment *models.Appointment, oldDate, oldTime string)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Catalog interface {
	GetService(id string) (*models.Service, bool)
	ActiveServices() []*models.Service
}

type OutboxStore interface {
	CreateTask(ctx context.Context, task *models.OutboxTask) error
	GetTask(ctx context.Context, id int64) (*models.OutboxTask, error)
	GetPendingTasks(ctx context.Context, limit int) ([]models.OutboxTask, error)
	UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appointment *models.Appointment) error
	RemoveAppointment(ctx context.Context, appointmentID string) error
}

// CalendarService is the operation surface exposed to the HTTP and gRPC layers.
type CalendarService interface {
	ComputeAvailableSlots(ctx context.Context, date string, duration int) ([]string, error)
	DayStatus(ctx context.Context, date string, duration int) (string, []string, error)
	ListAvailability(ctx context.Context, from, to string) ([]*models.Availability, error)
	ListAppointments(ctx context.Context, from, to, status string) ([]*models.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	CreateBooking(ctx context.Context, input models.BookingInput, skipAvailabilityCheck bool) (string, error)
	CancelBooking(ctx context.Context, id string, byCustomer bool) error
	UpdateBooking(ctx context.Context, id string, patch models.AppointmentPatch) error
	MoveBooking(ctx context.Context, id, date, timeOfDay string) error
	SetWorkingDay(ctx context.Context, date string, isWorkingDay bool, hours *models.WorkingHours, customSlots []string) error
	DeleteAppointment(ctx context.Context, id string) error
}
