package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

const (
	CollectionAvailability = "availability"
	CollectionAppointments = "appointments"
)

const (
	// DefaultDayStart и DefaultDayEnd задают рабочее окно, если часы не указаны
	DefaultDayStart = "10:00"
	DefaultDayEnd   = "17:00"

	// BufferMinutes время на уборку после каждой записи
	BufferMinutes = 30

	// SlotIntervalMinutes шаг генерации слотов из рабочих часов
	SlotIntervalMinutes = 30

	// DefaultListingDuration длительность по умолчанию при выдаче свободных слотов
	DefaultListingDuration = 30

	// DefaultBookingDuration длительность записи без привязки к услуге
	DefaultBookingDuration = 60

	// MaxDurationMinutes верхняя граница длительности одной записи
	MaxDurationMinutes = 480

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128
)

const (
	TaskStatusPending   = "pending"
	TaskStatusRetry     = "retry"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)
