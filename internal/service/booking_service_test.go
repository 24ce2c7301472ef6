package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/events"
	"hairstudio/internal/models"
	"hairstudio/internal/repository"
	"hairstudio/internal/slots"
	"hairstudio/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDate = "2025-06-10"

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendBookingConfirmation(ctx context.Context, a *models.Appointment) {
	m.Called(ctx, a)
}

func (m *mockNotifier) SendAdminNotification(ctx context.Context, a *models.Appointment) {
	m.Called(ctx, a)
}

func (m *mockNotifier) SendCancellation(ctx context.Context, a *models.Appointment, isCustomer bool) {
	m.Called(ctx, a, isCustomer)
}

func (m *mockNotifier) SendChangeNotice(ctx context.Context, a *models.Appointment, oldDate, oldTime string) {
	m.Called(ctx, a, oldDate, oldTime)
}

type fixture struct {
	svc          *BookingService
	notifier     *mockNotifier
	appointments *repository.AppointmentRepository
	availability *repository.AvailabilityRepository
	events       []string
	mu           sync.Mutex
}

func (f *fixture) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()

	f := &fixture{
		notifier:     new(mockNotifier),
		appointments: repository.NewAppointmentRepository(store),
		availability: repository.NewAvailabilityRepository(store),
	}
	f.notifier.On("SendBookingConfirmation", mock.Anything, mock.Anything).Maybe()
	f.notifier.On("SendAdminNotification", mock.Anything, mock.Anything).Maybe()
	f.notifier.On("SendCancellation", mock.Anything, mock.Anything, mock.Anything).Maybe()
	f.notifier.On("SendChangeNotice", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()

	bus := events.NewEventBus()
	bus.SubscribeAll(func(e *events.Event) error {
		f.mu.Lock()
		f.events = append(f.events, e.Type)
		f.mu.Unlock()
		return nil
	})

	catalog := NewCatalogService([]models.Service{
		{ID: "color", Name: "Coloring", Duration: 120, IsActive: true},
		{ID: "cut", Name: "Haircut", Duration: 45, IsActive: true},
	}, &logger)

	f.svc = NewBookingService(BookingDeps{
		Availability: f.availability,
		Appointments: f.appointments,
		Locker:       repository.NewMemoryDateLocker(),
		Notifier:     f.notifier,
		EventBus:     bus,
		Catalog:      catalog,
	}, &logger)
	f.svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) openDay(t *testing.T, date, start, end string) {
	t.Helper()
	require.NoError(t, f.svc.SetWorkingDay(context.Background(), date, true, &models.WorkingHours{Start: start, End: end}, nil))
}

func (f *fixture) book(t *testing.T, date, at string, duration int) string {
	t.Helper()
	id, err := f.svc.CreateBooking(context.Background(), models.BookingInput{
		CustomerName:  "Anna",
		CustomerEmail: "anna@example.com",
		Date:          date,
		Time:          at,
		Duration:      duration,
	}, false)
	require.NoError(t, err)
	return id
}

func TestBookingService_Scenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t, testDate, "10:00", "12:00")

	// 1: end-of-day check is inclusive
	got, err := f.svc.ComputeAvailableSlots(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, got)

	// 2: a 30 minute appointment at 10:00 blocks both slots for 60 minutes
	id := f.book(t, testDate, "10:00", 30)
	got, err = f.svc.ComputeAvailableSlots(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	status, _, err := f.svc.DayStatus(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Equal(t, slots.DayFullyBooked, status)

	// 3: closing a day with a confirmed appointment fails with the count
	err = f.svc.SetWorkingDay(ctx, testDate, false, nil, nil)
	var dayErr *domain.DayHasAppointmentsError
	require.True(t, errors.As(err, &dayErr))
	assert.Equal(t, 1, dayErr.Count)
	assert.ErrorIs(t, err, domain.ErrDayHasAppointments)

	avail, err := f.availability.Get(ctx, testDate)
	require.NoError(t, err)
	assert.True(t, avail.IsWorkingDay, "failed close must not change the record")

	// 4: cancel, then closing succeeds and the day reports closed
	require.NoError(t, f.svc.CancelBooking(ctx, id, false))
	require.NoError(t, f.svc.SetWorkingDay(ctx, testDate, false, nil, nil))

	got, err = f.svc.ComputeAvailableSlots(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Empty(t, got)
	status, _, err = f.svc.DayStatus(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Equal(t, slots.DayClosed, status)

	avail, err = f.availability.Get(ctx, testDate)
	require.NoError(t, err)
	assert.False(t, avail.IsWorkingDay)
	assert.Equal(t, "12:00", avail.WorkingHours.End, "closing keeps the previous hours")

	// 5: booking on a date without any record
	_, err = f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Olga", Date: "2025-06-11", Time: "10:00", Duration: 60}, false)
	assert.ErrorIs(t, err, domain.ErrDateClosed)
}

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("StoresConfirmedWithNulls", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")

		id, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "  Anna ", Date: testDate, Time: "11:00"}, false)
		require.NoError(t, err)

		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Anna", appt.CustomerName)
		assert.Equal(t, models.StatusConfirmed, appt.Status)
		assert.Equal(t, models.DefaultBookingDuration, appt.Duration)
		assert.Nil(t, appt.CustomerEmail)
		assert.Nil(t, appt.ServiceID)
		assert.False(t, appt.CreatedAt.IsZero())
		assert.Equal(t, []string{events.EventWorkingDaySet, events.EventAppointmentCreated}, f.published())
	})

	t.Run("SlotUnavailable", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "12:00")

		_, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Anna", Date: testDate, Time: "11:00", Duration: 60}, false)
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable, "11:00+60+30 passes closing time")

		f.book(t, testDate, "10:00", 30)
		_, err = f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Olga", Date: testDate, Time: "10:30", Duration: 30}, false)
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	})

	t.Run("TimeOutsideGeneratedSlots", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")

		_, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Anna", Date: testDate, Time: "10:15", Duration: 30}, false)
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	})

	t.Run("SkipAvailabilityCheck", func(t *testing.T) {
		f := newFixture(t)

		id, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Block", Date: testDate, Time: "10:00", Duration: 60}, true)
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		f.notifier.AssertNotCalled(t, "SendBookingConfirmation", mock.Anything, mock.Anything)
		f.notifier.AssertNotCalled(t, "SendAdminNotification", mock.Anything, mock.Anything)
	})

	t.Run("ServiceBinding", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")

		id, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Anna", Date: testDate, Time: "10:00", ServiceID: "color"}, false)
		require.NoError(t, err)

		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 120, appt.Duration)
		assert.Equal(t, "Coloring", models.StringValue(appt.ServiceName))

		_, err = f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Anna", Date: testDate, Time: "14:00", ServiceID: "massage"}, false)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")

		tests := []struct {
			name  string
			input models.BookingInput
			want  error
		}{
			{"missing name", models.BookingInput{CustomerName: "  ", Date: testDate, Time: "10:00"}, domain.ErrInvalidInput},
			{"bad email", models.BookingInput{CustomerName: "A", CustomerEmail: "nope", Date: testDate, Time: "10:00"}, domain.ErrInvalidInput},
			{"too long", models.BookingInput{CustomerName: "A", Date: testDate, Time: "10:00", Duration: 600}, domain.ErrInvalidInput},
			{"bad date", models.BookingInput{CustomerName: "A", Date: "10/06/2025", Time: "10:00"}, domain.ErrFormat},
			{"bad time", models.BookingInput{CustomerName: "A", Date: testDate, Time: "25:00"}, domain.ErrFormat},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.CreateBooking(ctx, tt.input, false)
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")

		f.book(t, testDate, "10:00", 60)
		f.notifier.AssertNumberOfCalls(t, "SendBookingConfirmation", 1)
		f.notifier.AssertNumberOfCalls(t, "SendAdminNotification", 1)

		_, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Walk-in", CustomerPhone: "+100", Date: testDate, Time: "14:00"}, false)
		require.NoError(t, err)
		f.notifier.AssertNumberOfCalls(t, "SendBookingConfirmation", 1)
		f.notifier.AssertNumberOfCalls(t, "SendAdminNotification", 2)
	})
}

func TestBookingService_NoDoubleBookingUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openDay(t, testDate, "10:00", "17:00")

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBooking(ctx, models.BookingInput{CustomerName: "Racer", Date: testDate, Time: "12:00", Duration: 60}, false)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrSlotUnavailable):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(19), rejected.Load())

	booked, err := f.appointments.ListByDate(ctx, testDate, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestBookingService_CancelBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDay(t, testDate, "10:00", "17:00")
	id := f.book(t, testDate, "10:00", 60)

	require.NoError(t, f.svc.CancelBooking(ctx, id, true))
	f.notifier.AssertCalled(t, "SendCancellation", mock.Anything, mock.Anything, true)
	f.notifier.AssertCalled(t, "SendCancellation", mock.Anything, mock.Anything, false)

	appt, err := f.appointments.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, appt.Status)

	// the slot is free again
	got, err := f.svc.ComputeAvailableSlots(ctx, testDate, 60)
	require.NoError(t, err)
	assert.Contains(t, got, "10:00")

	t.Run("SecondCancelIsRejected", func(t *testing.T) {
		err := f.svc.CancelBooking(ctx, id, false)
		assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)

		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, appt.Status)
	})

	t.Run("NotFound", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.CancelBooking(ctx, "missing", false), domain.ErrNotFound)
	})

	t.Run("CancelledCannotBeMoved", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.MoveBooking(ctx, id, testDate, "11:00"), domain.ErrAlreadyCancelled)
	})
}

func TestBookingService_MoveBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("SameTimeSucceeds", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "12:00")
		id := f.book(t, testDate, "10:00", 60)

		require.NoError(t, f.svc.MoveBooking(ctx, id, testDate, "10:00"))
		f.notifier.AssertNotCalled(t, "SendChangeNotice", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ShiftWithinOwnInterval", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "12:00")
		id := f.book(t, testDate, "10:00", 60)

		// 10:30 overlaps the appointment's own 10:00 interval only
		require.NoError(t, f.svc.MoveBooking(ctx, id, testDate, "10:30"))
		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "10:30", appt.Time)
		f.notifier.AssertCalled(t, "SendChangeNotice", mock.Anything, mock.Anything, testDate, "10:00")
		assert.Contains(t, f.published(), events.EventAppointmentMoved)
	})

	t.Run("ConflictWithOther", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")
		first := f.book(t, testDate, "10:00", 60)
		f.book(t, testDate, "13:00", 60)

		err := f.svc.MoveBooking(ctx, first, testDate, "12:30")
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)

		appt, err := f.appointments.Get(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "10:00", appt.Time)
	})

	t.Run("AcrossDates", func(t *testing.T) {
		f := newFixture(t)
		f.openDay(t, testDate, "10:00", "17:00")
		f.openDay(t, "2025-06-11", "10:00", "17:00")
		id := f.book(t, testDate, "10:00", 60)

		require.NoError(t, f.svc.MoveBooking(ctx, id, "2025-06-11", "15:00"))
		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "2025-06-11", appt.Date)

		assert.ErrorIs(t, f.svc.MoveBooking(ctx, id, "2025-06-12", "10:00"), domain.ErrDateClosed)
		assert.ErrorIs(t, f.svc.MoveBooking(ctx, id, "2025-13-01", "10:00"), domain.ErrFormat)
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.svc.MoveBooking(ctx, "missing", testDate, "10:00"), domain.ErrNotFound)
	})
}

func TestBookingService_UpdateBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDay(t, testDate, "10:00", "17:00")
	id := f.book(t, testDate, "10:00", 60)
	f.book(t, testDate, "13:00", 60)

	t.Run("ClearOptionalField", func(t *testing.T) {
		require.NoError(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{
			CustomerEmail: models.ClearString(),
			CustomerPhone: models.SetString("+7 999 000 11 22"),
		}))

		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, appt.CustomerEmail)
		assert.Equal(t, "+7 999 000 11 22", models.StringValue(appt.CustomerPhone))
		assert.Equal(t, "Anna", appt.CustomerName, "omitted fields stay untouched")
	})

	t.Run("DurationConflict", func(t *testing.T) {
		long := 180
		err := f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{Duration: &long})
		assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	})

	t.Run("ServiceChangeUsesCatalogDuration", func(t *testing.T) {
		require.NoError(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{ServiceID: models.SetString("cut")}))
		appt, err := f.appointments.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 45, appt.Duration)
		assert.Equal(t, "Haircut", models.StringValue(appt.ServiceName))
	})

	t.Run("InvalidPatch", func(t *testing.T) {
		blank := " "
		assert.ErrorIs(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{CustomerName: &blank}), domain.ErrInvalidInput)
		assert.ErrorIs(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{CustomerEmail: models.SetString("x")}), domain.ErrInvalidInput)
		zero := 0
		assert.ErrorIs(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{Duration: &zero}), domain.ErrInvalidInput)
	})

	t.Run("EmptyPatch", func(t *testing.T) {
		assert.NoError(t, f.svc.UpdateBooking(ctx, id, models.AppointmentPatch{}))
		assert.ErrorIs(t, f.svc.UpdateBooking(ctx, "missing", models.AppointmentPatch{}), domain.ErrNotFound)
	})
}

func TestBookingService_SetWorkingDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("DefaultsHours", func(t *testing.T) {
		require.NoError(t, f.svc.SetWorkingDay(ctx, testDate, true, nil, nil))
		avail, err := f.availability.Get(ctx, testDate)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultWorkingHours(), *avail.WorkingHours)
	})

	t.Run("CustomSlotsNormalized", func(t *testing.T) {
		require.NoError(t, f.svc.SetWorkingDay(ctx, testDate, true, nil, []string{"15:00", "11:00", "15:00"}))
		avail, err := f.availability.Get(ctx, testDate)
		require.NoError(t, err)
		assert.Equal(t, []string{"11:00", "15:00"}, avail.CustomTimeSlots)

		got, err := f.svc.ComputeAvailableSlots(ctx, testDate, 60)
		require.NoError(t, err)
		assert.Equal(t, []string{"11:00", "15:00"}, got)
	})

	t.Run("CloseEmptyDay", func(t *testing.T) {
		require.NoError(t, f.svc.SetWorkingDay(ctx, "2025-06-20", false, nil, nil))
		avail, err := f.availability.Get(ctx, "2025-06-20")
		require.NoError(t, err)
		assert.False(t, avail.IsWorkingDay)
	})

	t.Run("CloseKeepsScheduleReopenReplacesIt", func(t *testing.T) {
		const date = "2025-07-01"
		hours := &models.WorkingHours{Start: "09:00", End: "13:00"}
		require.NoError(t, f.svc.SetWorkingDay(ctx, date, true, hours, []string{"09:00", "11:00"}))

		require.NoError(t, f.svc.SetWorkingDay(ctx, date, false, nil, nil))
		avail, err := f.availability.Get(ctx, date)
		require.NoError(t, err)
		assert.False(t, avail.IsWorkingDay)
		assert.Equal(t, *hours, *avail.WorkingHours)
		assert.Equal(t, []string{"09:00", "11:00"}, avail.CustomTimeSlots)

		// открытие задает расписание заново
		require.NoError(t, f.svc.SetWorkingDay(ctx, date, true, nil, nil))
		avail, err = f.availability.Get(ctx, date)
		require.NoError(t, err)
		assert.True(t, avail.IsWorkingDay)
		assert.Equal(t, models.DefaultWorkingHours(), *avail.WorkingHours)
		assert.Empty(t, avail.CustomTimeSlots)
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.ErrorIs(t, f.svc.SetWorkingDay(ctx, "2025/06/10", true, nil, nil), domain.ErrFormat)
		assert.ErrorIs(t, f.svc.SetWorkingDay(ctx, testDate, true, &models.WorkingHours{Start: "17:00", End: "10:00"}, nil), domain.ErrInvalidInput)
		assert.ErrorIs(t, f.svc.SetWorkingDay(ctx, testDate, true, nil, []string{"9am"}), domain.ErrFormat)
	})

	t.Run("ListAvailability", func(t *testing.T) {
		list, err := f.svc.ListAvailability(ctx, "2025-06-01", "2025-06-30")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, testDate, list[0].Date)

		_, err = f.svc.ListAvailability(ctx, "2025-06-30", "2025-06-01")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestBookingService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openDay(t, testDate, "10:00", "17:00")
	first := f.book(t, testDate, "14:00", 60)
	second := f.book(t, testDate, "10:00", 60)
	require.NoError(t, f.svc.CancelBooking(ctx, second, false))

	all, err := f.svc.ListAppointments(ctx, testDate, testDate, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "10:00", all[0].Time)

	confirmed, err := f.svc.ListAppointments(ctx, "", "", models.StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, first, confirmed[0].ID)

	_, err = f.svc.ListAppointments(ctx, "", "", "pending")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, f.svc.DeleteAppointment(ctx, second))
	_, err = f.svc.GetAppointment(ctx, second)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, f.published(), events.EventAppointmentDeleted)

	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, second), domain.ErrNotFound)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestBookingService_LockFailurePropagates(t *testing.T) {
	logger := zerolog.Nop()
	store := repository.NewMemoryStore()
	svc := NewBookingService(BookingDeps{
		Availability: repository.NewAvailabilityRepository(store),
		Appointments: repository.NewAppointmentRepository(store),
		Locker:       failingLocker{},
	}, &logger)

	err := svc.SetWorkingDay(context.Background(), testDate, true, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInternal, domain.ErrorCode(err))
}

// stalledOutbox never finishes CreateTask until released.
type stalledOutbox struct {
	release chan struct{}
	calls   atomic.Int32
}

func (s *stalledOutbox) CreateTask(ctx context.Context, task *models.OutboxTask) error {
	s.calls.Add(1)
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stalledOutbox) GetTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	return nil, domain.ErrNotFound
}

func (s *stalledOutbox) GetPendingTasks(ctx context.Context, limit int) ([]models.OutboxTask, error) {
	return nil, nil
}

func (s *stalledOutbox) UpdateTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	return nil
}

type nopSheets struct{}

func (nopSheets) UpsertAppointment(ctx context.Context, a *models.Appointment) error { return nil }
func (nopSheets) RemoveAppointment(ctx context.Context, id string) error { return nil }

func TestBookingService_StalledNotificationsDoNotBlock(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	appointments := repository.NewAppointmentRepository(store)
	availability := repository.NewAvailabilityRepository(store)

	outbox := &stalledOutbox{release: make(chan struct{})}
	notifier := worker.NewOutboxWorker(worker.Deps{
		Store:        outbox,
		Appointments: appointments,
		Sheets:       nopSheets{},
	}, worker.RetryPolicy{}, 0, &logger)
	t.Cleanup(func() {
		close(outbox.release)
		notifier.Wait()
	})

	bus := events.NewEventBus()
	notifier.SubscribeSheetMirror(bus)

	svc := NewBookingService(BookingDeps{
		Availability: availability,
		Appointments: appointments,
		Locker:       repository.NewMemoryDateLocker(),
		Notifier:     notifier,
		EventBus:     bus,
	}, &logger)
	require.NoError(t, svc.SetWorkingDay(context.Background(), testDate, true, &models.WorkingHours{Start: "10:00", End: "17:00"}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	input := models.BookingInput{CustomerName: "Anna", CustomerEmail: "anna@example.com", Date: testDate, Time: "10:00", Duration: 60}
	started := time.Now()
	id, err := svc.CreateBooking(ctx, input, false)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	// дата не остается заблокированной, пока очередь стоит
	input.Time = "14:00"
	_, err = svc.CreateBooking(ctx, input, false)
	require.NoError(t, err)
	require.NoError(t, svc.CancelBooking(ctx, id, true))
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	assert.Eventually(t, func() bool { return outbox.calls.Load() >= 3 }, time.Second, 10*time.Millisecond)

	stored, err := appointments.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)
}
