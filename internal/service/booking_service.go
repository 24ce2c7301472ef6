package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/events"
	"hairstudio/internal/metrics"
	"hairstudio/internal/models"
	"hairstudio/internal/slots"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	opCreate     = "create"
	opCancel     = "cancel"
	opUpdate     = "update"
	opMove       = "move"
	opDelete     = "delete"
	opWorkingDay = "set_working_day"

	maxLockAttempts = 3
)

// BookingDeps groups the collaborators of BookingService. Notifier, EventBus,
// Catalog and Locker are optional.
type BookingDeps struct {
	Availability domain.AvailabilityStore
	Appointments domain.AppointmentStore
	Locker       domain.DateLocker
	Notifier     domain.Notifier
	EventBus     domain.EventPublisher
	Catalog      domain.Catalog
	Allocator    *slots.Allocator
}

// BookingService owns every read-validate-write sequence on appointments and availability.
type BookingService struct {
	availability    domain.AvailabilityStore
	appointments    domain.AppointmentStore
	locker          domain.DateLocker
	notifier        domain.Notifier
	eventBus        domain.EventPublisher
	catalog         domain.Catalog
	allocator       *slots.Allocator
	validate        *validator.Validate
	bookingDuration int
	now             func() time.Time
	logger          *zerolog.Logger
}

func NewBookingService(deps BookingDeps, logger *zerolog.Logger) *BookingService {
	allocator := deps.Allocator
	if allocator == nil {
		allocator = slots.NewAllocator()
	}
	locker := deps.Locker
	if locker == nil {
		locker = noopLocker{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	bookingDuration := allocator.BookedDuration
	if bookingDuration <= 0 {
		bookingDuration = models.DefaultBookingDuration
	}

	return &BookingService{
		availability:    deps.Availability,
		appointments:    deps.Appointments,
		locker:          locker,
		notifier:        notifier,
		eventBus:        deps.EventBus,
		catalog:         deps.Catalog,
		allocator:       allocator,
		validate:        validator.New(),
		bookingDuration: bookingDuration,
		now:             time.Now,
		logger:          logger,
	}
}

func (s *BookingService) ComputeAvailableSlots(ctx context.Context, date string, duration int) ([]string, error) {
	_, result, err := s.DayStatus(ctx, date, duration)
	return result, err
}

// DayStatus separates a closed date from a fully booked one.
func (s *BookingService) DayStatus(ctx context.Context, date string, duration int) (string, []string, error) {
	if err := slots.ValidateDate(date); err != nil {
		return "", nil, err
	}
	if duration < 0 || duration > models.MaxDurationMinutes {
		return "", nil, domain.InvalidInput("duration must be between 1 and %d minutes", models.MaxDurationMinutes)
	}

	req, err := s.slotRequest(ctx, date, duration, "")
	if err != nil {
		return "", nil, err
	}
	return s.allocator.Status(req)
}

func (s *BookingService) ListAvailability(ctx context.Context, from, to string) ([]*models.Availability, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.availability.ListRange(ctx, from, to)
}

func (s *BookingService) ListAppointments(ctx context.Context, from, to, status string) ([]*models.Appointment, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	if status != "" && status != models.StatusConfirmed && status != models.StatusCancelled {
		return nil, domain.InvalidInput("unknown status %q", status)
	}
	return s.appointments.ListRange(ctx, from, to, status)
}

func (s *BookingService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.appointments.Get(ctx, id)
}

// CreateBooking validates the requested slot under the date lock and stores a
// confirmed appointment. skipAvailabilityCheck is reserved for admin callers.
func (s *BookingService) CreateBooking(ctx context.Context, input models.BookingInput, skipAvailabilityCheck bool) (id string, err error) {
	defer func() { s.observe(opCreate, input.Date, err) }()

	appt, err := s.newAppointment(input)
	if err != nil {
		return "", err
	}

	id, err = s.insertChecked(ctx, appt, skipAvailabilityCheck)
	if err != nil {
		return "", err
	}
	appt.ID = id

	// побочные эффекты уже после снятия блокировки даты
	s.publishAppointment(events.EventAppointmentCreated, appt, events.AppointmentEventPayload{})
	if appt.CustomerEmail != nil {
		s.notifier.SendBookingConfirmation(ctx, appt)
	}
	if !appt.IsBlock() {
		s.notifier.SendAdminNotification(ctx, appt)
	}

	s.logger.Info().Str("appointment_id", id).Str("date", appt.Date).Str("time", appt.Time).Int("duration", appt.Duration).Msg("appointment created")
	return id, nil
}

func (s *BookingService) insertChecked(ctx context.Context, appt *models.Appointment, skipAvailabilityCheck bool) (string, error) {
	unlock, err := s.lockDates(ctx, appt.Date)
	if err != nil {
		return "", err
	}
	defer unlock()

	if !skipAvailabilityCheck {
		if err := s.checkSlot(ctx, appt, ""); err != nil {
			return "", err
		}
	}

	now := s.now()
	appt.Status = models.StatusConfirmed
	appt.CreatedAt = now
	appt.UpdatedAt = now

	return s.appointments.Insert(ctx, appt)
}

// CancelBooking marks the appointment cancelled. Cancelling twice returns domain.ErrAlreadyCancelled.
func (s *BookingService) CancelBooking(ctx context.Context, id string, byCustomer bool) (err error) {
	defer func() { s.observe(opCancel, "", err) }()

	var cancelled *models.Appointment
	err = s.withAppointment(ctx, id, nil, func(current *models.Appointment) error {
		if !current.IsConfirmed() {
			return domain.ErrAlreadyCancelled
		}
		now := s.now()
		if err := s.appointments.Update(ctx, id, map[string]any{
			"status":     models.StatusCancelled,
			"updated_at": now,
		}); err != nil {
			return err
		}
		current.Status = models.StatusCancelled
		current.UpdatedAt = now
		cancelled = current
		return nil
	})
	if err != nil {
		return err
	}

	s.publishAppointment(events.EventAppointmentCancelled, cancelled, events.AppointmentEventPayload{ByCustomer: byCustomer})
	if cancelled.CustomerEmail != nil {
		s.notifier.SendCancellation(ctx, cancelled, true)
	}
	if byCustomer {
		s.notifier.SendCancellation(ctx, cancelled, false)
	}

	s.logger.Info().Str("appointment_id", id).Bool("by_customer", byCustomer).Msg("appointment cancelled")
	return nil
}

// UpdateBooking applies a partial update. Changes to date, time or duration are
// re-validated against the slots of the target date, excluding the appointment itself.
func (s *BookingService) UpdateBooking(ctx context.Context, id string, patch models.AppointmentPatch) (err error) {
	defer func() { s.observe(opUpdate, "", err) }()
	return s.update(ctx, id, patch, events.EventAppointmentUpdated)
}

// MoveBooking changes only the date and time of an appointment.
func (s *BookingService) MoveBooking(ctx context.Context, id, date, timeOfDay string) (err error) {
	defer func() { s.observe(opMove, date, err) }()
	return s.update(ctx, id, models.AppointmentPatch{Date: &date, Time: &timeOfDay}, events.EventAppointmentMoved)
}

func (s *BookingService) update(ctx context.Context, id string, patch models.AppointmentPatch, eventType string) error {
	if patch.Date != nil {
		if err := slots.ValidateDate(*patch.Date); err != nil {
			return err
		}
	}
	if patch.Time != nil {
		if err := slots.ValidateTime(*patch.Time); err != nil {
			return err
		}
	}
	if patch.IsEmpty() {
		_, err := s.appointments.Get(ctx, id)
		return err
	}

	target := func(current *models.Appointment) string {
		if patch.Date != nil {
			return *patch.Date
		}
		return current.Date
	}

	var before, after *models.Appointment
	err := s.withAppointment(ctx, id, target, func(current *models.Appointment) error {
		if !current.IsConfirmed() {
			return domain.ErrAlreadyCancelled
		}

		next, err := s.applyPatch(current, patch)
		if err != nil {
			return err
		}

		if next.Date != current.Date || next.Time != current.Time || next.Duration != current.Duration {
			if err := s.checkSlot(ctx, next, current.ID); err != nil {
				return err
			}
		}

		changes, err := diffFields(current, next)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			before, after = current, nil
			return nil
		}

		next.UpdatedAt = s.now()
		changes["updated_at"] = next.UpdatedAt
		if err := s.appointments.Update(ctx, id, changes); err != nil {
			return err
		}
		before, after = current, next
		return nil
	})
	if err != nil || after == nil {
		return err
	}

	rescheduled := before.Date != after.Date || before.Time != after.Time
	if rescheduled {
		eventType = events.EventAppointmentMoved
	}
	s.publishAppointment(eventType, after, events.AppointmentEventPayload{OldDate: before.Date, OldTime: before.Time})
	if rescheduled {
		s.notifier.SendChangeNotice(ctx, after, before.Date, before.Time)
	}

	s.logger.Info().Str("appointment_id", id).Str("date", after.Date).Str("time", after.Time).Msg("appointment updated")
	return nil
}

// SetWorkingDay opens or closes a date. Closing fails with *domain.DayHasAppointmentsError
// while confirmed appointments remain; nothing is cancelled implicitly.
func (s *BookingService) SetWorkingDay(ctx context.Context, date string, isWorkingDay bool, hours *models.WorkingHours, customSlots []string) (err error) {
	defer func() { s.observe(opWorkingDay, date, err) }()

	if err := slots.ValidateDate(date); err != nil {
		return err
	}
	if err := validateHours(hours); err != nil {
		return err
	}
	normalizedSlots, err := normalizeSlots(customSlots)
	if err != nil {
		return err
	}

	record, err := s.upsertWorkingDay(ctx, date, isWorkingDay, hours, customSlots, normalizedSlots)
	if err != nil {
		return err
	}

	s.publish(events.EventWorkingDaySet, events.WorkingDayEventPayload{
		Date:         date,
		IsWorkingDay: isWorkingDay,
		Start:        record.WorkingHours.Start,
		End:          record.WorkingHours.End,
		CustomSlots:  record.CustomTimeSlots,
	})
	s.logger.Info().Str("date", date).Bool("is_working_day", isWorkingDay).Msg("working day set")
	return nil
}

// upsertWorkingDay writes the availability record under the date lock. Opening
// a day replaces its schedule with the supplied one; closing keeps the old one.
func (s *BookingService) upsertWorkingDay(ctx context.Context, date string, isWorkingDay bool, hours *models.WorkingHours, customSlots, normalizedSlots []string) (*models.Availability, error) {
	unlock, err := s.lockDates(ctx, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.availability.Get(ctx, date)
	if err != nil {
		return nil, err
	}

	record := &models.Availability{
		Date:            date,
		IsWorkingDay:    isWorkingDay,
		WorkingHours:    hours,
		CustomTimeSlots: normalizedSlots,
	}

	if !isWorkingDay {
		count, err := s.appointments.CountConfirmed(ctx, date)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, &domain.DayHasAppointmentsError{Date: date, Count: count}
		}
		// closing keeps the previous schedule for history
		if existing != nil {
			if record.WorkingHours == nil {
				record.WorkingHours = existing.WorkingHours
			}
			if customSlots == nil {
				record.CustomTimeSlots = existing.CustomTimeSlots
			}
		}
	}
	if record.WorkingHours == nil {
		defaults := s.allocator.DefaultHours
		record.WorkingHours = &defaults
	}

	if err := s.availability.Upsert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteAppointment removes the record regardless of its status.
func (s *BookingService) DeleteAppointment(ctx context.Context, id string) (err error) {
	defer func() { s.observe(opDelete, "", err) }()

	var deleted *models.Appointment
	err = s.withAppointment(ctx, id, nil, func(current *models.Appointment) error {
		if err := s.appointments.Delete(ctx, id); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	s.publishAppointment(events.EventAppointmentDeleted, deleted, events.AppointmentEventPayload{})
	s.logger.Warn().Str("appointment_id", id).Str("date", deleted.Date).Msg("appointment deleted")
	return nil
}

func (s *BookingService) newAppointment(input models.BookingInput) (*models.Appointment, error) {
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerEmail = strings.TrimSpace(input.CustomerEmail)
	input.CustomerPhone = strings.TrimSpace(input.CustomerPhone)
	input.ServiceID = strings.TrimSpace(input.ServiceID)
	input.ServiceName = strings.TrimSpace(input.ServiceName)

	if err := slots.ValidateDate(input.Date); err != nil {
		return nil, err
	}
	if err := slots.ValidateTime(input.Time); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	appt := &models.Appointment{
		CustomerName:  input.CustomerName,
		CustomerEmail: models.StringPtr(input.CustomerEmail),
		CustomerPhone: models.StringPtr(input.CustomerPhone),
		Date:          input.Date,
		Time:          input.Time,
		ServiceID:     models.StringPtr(input.ServiceID),
		ServiceName:   models.StringPtr(input.ServiceName),
		Duration:      input.Duration,
	}

	if appt.ServiceID != nil {
		svc, err := s.lookupService(*appt.ServiceID)
		if err != nil {
			return nil, err
		}
		if appt.ServiceName == nil {
			appt.ServiceName = models.StringPtr(svc.Name)
		}
		if appt.Duration == 0 {
			appt.Duration = svc.Duration
		}
	}
	if appt.Duration == 0 {
		appt.Duration = s.bookingDuration
	}
	return appt, nil
}

func (s *BookingService) applyPatch(current *models.Appointment, patch models.AppointmentPatch) (*models.Appointment, error) {
	next := *current

	if patch.CustomerName != nil {
		name := strings.TrimSpace(*patch.CustomerName)
		if name == "" {
			return nil, domain.InvalidInput("customer name is required")
		}
		next.CustomerName = name
	}
	if patch.CustomerEmail.Set {
		if patch.CustomerEmail.Value != nil {
			if err := s.validate.Var(*patch.CustomerEmail.Value, "email"); err != nil {
				return nil, domain.InvalidInput("customer email is not valid")
			}
		}
		next.CustomerEmail = patch.CustomerEmail.Value
	}
	if patch.CustomerPhone.Set {
		next.CustomerPhone = patch.CustomerPhone.Value
	}
	if patch.ServiceName.Set {
		next.ServiceName = patch.ServiceName.Value
	}
	if patch.ServiceID.Set {
		next.ServiceID = patch.ServiceID.Value
		if next.ServiceID != nil {
			svc, err := s.lookupService(*next.ServiceID)
			if err != nil {
				return nil, err
			}
			if !patch.ServiceName.Set {
				next.ServiceName = models.StringPtr(svc.Name)
			}
			if patch.Duration == nil {
				next.Duration = svc.Duration
			}
		}
	}
	if patch.Duration != nil {
		if *patch.Duration <= 0 || *patch.Duration > models.MaxDurationMinutes {
			return nil, domain.InvalidInput("duration must be between 1 and %d minutes", models.MaxDurationMinutes)
		}
		next.Duration = *patch.Duration
	}
	if patch.Date != nil {
		next.Date = *patch.Date
	}
	if patch.Time != nil {
		next.Time = *patch.Time
	}
	return &next, nil
}

func (s *BookingService) lookupService(id string) (*models.Service, error) {
	if s.catalog == nil {
		return nil, domain.InvalidInput("unknown service %q", id)
	}
	svc, ok := s.catalog.GetService(id)
	if !ok {
		return nil, domain.InvalidInput("unknown service %q", id)
	}
	return svc, nil
}

// checkSlot requires an open date and appt.Time among the computed slots.
func (s *BookingService) checkSlot(ctx context.Context, appt *models.Appointment, excludeID string) error {
	req, err := s.slotRequest(ctx, appt.Date, appt.Duration, excludeID)
	if err != nil {
		return err
	}
	if req.Availability == nil || !req.Availability.IsWorkingDay {
		return fmt.Errorf("%s: %w", appt.Date, domain.ErrDateClosed)
	}

	available, err := s.allocator.Compute(req)
	if err != nil {
		return err
	}
	if !slots.Contains(available, appt.Time) {
		return fmt.Errorf("%s %s: %w", appt.Date, appt.Time, domain.ErrSlotUnavailable)
	}
	return nil
}

func (s *BookingService) slotRequest(ctx context.Context, date string, duration int, excludeID string) (slots.Request, error) {
	avail, err := s.availability.Get(ctx, date)
	if err != nil {
		return slots.Request{}, err
	}
	req := slots.Request{Availability: avail, Duration: duration, ExcludeID: excludeID}
	if avail == nil || !avail.IsWorkingDay {
		return req, nil
	}

	booked, err := s.appointments.ListByDate(ctx, date, models.StatusConfirmed)
	if err != nil {
		return slots.Request{}, err
	}
	req.Appointments = booked
	return req, nil
}

// withAppointment runs fn on a fresh copy of the appointment while holding the
// locks of its current date and, when target is set, the target date.
func (s *BookingService) withAppointment(ctx context.Context, id string, target func(*models.Appointment) string, fn func(*models.Appointment) error) error {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		snapshot, err := s.appointments.Get(ctx, id)
		if err != nil {
			return err
		}

		dates := []string{snapshot.Date}
		if target != nil {
			dates = append(dates, target(snapshot))
		}
		unlock, err := s.lockDates(ctx, dates...)
		if err != nil {
			return err
		}

		current, err := s.appointments.Get(ctx, id)
		if err != nil {
			unlock()
			return err
		}
		if current.Date != snapshot.Date {
			unlock()
			continue
		}

		err = fn(current)
		unlock()
		return err
	}
	return fmt.Errorf("appointment %s changed concurrently, try again", id)
}

// lockDates acquires date locks in lexical order so concurrent moves cannot deadlock.
func (s *BookingService) lockDates(ctx context.Context, dates ...string) (func(), error) {
	unique := make([]string, 0, len(dates))
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		if !seen[d] {
			seen[d] = true
			unique = append(unique, d)
		}
	}
	sort.Strings(unique)

	unlocks := make([]func(), 0, len(unique))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, d := range unique {
		unlock, err := s.locker.Lock(ctx, d)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", d, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func (s *BookingService) publishAppointment(eventType string, appt *models.Appointment, extra events.AppointmentEventPayload) {
	extra.AppointmentID = appt.ID
	extra.CustomerName = appt.CustomerName
	extra.Date = appt.Date
	extra.Time = appt.Time
	extra.Duration = appt.Duration
	extra.ServiceID = models.StringValue(appt.ServiceID)
	extra.Status = appt.Status
	s.publish(eventType, extra)
}

func (s *BookingService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (s *BookingService) observe(operation, date string, err error) {
	if err == nil {
		metrics.IncBooking(operation, "ok")
		return
	}

	code := domain.ErrorCode(err)
	metrics.IncBooking(operation, code)
	if code == domain.CodeInternal {
		s.logger.Error().Err(err).Str("operation", operation).Str("date", date).Msg("booking operation failed")
		return
	}
	s.logger.Warn().Err(err).Str("operation", operation).Str("date", date).Msg("booking operation rejected")
}

func diffFields(current, next *models.Appointment) (map[string]any, error) {
	before, err := models.ToFields(current)
	if err != nil {
		return nil, err
	}
	after, err := models.ToFields(next)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]any)
	for key, value := range after {
		if key == "id" || key == "created_at" || key == "updated_at" || key == "status" {
			continue
		}
		if !reflect.DeepEqual(before[key], value) {
			changes[key] = value
		}
	}
	return changes, nil
}

func validateRange(from, to string) error {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if err := slots.ValidateDate(d); err != nil {
			return err
		}
	}
	if from != "" && to != "" && from > to {
		return domain.InvalidInput("from %s is after to %s", from, to)
	}
	return nil
}

func validateHours(hours *models.WorkingHours) error {
	if hours == nil {
		return nil
	}
	start, err := slots.TimeToMinutes(hours.Start)
	if err != nil {
		return err
	}
	end, err := slots.TimeToMinutes(hours.End)
	if err != nil {
		return err
	}
	if start >= end {
		return domain.InvalidInput("working hours start %s must be before end %s", hours.Start, hours.End)
	}
	return nil
}

func normalizeSlots(custom []string) ([]string, error) {
	if len(custom) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(custom))
	result := make([]string, 0, len(custom))
	for _, slot := range custom {
		if err := slots.ValidateTime(slot); err != nil {
			return nil, err
		}
		if !seen[slot] {
			seen[slot] = true
			result = append(result, slot)
		}
	}
	sort.Strings(result)
	return result, nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.InvalidInput("%s failed %q validation", toSnake(fe.Field()), fe.Tag())
	}
	return domain.InvalidInput("%v", err)
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type noopNotifier struct{}

func (noopNotifier) SendBookingConfirmation(context.Context, *models.Appointment)         {}
func (noopNotifier) SendAdminNotification(context.Context, *models.Appointment)           {}
func (noopNotifier) SendCancellation(context.Context, *models.Appointment, bool)          {}
func (noopNotifier) SendChangeNotice(context.Context, *models.Appointment, string, string) {}
