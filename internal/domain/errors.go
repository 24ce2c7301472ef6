package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDateClosed         = errors.New("date is not a working day")
	ErrSlotUnavailable    = errors.New("requested time is not available")
	ErrDayHasAppointments = errors.New("day has confirmed appointments")
	ErrNotFound           = errors.New("not found")
	ErrFormat             = errors.New("invalid format")
	ErrAlreadyCancelled   = errors.New("appointment already cancelled")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyExists      = errors.New("already exists")
)

// DayHasAppointmentsError is returned when closing a date that still has confirmed appointments.
type DayHasAppointmentsError struct {
	Date  string
	Count int
}

func (e *DayHasAppointmentsError) Error() string {
	return fmt.Sprintf("%s has %d confirmed appointment(s)", e.Date, e.Count)
}

func (e *DayHasAppointmentsError) Unwrap() error { return ErrDayHasAppointments }

// FormatError reports a malformed date or time value.
type FormatError struct {
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

const (
	CodeDateClosed         = "date_closed"
	CodeSlotUnavailable    = "slot_unavailable"
	CodeDayHasAppointments = "day_has_appointments"
	CodeNotFound           = "not_found"
	CodeInvalidFormat      = "invalid_format"
	CodeAlreadyCancelled   = "already_cancelled"
	CodeInvalidInput       = "invalid_input"
	CodeInternal           = "internal"
)

// ErrorCode maps an error to its stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDateClosed):
		return CodeDateClosed
	case errors.Is(err, ErrSlotUnavailable):
		return CodeSlotUnavailable
	case errors.Is(err, ErrDayHasAppointments):
		return CodeDayHasAppointments
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrFormat):
		return CodeInvalidFormat
	case errors.Is(err, ErrAlreadyCancelled):
		return CodeAlreadyCancelled
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// ErrorMessage returns a human-readable message safe to show to customers.
func ErrorMessage(err error) string {
	var dayErr *DayHasAppointmentsError
	var formatErr *FormatError

	switch {
	case errors.As(err, &dayErr):
		return fmt.Sprintf("This day still has %d confirmed appointment(s). Cancel or move them before closing the day.", dayErr.Count)
	case errors.As(err, &formatErr):
		return fmt.Sprintf("The %s value %q is not valid.", formatErr.Field, formatErr.Value)
	}

	switch ErrorCode(err) {
	case CodeDateClosed:
		return "The studio is closed on this date."
	case CodeSlotUnavailable:
		return "This time is no longer available. Please choose another slot."
	case CodeDayHasAppointments:
		return "This day still has confirmed appointments."
	case CodeNotFound:
		return "Appointment not found."
	case CodeInvalidFormat:
		return "The date or time is not valid."
	case CodeAlreadyCancelled:
		return "This appointment has already been cancelled."
	case CodeInvalidInput:
		return err.Error()
	case "":
		return ""
	default:
		return "Something went wrong. Please try again later."
	}
}
