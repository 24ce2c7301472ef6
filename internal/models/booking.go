package models

import "time"

// Appointment is a booked (or blocked) start time on a calendar date.
// Optional fields are pointers and are always persisted, so a cleared value
// is stored as null rather than omitted.
type Appointment struct {
	ID            string    `json:"id"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail *string   `json:"customer_email"`
	CustomerPhone *string   `json:"customer_phone"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	ServiceID     *string   `json:"service_id"`
	ServiceName   *string   `json:"service_name"`
	Duration      int       `json:"duration"`
	Status        string    `json:"status"` // confirmed, cancelled
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (a *Appointment) IsConfirmed() bool {
	return a.Status == StatusConfirmed
}

// IsBlock reports whether the appointment is an internal slot block with no customer contact.
func (a *Appointment) IsBlock() bool {
	return a.CustomerEmail == nil && a.CustomerPhone == nil
}

// BookingInput carries the data of a new booking. Empty optional strings are stored as null.
type BookingInput struct {
	CustomerName  string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email,max=254"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=32"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	ServiceID     string `json:"service_id"`
	ServiceName   string `json:"service_name" validate:"max=200"`
	Duration      int    `json:"duration" validate:"gte=0,lte=480"`
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
