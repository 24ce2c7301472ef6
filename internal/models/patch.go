package models

import (
	"encoding/json"
	"strings"
)

// OptionalString distinguishes an omitted field (Set=false) from an explicit
// clear (Set=true, Value=nil) and a new value.
type OptionalString struct {
	Set   bool
	Value *string
}

func SetString(s string) OptionalString {
	return OptionalString{Set: true, Value: StringPtr(strings.TrimSpace(s))}
}

func ClearString() OptionalString {
	return OptionalString{Set: true}
}

// UnmarshalJSON treats null and blank strings as an explicit clear.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	o.Value = nil
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = StringPtr(strings.TrimSpace(s))
	return nil
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// AppointmentPatch is a partial update. Nil pointers and unset optionals leave
// the stored value untouched.
type AppointmentPatch struct {
	CustomerName  *string        `json:"customer_name,omitempty"`
	CustomerEmail OptionalString `json:"customer_email"`
	CustomerPhone OptionalString `json:"customer_phone"`
	ServiceID     OptionalString `json:"service_id"`
	ServiceName   OptionalString `json:"service_name"`
	Duration      *int           `json:"duration,omitempty"`
	Date          *string        `json:"date,omitempty"`
	Time          *string        `json:"time,omitempty"`
}

// TouchesSchedule reports whether the patch can change the occupied interval.
func (p AppointmentPatch) TouchesSchedule() bool {
	return p.Date != nil || p.Time != nil || p.Duration != nil || p.ServiceID.Set
}

func (p AppointmentPatch) IsEmpty() bool {
	return p.CustomerName == nil && !p.CustomerEmail.Set && !p.CustomerPhone.Set &&
		!p.ServiceID.Set && !p.ServiceName.Set && !p.TouchesSchedule()
}
