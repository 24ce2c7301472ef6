package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailability_Hours(t *testing.T) {
	var nilAvail *Availability
	assert.Equal(t, DefaultWorkingHours(), nilAvail.Hours())
	assert.False(t, nilAvail.HasCustomSlots())

	a := &Availability{Date: "2025-06-10", IsWorkingDay: true}
	assert.Equal(t, WorkingHours{Start: "10:00", End: "17:00"}, a.Hours())

	a.WorkingHours = &WorkingHours{Start: "09:00", End: "12:00"}
	assert.Equal(t, "12:00", a.Hours().End)

	a.CustomTimeSlots = []string{"09:00"}
	assert.True(t, a.HasCustomSlots())
}

func TestAppointment_Helpers(t *testing.T) {
	a := &Appointment{Status: StatusConfirmed}
	assert.True(t, a.IsConfirmed())
	assert.True(t, a.IsBlock())

	a.CustomerPhone = StringPtr("+7 900 000 00 00")
	assert.False(t, a.IsBlock())

	a.Status = StatusCancelled
	assert.False(t, a.IsConfirmed())
}

func TestStringHelpers(t *testing.T) {
	assert.Nil(t, StringPtr(""))
	assert.Equal(t, "x", *StringPtr("x"))
	assert.Equal(t, "", StringValue(nil))
	assert.Equal(t, "x", StringValue(StringPtr("x")))
}

func TestAppointment_NullFieldsPersisted(t *testing.T) {
	fields, err := ToFields(&Appointment{ID: "a1", CustomerName: "Anna"})
	require.NoError(t, err)

	v, ok := fields["customer_email"]
	assert.True(t, ok, "optional fields must be written as null")
	assert.Nil(t, v)

	var back Appointment
	require.NoError(t, FromFields(fields, &back))
	assert.Equal(t, "Anna", back.CustomerName)
	assert.Nil(t, back.CustomerEmail)
}

func TestAppointmentPatch_Unmarshal(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantSet   bool
		wantValue *string
	}{
		{"omitted", `{}`, false, nil},
		{"null clears", `{"customer_email":null}`, true, nil},
		{"blank clears", `{"customer_email":"  "}`, true, nil},
		{"value", `{"customer_email":"a@b.c"}`, true, StringPtr("a@b.c")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p AppointmentPatch
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.wantSet, p.CustomerEmail.Set)
			assert.Equal(t, tt.wantValue, p.CustomerEmail.Value)
		})
	}
}

func TestAppointmentPatch_Flags(t *testing.T) {
	assert.True(t, AppointmentPatch{}.IsEmpty())

	name := "Olga"
	p := AppointmentPatch{CustomerName: &name}
	assert.False(t, p.IsEmpty())
	assert.False(t, p.TouchesSchedule())

	p.ServiceID = ClearString()
	assert.True(t, p.TouchesSchedule())

	tm := "11:00"
	assert.True(t, AppointmentPatch{Time: &tm}.TouchesSchedule())
	assert.Equal(t, "x", *SetString(" x ").Value)
}

func TestFilter_Matches(t *testing.T) {
	fields := map[string]any{"date": "2025-06-10", "status": "confirmed", "duration": float64(60)}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"in range", Filter{Range: &RangeFilter{Field: "date", From: "2025-06-01", To: "2025-06-30"}}, true},
		{"inclusive bounds", Filter{Range: &RangeFilter{Field: "date", From: "2025-06-10", To: "2025-06-10"}}, true},
		{"before range", Filter{Range: &RangeFilter{Field: "date", From: "2025-06-11"}}, false},
		{"after range", Filter{Range: &RangeFilter{Field: "date", To: "2025-06-09"}}, false},
		{"missing field", Filter{Range: &RangeFilter{Field: "other"}}, false},
		{"status eq", Filter{Equals: map[string]any{"status": "confirmed"}}, true},
		{"status ne", Filter{Equals: map[string]any{"status": "cancelled"}}, false},
		{"int vs float", Filter{Equals: map[string]any{"duration": 60}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(fields))
		})
	}
}
