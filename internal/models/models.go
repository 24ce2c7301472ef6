package models

import "time"

type WorkingHours struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Availability is the per-date working-day record. A date without a record is closed.
type Availability struct {
	Date            string        `json:"date"`
	IsWorkingDay    bool          `json:"is_working_day"`
	WorkingHours    *WorkingHours `json:"working_hours"`
	CustomTimeSlots []string      `json:"custom_time_slots"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Hours returns the configured working hours or the studio default.
func (a *Availability) Hours() WorkingHours {
	if a == nil || a.WorkingHours == nil || a.WorkingHours.Start == "" || a.WorkingHours.End == "" {
		return DefaultWorkingHours()
	}
	return *a.WorkingHours
}

func (a *Availability) HasCustomSlots() bool {
	return a != nil && len(a.CustomTimeSlots) > 0
}

func DefaultWorkingHours() WorkingHours {
	return WorkingHours{Start: DefaultDayStart, End: DefaultDayEnd}
}

// Service is an entry of the studio's service catalog.
type Service struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Duration  int     `yaml:"duration" json:"duration"`
	Price     float64 `yaml:"price" json:"price"`
	SortOrder int     `yaml:"sort_order" json:"sort_order"`
	IsActive  bool    `yaml:"is_active" json:"is_active"`
}
