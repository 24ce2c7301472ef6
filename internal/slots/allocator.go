package slots

import (
	"sort"

	"hairstudio/internal/models"
)

const (
	DayClosed      = "closed"
	DayFullyBooked = "fully_booked"
	DayOpen        = "open"
)

// Allocator turns a date's availability and its confirmed appointments into bookable start times.
// The buffer is added to both the candidate and every existing appointment.
type Allocator struct {
	Buffer          int
	Interval        int
	DefaultHours    models.WorkingHours
	DefaultDuration int
	// BookedDuration applies to stored appointments without a duration.
	BookedDuration int
}

func NewAllocator() *Allocator {
	return &Allocator{
		Buffer:          models.BufferMinutes,
		Interval:        models.SlotIntervalMinutes,
		DefaultHours:    models.DefaultWorkingHours(),
		DefaultDuration: models.DefaultListingDuration,
		BookedDuration:  models.DefaultBookingDuration,
	}
}

type Request struct {
	Availability *models.Availability
	Appointments []*models.Appointment
	Duration     int
	// ExcludeID removes one appointment from the conflict set (the one being moved).
	ExcludeID string
}

type interval struct {
	start int
	end   int
}

// Compute returns the valid start times in ascending order. A missing or
// non-working availability record yields an empty result.
func (a *Allocator) Compute(req Request) ([]string, error) {
	result := []string{}
	avail := req.Availability
	if avail == nil || !avail.IsWorkingDay {
		return result, nil
	}

	hours := a.DefaultHours
	if avail.WorkingHours != nil && avail.WorkingHours.Start != "" && avail.WorkingHours.End != "" {
		hours = *avail.WorkingHours
	}
	dayEnd, err := TimeToMinutes(hours.End)
	if err != nil {
		return nil, err
	}

	candidates := avail.CustomTimeSlots
	if len(candidates) == 0 {
		candidates, err = GenerateSlots(hours.Start, hours.End, a.Interval)
		if err != nil {
			return nil, err
		}
	}

	duration := req.Duration
	if duration <= 0 {
		duration = a.DefaultDuration
	}

	busy, err := a.occupied(req.Appointments, req.ExcludeID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(candidates))
	starts := make([]int, 0, len(candidates))
	for _, candidate := range candidates {
		start, err := TimeToMinutes(candidate)
		if err != nil {
			return nil, err
		}
		end := start + duration + a.Buffer
		if end > dayEnd || seen[start] {
			continue
		}
		if conflicts(start, end, busy) {
			continue
		}
		seen[start] = true
		starts = append(starts, start)
	}

	sort.Ints(starts)
	for _, start := range starts {
		result = append(result, MinutesToTime(start))
	}
	return result, nil
}

// Status classifies the date and returns the computed slots.
func (a *Allocator) Status(req Request) (string, []string, error) {
	if req.Availability == nil || !req.Availability.IsWorkingDay {
		return DayClosed, []string{}, nil
	}
	slots, err := a.Compute(req)
	if err != nil {
		return "", nil, err
	}
	if len(slots) == 0 {
		return DayFullyBooked, slots, nil
	}
	return DayOpen, slots, nil
}

func (a *Allocator) occupied(appointments []*models.Appointment, excludeID string) ([]interval, error) {
	busy := make([]interval, 0, len(appointments))
	for _, appt := range appointments {
		if appt == nil || !appt.IsConfirmed() {
			continue
		}
		if excludeID != "" && appt.ID == excludeID {
			continue
		}
		start, err := TimeToMinutes(appt.Time)
		if err != nil {
			return nil, err
		}
		duration := appt.Duration
		if duration <= 0 {
			duration = a.BookedDuration
		}
		busy = append(busy, interval{start: start, end: start + duration + a.Buffer})
	}
	return busy, nil
}

func conflicts(start, end int, busy []interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// Contains reports whether slot is in the computed list.
func Contains(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

// NotBefore drops slots earlier than the given time of day. Used by callers
// that hide past times on the current date.
func NotBefore(slots []string, earliest string) ([]string, error) {
	limit, err := TimeToMinutes(earliest)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(slots))
	for _, s := range slots {
		m, err := TimeToMinutes(s)
		if err != nil {
			return nil, err
		}
		if m >= limit {
			result = append(result, s)
		}
	}
	return result, nil
}
