package slots

import (
	"fmt"
	"time"

	"hairstudio/internal/domain"
	"hairstudio/internal/models"
)

const minutesPerDay = 24 * 60

// TimeToMinutes parses a strict HH:MM value into minutes since midnight.
func TimeToMinutes(value string) (int, error) {
	if len(value) != 5 || value[2] != ':' {
		return 0, &domain.FormatError{Field: "time", Value: value}
	}
	hour, ok1 := twoDigits(value[0:2])
	minute, ok2 := twoDigits(value[3:5])
	if !ok1 || !ok2 || hour > 23 || minute > 59 {
		return 0, &domain.FormatError{Field: "time", Value: value}
	}
	return hour*60 + minute, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// MinutesToTime formats a minute offset as zero-padded HH:MM.
func MinutesToTime(minutes int) string {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// GenerateSlots returns every start+k*interval strictly before end.
func GenerateSlots(start, end string, interval int) ([]string, error) {
	from, err := TimeToMinutes(start)
	if err != nil {
		return nil, err
	}
	to, err := TimeToMinutes(end)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = models.SlotIntervalMinutes
	}

	result := make([]string, 0, max(0, (to-from)/interval+1))
	for m := from; m < to; m += interval {
		result = append(result, MinutesToTime(m))
	}
	return result, nil
}

// ValidateDate checks a strict YYYY-MM-DD calendar date.
func ValidateDate(value string) error {
	parsed, err := time.Parse(models.DateLayout, value)
	if err != nil || parsed.Format(models.DateLayout) != value {
		return &domain.FormatError{Field: "date", Value: value}
	}
	return nil
}

// ValidateTime checks a strict HH:MM time of day.
func ValidateTime(value string) error {
	_, err := TimeToMinutes(value)
	return err
}

// Overlaps is the half-open interval test: touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
