package timeparser

import (
	"fmt"
	"strings"
	"time"
)

const dateOnly = "2006-01-02"

// ParseTimestamp parses an instant sent by clients or meters. Layouts without
// a zone are read in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if loc == nil {
		loc = time.UTC
	}

	zoned := []string{
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, layout := range zoned {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	local := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss as printed by field meters
		dateOnly,
	}
	var lastErr error
	for _, layout := range local {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// ParseRangeStart parses the lower bound of a date filter
func ParseRangeStart(value string, loc *time.Location) (time.Time, error) {
	return ParseTimestamp(value, loc)
}

// ParseRangeEnd parses the upper bound of a date filter. A bare date covers
// the whole day, so it expands to the last nanosecond of that day.
func ParseRangeEnd(value string, loc *time.Location) (time.Time, error) {
	t, err := ParseTimestamp(value, loc)
	if err != nil {
		return t, err
	}
	if IsDateOnly(value) {
		return EndOfDay(t), nil
	}
	return t, nil
}

// IsDateOnly reports whether value is a bare YYYY-MM-DD date
func IsDateOnly(value string) bool {
	_, err := time.Parse(dateOnly, strings.TrimSpace(value))
	return err == nil
}

// StartOfDay returns midnight of t's calendar day in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last nanosecond of t's calendar day in t's location
func EndOfDay(t time.Time) time.Time {
	start := StartOfDay(t, t.Location())
	return start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// IsFutureBeyond reports whether readingTime lies more than toleranceMinutes
// after receivedTime
func IsFutureBeyond(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	return readingTime.Sub(receivedTime) > time.Duration(toleranceMinutes)*time.Minute
}
