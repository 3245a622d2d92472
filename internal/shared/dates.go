package shared

import (
	"strings"
	"time"
)

// DateLayout is the wire format for delivery dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD value. An empty value is a ValidationError on field.
func ParseDay(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, NewValidationError(field, "required")
	}
	if len(value) > len(DateLayout) {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return Day(t), nil
		}
		value = value[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, NewValidationError(field, "expected YYYY-MM-DD")
	}
	return t, nil
}
