package server

import (
	"strings"
	"time"
)

const dateOnlyLayout = "2006-01-02"

// auditWindow parses start_at and end_at. Either may be RFC3339 or a bare
// date; a bare end date covers the whole day in UTC.
func auditWindow(startAt, endAt string) (*time.Time, *time.Time, error) {
	start, ok := parseInstant(startAt, false)
	if !ok {
		return nil, nil, newValidationError("start_at", "invalid_start_at", "start_at must be RFC3339 or YYYY-MM-DD")
	}
	end, ok := parseInstant(endAt, true)
	if !ok {
		return nil, nil, newValidationError("end_at", "invalid_end_at", "end_at must be RFC3339 or YYYY-MM-DD")
	}
	return start, end, nil
}

func parseInstant(value string, endOfDay bool) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, true
	}
	day, err := time.Parse(dateOnlyLayout, value)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, true
}

// optionalText trims a patch field but keeps an explicit empty string,
// which clears the stored value.
func optionalText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
