package services

import "time"

// GetCurrentTimestamp returns the current time in ISO8601 form.
func GetCurrentTimestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp renders t the way every gateway response carries it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
