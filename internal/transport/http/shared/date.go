package shared

import (
	"net/http"
	"strings"
	"time"
)

// ParseDate accepts RFC3339 or YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Parse("2006-01-02", value)
}

// DateRange reads the from/to query parameters. Missing bounds default to
// the first and last day of the current month.
func DateRange(r *http.Request, v *Validator, now time.Time) (time.Time, time.Time) {
	query := r.URL.Query()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		if parsed, ok := v.Date("from", raw); ok {
			from = parsed
		}
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		if parsed, ok := v.Date("to", raw); ok {
			to = parsed
		}
	}
	v.DateOrder("from", from, "to", to)
	return from, to
}
