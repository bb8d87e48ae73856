package workrequests

import (
	"math"
	"path"
	"strings"
	"time"
)

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func validHalf(half string) bool {
	return half == HalfNone || half == HalfAM || half == HalfPM
}

// CalculateRequestDays counts Mon-Fri days in [start, end] with half-day
// adjustments. On multi-day requests startHalf may only be "pm" (start after
// lunch) and endHalf only "am" (finish at lunch).
func CalculateRequestDays(start, end time.Time, startHalf, endHalf string) (float64, error) {
	start, end = dateOnly(start), dateOnly(end)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0, ErrInvalidDateRange
	}
	if !validHalf(startHalf) || !validHalf(endHalf) {
		return 0, ErrInvalidHalf
	}

	if start.Equal(end) {
		if startHalf != HalfNone && endHalf != HalfNone && startHalf != endHalf {
			return 0, ErrMixedHalves
		}
		if !isWorkingDay(start) {
			return 0, nil
		}
		if startHalf != HalfNone || endHalf != HalfNone {
			return 0.5, nil
		}
		return 1, nil
	}

	if startHalf == HalfAM || endHalf == HalfPM {
		return 0, ErrInvalidHalf
	}
	days := 0.0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if isWorkingDay(d) {
			days++
		}
	}
	if startHalf == HalfPM && isWorkingDay(start) {
		days -= 0.5
	}
	if endHalf == HalfAM && isWorkingDay(end) {
		days -= 0.5
	}
	return days, nil
}

func calendarDays(start, end time.Time) int {
	return int(dateOnly(end).Sub(dateOnly(start)).Hours()/24) + 1
}

// ValidateOvertime checks 0 < hours <= 24 * calendar days.
func ValidateOvertime(start, end time.Time, hours float64) error {
	if dateOnly(end).Before(dateOnly(start)) {
		return ErrInvalidDateRange
	}
	if hours <= 0 || math.IsNaN(hours) || hours > float64(24*calendarDays(start, end)) {
		return ErrInvalidHours
	}
	return nil
}

// ValidateUpload checks a document against size and media type limits given
// how many documents the request already has.
func ValidateUpload(upload Upload, existing int) error {
	if existing >= MaxDocuments {
		return ErrTooManyDocuments
	}
	if len(upload.Data) == 0 || len(upload.Data) > MaxDocumentSize {
		return ErrDocumentTooLarge
	}
	if _, ok := AllowedDocumentTypes[normalizeContentType(upload.ContentType)]; !ok {
		return ErrDocumentType
	}
	return nil
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "image/jpg" {
		return "image/jpeg"
	}
	return contentType
}

// SafeFileName strips directories and characters outside [A-Za-z0-9._-].
func SafeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "document"
	}
	if len(out) > 120 {
		out = out[len(out)-120:]
	}
	return out
}

func DocumentKey(requestID, documentID, fileName string) string {
	return "work-requests/" + requestID + "/" + documentID + "/" + SafeFileName(fileName)
}
