package workrequests

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"workforce/internal/domain/approvals"
	"workforce/internal/platform/ical"
)

const (
	FormatCSV = "csv"
	FormatICS = "ics"
)

var ErrUnknownFormat = errors.New("Unsupported export format")

var calendarHeader = []string{"request_id", "user_id", "user_name", "leave_type", "start_date", "end_date", "start_half", "end_half", "days", "status"}

func WriteCalendarCSV(w io.Writer, entries []CalendarEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(calendarHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.RequestID,
			e.UserID,
			e.UserName,
			e.LeaveType,
			e.StartDate.Format("2006-01-02"),
			e.EndDate.Format("2006-01-02"),
			e.StartHalf,
			e.EndHalf,
			strconv.FormatFloat(e.Days, 'f', -1, 64),
			e.Status,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCalendarICS(w io.Writer, entries []CalendarEntry, stamp time.Time) error {
	events := make([]ical.Event, 0, len(entries))
	for _, e := range entries {
		status := "TENTATIVE"
		if e.Status == approvals.StatusApproved {
			status = "CONFIRMED"
		}
		summary := fmt.Sprintf("%s: %s leave", e.UserName, e.LeaveType)
		if e.Status != approvals.StatusApproved {
			summary += " (pending)"
		}
		events = append(events, ical.Event{
			UID:         "work-request-" + e.RequestID + "@workforce",
			Summary:     summary,
			Description: fmt.Sprintf("%s day(s)", strconv.FormatFloat(e.Days, 'f', -1, 64)),
			Start:       e.StartDate,
			End:         e.EndDate,
			AllDay:      true,
			Categories:  "LEAVE",
			Status:      status,
		})
	}
	return ical.Write(w, "Team leave", events, stamp)
}

// ExportContentType returns the media type and file name for format.
func ExportContentType(format string, from, to time.Time) (string, string, error) {
	switch format {
	case FormatCSV, "":
		return "text/csv; charset=utf-8", fmt.Sprintf("leave-%s-%s.csv", from.Format("2006-01-02"), to.Format("2006-01-02")), nil
	case FormatICS:
		return ical.ContentType, ical.Filename("leave", from, to), nil
	}
	return "", "", ErrUnknownFormat
}
