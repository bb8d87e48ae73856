package ical

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAllDayAndTimedEvents(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	err := Write(&buf, "Team leave", []Event{
		{UID: "wr-1@workforce", Summary: "Ann: annual leave", Start: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC), AllDay: true, Status: "confirmed"},
		{UID: "ev-1@workforce", Summary: "Planning; sprint 4, room A", Start: time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)},
	}, stamp)
	require.NoError(t, err)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20260202\r\n")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20260205\r\n")
	assert.Contains(t, out, "STATUS:CONFIRMED\r\n")
	assert.Contains(t, out, "DTSTART:20260205T090000Z\r\n")
	assert.Contains(t, out, `SUMMARY:Planning\; sprint 4\, room A`)
	assert.Contains(t, out, "DTSTAMP:20260102T030405Z\r\n")
	assert.Equal(t, 2, strings.Count(out, "BEGIN:VEVENT"))
}

func TestFoldLongLines(t *testing.T) {
	line := "DESCRIPTION:" + strings.Repeat("é", 80)
	folded := fold(line)
	for _, part := range strings.Split(strings.TrimSuffix(folded, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(part), maxLineOctets)
	}
	assert.Equal(t, line, strings.ReplaceAll(strings.TrimSuffix(folded, "\r\n"), "\r\n ", ""))
}

func TestFilename(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "leave-2026-01-01-2026-01-31.ics", Filename("leave", from, to))
}
