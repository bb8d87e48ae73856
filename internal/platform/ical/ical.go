// Package ical writes RFC 5545 calendars for leave and event exports.
package ical

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Categories  string
	Status      string
}

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102T150405Z"
	maxLineOctets  = 75
)

// Write renders events as a VCALENDAR. stamp is used for DTSTAMP.
func Write(w io.Writer, name string, events []Event, stamp time.Time) error {
	bw := bufio.NewWriter(w)
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Workforce//Calendar//EN",
		"CALSCALE:GREGORIAN",
	}
	if name != "" {
		lines = append(lines, "X-WR-CALNAME:"+escape(name))
	}
	for _, evt := range events {
		lines = append(lines, eventLines(evt, stamp)...)
	}
	lines = append(lines, "END:VCALENDAR")
	for _, line := range lines {
		if _, err := bw.WriteString(fold(line)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func eventLines(evt Event, stamp time.Time) []string {
	out := []string{
		"BEGIN:VEVENT",
		"UID:" + escape(evt.UID),
		"DTSTAMP:" + stamp.UTC().Format(dateTimeLayout),
	}
	if evt.AllDay {
		// DTEND is exclusive for all-day events.
		out = append(out,
			"DTSTART;VALUE=DATE:"+evt.Start.Format(dateLayout),
			"DTEND;VALUE=DATE:"+evt.End.AddDate(0, 0, 1).Format(dateLayout),
		)
	} else {
		out = append(out,
			"DTSTART:"+evt.Start.UTC().Format(dateTimeLayout),
			"DTEND:"+evt.End.UTC().Format(dateTimeLayout),
		)
	}
	out = append(out, "SUMMARY:"+escape(evt.Summary))
	if evt.Description != "" {
		out = append(out, "DESCRIPTION:"+escape(evt.Description))
	}
	if evt.Categories != "" {
		out = append(out, "CATEGORIES:"+escape(evt.Categories))
	}
	if evt.Status != "" {
		out = append(out, "STATUS:"+strings.ToUpper(evt.Status))
	}
	return append(out, "END:VEVENT")
}

var escaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func escape(value string) string {
	return escaper.Replace(value)
}

// fold splits a content line into 75-octet chunks without breaking UTF-8
// sequences and terminates it with CRLF.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line + "\r\n"
	}
	var b strings.Builder
	limit := maxLineOctets
	start := 0
	for start < len(line) {
		end := start + limit
		if end >= len(line) {
			b.WriteString(line[start:])
			break
		}
		for end > start && !isRuneStart(line[end]) {
			end--
		}
		b.WriteString(line[start:end])
		b.WriteString("\r\n ")
		start = end
		limit = maxLineOctets - 1
	}
	b.WriteString("\r\n")
	return b.String()
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}

// ContentType is the media type for Write output.
const ContentType = "text/calendar; charset=utf-8"

// Filename builds an attachment name such as "leave-2026-01-01-2026-01-31.ics".
func Filename(prefix string, from, to time.Time) string {
	return fmt.Sprintf("%s-%s-%s.ics", prefix, from.Format("2006-01-02"), to.Format("2006-01-02"))
}
