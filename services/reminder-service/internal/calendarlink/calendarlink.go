package calendarlink

import (
	"net/url"
	"strings"
	"time"
)

// Event carries the semantic calendar fields produced by the booking
// side. This package renders them into the two delivery modes reminders
// use: a Google Calendar prefill URL and an ICS document.
type Event struct {
	UID         string
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
}

const stampLayout = "20060102T150405Z"

// GoogleURL returns a calendar.google.com render link prefilled with the
// event.
func GoogleURL(e Event) string {
	v := url.Values{}
	v.Set("action", "TEMPLATE")
	v.Set("text", e.Title)
	v.Set("dates", e.Start.UTC().Format(stampLayout)+"/"+e.End.UTC().Format(stampLayout))
	if e.Description != "" {
		v.Set("details", e.Description)
	}
	if e.Location != "" {
		v.Set("location", e.Location)
	}
	return "https://calendar.google.com/calendar/render?" + v.Encode()
}

// ICS renders a single-event VCALENDAR document suitable as an email
// attachment. stamp becomes DTSTAMP so output is reproducible in tests.
func ICS(e Event, stamp time.Time) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//clinicbook//reminder-service//EN",
		"BEGIN:VEVENT",
		"UID:" + escape(e.UID),
		"DTSTAMP:" + stamp.UTC().Format(stampLayout),
		"DTSTART:" + e.Start.UTC().Format(stampLayout),
		"DTEND:" + e.End.UTC().Format(stampLayout),
		"SUMMARY:" + escape(e.Title),
	}
	if e.Description != "" {
		lines = append(lines, "DESCRIPTION:"+escape(e.Description))
	}
	if e.Location != "" {
		lines = append(lines, "LOCATION:"+escape(e.Location))
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

// escape applies RFC 5545 text escaping.
func escape(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\n", `\n`,
	)
	return r.Replace(s)
}
