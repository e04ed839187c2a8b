package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/calendarlink"
)

// Message is the rendered content for one reminder send.
type Message struct {
	Subject string
	Text    string
	SMS     string
	ICS     string
}

// BuildMessage renders a job's template data into the channel bodies.
// The booking side ships start/end as RFC 3339 instants inside
// template_data, so nothing here parses 12-hour labels.
func BuildMessage(job Job, now time.Time) (Message, error) {
	data := templateReader{m: job.TemplateData}

	start, err := data.instant("start_time")
	if err != nil {
		return Message{}, err
	}
	end, err := data.instant("end_time")
	if err != nil {
		return Message{}, err
	}

	clinic := data.str("clinic_name")
	if clinic == "" {
		clinic = "your clinic"
	}
	doctor := data.str("doctor_name")
	treatment := data.str("treatment_type")
	date := data.str("appointment_date")
	label := data.str("appointment_time")

	event := calendarlink.Event{
		UID:         job.IdempotencyKey + "@clinicbook",
		Title:       data.str("title"),
		Start:       start,
		End:         end,
		Description: data.str("description"),
		Location:    data.str("location"),
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello,\n\n")
	fmt.Fprintf(&text, "This is a reminder of your upcoming appointment at %s:\n\n", clinic)
	fmt.Fprintf(&text, "  %s with %s\n  %s at %s\n", treatment, doctor, date, label)
	if event.Location != "" {
		fmt.Fprintf(&text, "  %s\n", event.Location)
	}
	fmt.Fprintf(&text, "\nAdd it to your calendar: %s\n", calendarlink.GoogleURL(event))
	fmt.Fprintf(&text, "\nIf you can no longer make it, please contact us to reschedule.\n")

	return Message{
		Subject: fmt.Sprintf("Appointment reminder: %s at %s", date, label),
		Text:    text.String(),
		SMS: fmt.Sprintf("Reminder from %s: %s with %s on %s at %s.",
			clinic, treatment, doctor, date, label),
		ICS: calendarlink.ICS(event, now),
	}, nil
}

type templateReader struct {
	m map[string]any
}

func (t templateReader) str(key string) string {
	v, _ := t.m[key].(string)
	return strings.TrimSpace(v)
}

func (t templateReader) instant(key string) (time.Time, error) {
	raw := t.str(key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("template_data missing %s", key)
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("template_data %s: %w", key, err)
	}
	return parsed, nil
}
