package jobs

import (
	"strings"
	"testing"
	"time"
)

func sampleJob() Job {
	return Job{
		ID:             1,
		IdempotencyKey: "appt-1|email|2025-01-14T14:00:00Z",
		AppointmentID:  "appt-1",
		Channel:        "email",
		Recipient:      "pat@example.com",
		TemplateData: map[string]any{
			"title":            "Dental appointment: cleaning with Dr. Chen",
			"description":      "cleaning with Dr. Chen on 2025-01-15 at 2:00 PM.",
			"location":         "12 High Street",
			"clinic_name":      "ClinicBook Dental",
			"doctor_name":      "Dr. Chen",
			"treatment_type":   "cleaning",
			"appointment_date": "2025-01-15",
			"appointment_time": "2:00 PM",
			"start_time":       "2025-01-15T14:00:00Z",
			"end_time":         "2025-01-15T15:00:00Z",
		},
	}
}

func TestBuildMessage(t *testing.T) {
	msg, err := BuildMessage(sampleJob(), time.Date(2025, 1, 14, 14, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}

	if msg.Subject != "Appointment reminder: 2025-01-15 at 2:00 PM" {
		t.Errorf("subject: got %q", msg.Subject)
	}
	for _, want := range []string{"ClinicBook Dental", "Dr. Chen", "cleaning", "calendar.google.com"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("text missing %q:\n%s", want, msg.Text)
		}
	}
	if !strings.Contains(msg.SMS, "2:00 PM") || len(msg.SMS) > 200 {
		t.Errorf("sms body off: %q", msg.SMS)
	}
	if !strings.Contains(msg.ICS, "DTSTART:20250115T140000Z") {
		t.Errorf("ics missing start:\n%s", msg.ICS)
	}
}

func TestBuildMessage_MissingInstants(t *testing.T) {
	job := sampleJob()
	delete(job.TemplateData, "start_time")
	if _, err := BuildMessage(job, time.Now()); err == nil {
		t.Fatal("expected error for missing start_time")
	}

	job = sampleJob()
	job.TemplateData["end_time"] = "tomorrow"
	if _, err := BuildMessage(job, time.Now()); err == nil {
		t.Fatal("expected error for unparsable end_time")
	}
}
