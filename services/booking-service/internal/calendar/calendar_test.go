package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

func TestFromAppointment(t *testing.T) {
	a := model.Appointment{
		DoctorName: "Dr. Chen",
		Treatment:  model.TreatmentCleaning,
		Date:       "2025-01-15",
		TimeLabel:  "2:00 PM",
		Notes:      "sensitive molar",
	}
	ev, err := FromAppointment(a, "12 High Street")
	if err != nil {
		t.Fatal(err)
	}

	wantStart := time.Date(2025, time.January, 15, 14, 0, 0, 0, time.Local)
	wantEnd := time.Date(2025, time.January, 15, 15, 0, 0, 0, time.Local)
	if !ev.Start.Equal(wantStart) {
		t.Errorf("start: got %s, want %s", ev.Start, wantStart)
	}
	if !ev.End.Equal(wantEnd) {
		t.Errorf("end: got %s, want %s", ev.End, wantEnd)
	}
	if !strings.Contains(ev.Title, "cleaning") || !strings.Contains(ev.Title, "Dr. Chen") {
		t.Errorf("title missing treatment or doctor: %q", ev.Title)
	}
	if !strings.Contains(ev.Description, "sensitive molar") {
		t.Errorf("description missing notes: %q", ev.Description)
	}
	if ev.Location != "12 High Street" {
		t.Errorf("location: got %q", ev.Location)
	}
}

func TestFromAppointment_PrefersStoredInstants(t *testing.T) {
	start := time.Date(2025, time.March, 3, 9, 0, 0, 0, time.Local)
	a := model.Appointment{
		DoctorName: "Dr. Patel",
		Treatment:  model.TreatmentCheckup,
		Date:       "2025-03-03",
		TimeLabel:  "9:00 AM",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
	ev, err := FromAppointment(a, "")
	if err != nil {
		t.Fatal(err)
	}
	if !ev.Start.Equal(start) || !ev.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected stored instants to pass through, got %s / %s", ev.Start, ev.End)
	}
}

func TestFromAppointment_MalformedStoredLabel(t *testing.T) {
	a := model.Appointment{Date: "2025-01-15", TimeLabel: "half past two"}
	if _, err := FromAppointment(a, ""); !errors.Is(err, timelabel.ErrMalformedTimeLabel) {
		t.Fatalf("expected ErrMalformedTimeLabel, got %v", err)
	}
}
