package model

import (
	"testing"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

func mustInstant(t *testing.T, date, label string) time.Time {
	t.Helper()
	instant, err := timelabel.ToInstant(date, label)
	if err != nil {
		t.Fatal(err)
	}
	return instant
}

func TestEffectiveStatus(t *testing.T) {
	now := mustInstant(t, "2025-06-10", "12:00 PM")

	cases := []struct {
		name   string
		status Status
		start  time.Time
		want   DisplayStatus
	}{
		{"pending in future", StatusPending, mustInstant(t, "2025-06-10", "2:00 PM"), DisplayPending},
		{"pending in past is missed", StatusPending, mustInstant(t, "2025-06-10", "9:00 AM"), DisplayMissed},
		{"pending exactly now stays pending", StatusPending, now, DisplayPending},
		{"confirmed in past stays confirmed", StatusConfirmed, mustInstant(t, "2025-06-09", "9:00 AM"), DisplayConfirmed},
		{"cancelled in past stays cancelled", StatusCancelled, mustInstant(t, "2025-06-09", "9:00 AM"), DisplayCancelled},
		{"completed in future stays completed", StatusCompleted, mustInstant(t, "2025-06-11", "9:00 AM"), DisplayCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Appointment{Status: tc.status, StartTime: tc.start}
			if got := EffectiveStatus(a, now); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEffectiveStatus_ParsesLabelWhenInstantMissing(t *testing.T) {
	now := mustInstant(t, "2025-06-10", "12:00 PM")
	a := Appointment{Status: StatusPending, Date: "2025-06-10", TimeLabel: "9:00 AM"}
	if got := EffectiveStatus(a, now); got != DisplayMissed {
		t.Fatalf("got %q, want missed", got)
	}
}

func TestDisplayStatus_Display(t *testing.T) {
	if got := DisplayMissed.Display(); got != "MISSED" {
		t.Fatalf("got %q", got)
	}
	if got := DisplayPending.Display(); got != "PENDING" {
		t.Fatalf("got %q", got)
	}
}

func TestParseTreatment(t *testing.T) {
	if _, ok := ParseTreatment("root-canal"); !ok {
		t.Fatal("root-canal should be offered")
	}
	if _, ok := ParseTreatment("Root-Canal"); ok {
		t.Fatal("treatment matching is exact")
	}
	if _, ok := ParseTreatment("acupuncture"); ok {
		t.Fatal("acupuncture is not offered")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "confirmed", "cancelled", "completed"} {
		if _, ok := ParseStatus(s); !ok {
			t.Errorf("%q should parse", s)
		}
	}
	if _, ok := ParseStatus("missed"); ok {
		t.Fatal("missed is derived, never stored")
	}
}
