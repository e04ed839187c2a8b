package booking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

// fakeStore keeps appointments in memory and enforces the slot uniqueness
// constraint under a mutex, the same contract the database index gives
// the real repository. It also serves the availability read.
type fakeStore struct {
	mu       sync.Mutex
	template []string
	doctors  []string
	byTriple map[string]model.Appointment
	events   []outbox.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		template: []string{"9:00 AM", "10:00 AM", "2:00 PM"},
		doctors:  []string{"Dr. Chen", "Dr. Patel"},
		byTriple: make(map[string]model.Appointment),
	}
}

func tripleKey(doctor, date, label string) string {
	return doctor + "|" + date + "|" + label
}

func (f *fakeStore) Create(_ context.Context, appt *model.Appointment, events []outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := tripleKey(appt.DoctorName, appt.Date, appt.TimeLabel)
	if existing, ok := f.byTriple[key]; ok && existing.Status != model.StatusCancelled {
		return model.ErrSlotConflict
	}
	f.byTriple[key] = *appt
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) TimesFor(_ context.Context, date string, doctor string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	known := false
	for _, d := range f.doctors {
		if d == doctor {
			known = true
		}
	}
	if !known {
		return nil, nil
	}
	var open []string
	for _, label := range f.template {
		existing, taken := f.byTriple[tripleKey(doctor, date, label)]
		if taken && existing.Status != model.StatusCancelled {
			continue
		}
		open = append(open, label)
	}
	return open, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, store *fakeStore) *Coordinator {
	t.Helper()
	now, err := timelabel.ToInstant("2025-01-10", "8:00 AM")
	if err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		ClinicName:      "ClinicBook Dental",
		ClinicAddress:   "12 High Street",
		ReminderOffsets: []time.Duration{24 * time.Hour, time.Hour},
	}
	return NewCoordinator(store, store, cfg, testLogger()).WithClock(func() time.Time { return now })
}

func validRequest() Request {
	return Request{
		DoctorName:      "Dr. Chen",
		TreatmentType:   "cleaning",
		AppointmentDate: "2025-01-20",
		AppointmentTime: "10:00 AM",
		PatientEmail:    "pat@example.com",
	}
}

func TestBook_Succeeds(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(t, store)

	appt, err := coord.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if appt.ID == "" {
		t.Error("expected a fresh id")
	}
	if appt.Status != model.StatusPending {
		t.Errorf("status: got %q, want pending", appt.Status)
	}
	if appt.EndTime.Sub(appt.StartTime) != time.Hour {
		t.Errorf("expected one hour duration, got %s", appt.EndTime.Sub(appt.StartTime))
	}

	// Same triple immediately after must conflict.
	if _, err := coord.Book(context.Background(), validRequest()); !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict on repeat, got %v", err)
	}
}

func TestBook_ValidationOrder(t *testing.T) {
	coord := newTestCoordinator(t, newFakeStore())
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*Request)
		wantErr error
	}{
		{"missing doctor", func(r *Request) { r.DoctorName = "" }, model.ErrMissingField},
		{"missing time", func(r *Request) { r.AppointmentTime = "" }, model.ErrMissingField},
		{"missing beats unknown treatment", func(r *Request) {
			r.DoctorName = ""
			r.TreatmentType = "acupuncture"
		}, model.ErrMissingField},
		{"unknown treatment", func(r *Request) { r.TreatmentType = "acupuncture" }, model.ErrUnknownTreatment},
		{"unknown treatment beats bad label", func(r *Request) {
			r.TreatmentType = "acupuncture"
			r.AppointmentTime = "25:00"
		}, model.ErrUnknownTreatment},
		{"bad label", func(r *Request) { r.AppointmentTime = "25:00" }, timelabel.ErrMalformedTimeLabel},
		{"bad label beats past", func(r *Request) {
			r.AppointmentDate = "2020-01-01"
			r.AppointmentTime = "25:00"
		}, timelabel.ErrMalformedTimeLabel},
		{"past slot", func(r *Request) { r.AppointmentDate = "2020-01-01" }, model.ErrSlotInPast},
		{"unknown doctor conflicts", func(r *Request) { r.DoctorName = "Dr. Nobody" }, model.ErrSlotConflict},
		{"time outside template conflicts", func(r *Request) { r.AppointmentTime = "11:30 PM" }, model.ErrSlotConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if _, err := coord.Book(ctx, req); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestBook_PastSlotFailsEvenWhenFree(t *testing.T) {
	coord := newTestCoordinator(t, newFakeStore())
	req := validRequest()
	req.AppointmentDate = "2025-01-09" // free, but before the frozen clock
	if _, err := coord.Book(context.Background(), req); !errors.Is(err, model.ErrSlotInPast) {
		t.Fatalf("got %v, want ErrSlotInPast", err)
	}
}

func TestBook_NormalizesLabel(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(t, store)

	req := validRequest()
	req.AppointmentTime = "09:00 AM"
	appt, err := coord.Book(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if appt.TimeLabel != "9:00 AM" {
		t.Fatalf("label not canonicalized: %q", appt.TimeLabel)
	}

	req.AppointmentTime = "9:00 AM"
	if _, err := coord.Book(context.Background(), req); !errors.Is(err, model.ErrSlotConflict) {
		t.Fatalf("padded and plain labels must claim the same slot, got %v", err)
	}
}

func TestBook_StagesEvents(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(t, store)

	appt, err := coord.Book(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}

	var types []string
	for _, e := range store.events {
		types = append(types, e.EventType)
		if e.AggregateID != appt.ID {
			t.Errorf("event %s has aggregate %q, want %q", e.EventType, e.AggregateID, appt.ID)
		}
	}
	// One booked fact plus one email reminder per offset (no phone given).
	want := []string{EventAppointmentBooked, EventReminderRequested, EventReminderRequested}
	if len(types) != len(want) {
		t.Fatalf("got event types %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("got event types %v, want %v", types, want)
		}
	}

	var reminder reminderRequestedPayload
	if err := json.Unmarshal(store.events[1].Payload, &reminder); err != nil {
		t.Fatal(err)
	}
	if reminder.Channel != "email" || reminder.Recipient != "pat@example.com" {
		t.Fatalf("unexpected reminder target: %+v", reminder)
	}
	if !reminder.RemindAt.Equal(appt.StartTime.Add(-24 * time.Hour)) {
		t.Fatalf("remind_at: got %s", reminder.RemindAt)
	}
	if reminder.Template.Title == "" || reminder.Template.StartTime.IsZero() {
		t.Fatalf("template data incomplete: %+v", reminder.Template)
	}
}

func TestBook_SkipsRemindersAlreadyDue(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(t, store)

	// Slot is ~26h out with a frozen clock at 2025-01-10 8:00 AM, so the
	// 7-day reminder would already be due and must be dropped.
	cfg := Config{
		ClinicName:      "ClinicBook Dental",
		ReminderOffsets: []time.Duration{7 * 24 * time.Hour, time.Hour},
	}
	coord.cfg = cfg

	req := validRequest()
	req.AppointmentDate = "2025-01-11"
	if _, err := coord.Book(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	reminders := 0
	for _, e := range store.events {
		if e.EventType == EventReminderRequested {
			reminders++
		}
	}
	if reminders != 1 {
		t.Fatalf("expected 1 reminder, got %d", reminders)
	}
}

func TestBook_ConcurrentSameTripleSingleWinner(t *testing.T) {
	store := newFakeStore()
	coord := newTestCoordinator(t, store)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Book(context.Background(), validRequest())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, model.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != attempts-1 {
		t.Fatalf("got %d wins and %d conflicts, want 1 and %d", wins, conflicts, attempts-1)
	}
}
