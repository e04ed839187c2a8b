package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/booking"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

type fakeBooker struct {
	appt model.Appointment
	err  error
	got  booking.Request
}

func (f *fakeBooker) Book(_ context.Context, req booking.Request) (model.Appointment, error) {
	f.got = req
	return f.appt, f.err
}

type fakeSlots struct {
	slots   []model.TimeSlot
	doctors []string
	times   []string
	err     error
}

func (f *fakeSlots) AvailableSlots(context.Context, string) ([]model.TimeSlot, error) {
	return f.slots, f.err
}
func (f *fakeSlots) DoctorsOffering(context.Context, string) ([]string, error) {
	return f.doctors, f.err
}
func (f *fakeSlots) TimesFor(context.Context, string, string) ([]string, error) {
	return f.times, f.err
}

type fakeStore struct {
	byID   map[string]model.Appointment
	events []outbox.Event
}

func (f *fakeStore) GetByID(_ context.Context, id string) (model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeStore) ListByDate(_ context.Context, date string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.byID {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id string, status model.Status, events []outbox.Event) (model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	a.Status = status
	f.byID[id] = a
	f.events = append(f.events, events...)
	return a, nil
}

func fixedClock(t *testing.T) func() time.Time {
	t.Helper()
	now, err := timelabel.ToInstant("2025-01-10", "8:00 AM")
	if err != nil {
		t.Fatal(err)
	}
	return func() time.Time { return now }
}

func newTestHandler(t *testing.T, booker Booker, slots SlotIndex, store AppointmentStore) *Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(booker, slots, store, "12 High Street", logger).WithClock(fixedClock(t))
}

func sampleAppointment() model.Appointment {
	start, _ := timelabel.ToInstant("2025-01-20", "10:00 AM")
	return model.Appointment{
		ID:         "appt-1",
		DoctorName: "Dr. Chen",
		Treatment:  model.TreatmentCleaning,
		Date:       "2025-01-20",
		TimeLabel:  "10:00 AM",
		Status:     model.StatusPending,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
}

func doRequest(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterPublic(mux)
	h.RegisterAdmin(mux)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleBook_Created(t *testing.T) {
	booker := &fakeBooker{appt: sampleAppointment()}
	h := newTestHandler(t, booker, &fakeSlots{}, &fakeStore{})

	rec := doRequest(h, http.MethodPost, "/api/v1/public/book",
		`{"doctorName":"Dr. Chen","treatmentType":"cleaning","appointmentDate":"2025-01-20","appointmentTime":"10:00 AM"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "pending" {
		t.Errorf("status field: got %v", got["status"])
	}
	if got["effectiveStatus"] != "PENDING" {
		t.Errorf("effectiveStatus: got %v", got["effectiveStatus"])
	}
	if booker.got.DoctorName != "Dr. Chen" {
		t.Errorf("request not passed through: %+v", booker.got)
	}
}

func TestHandleBook_ErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantPhrase string
	}{
		{model.ErrMissingField, http.StatusBadRequest, "required"},
		{model.ErrUnknownTreatment, http.StatusBadRequest, "treatment"},
		{timelabel.ErrMalformedTimeLabel, http.StatusBadRequest, "10:00 AM"},
		{model.ErrSlotInPast, http.StatusUnprocessableEntity, "already passed"},
		{model.ErrSlotConflict, http.StatusConflict, "just taken"},
	}
	for _, tc := range cases {
		h := newTestHandler(t, &fakeBooker{err: tc.err}, &fakeSlots{}, &fakeStore{})
		rec := doRequest(h, http.MethodPost, "/api/v1/public/book", `{"doctorName":"x"}`)
		if rec.Code != tc.wantStatus {
			t.Errorf("%v: got status %d, want %d", tc.err, rec.Code, tc.wantStatus)
		}
		if !strings.Contains(rec.Body.String(), tc.wantPhrase) {
			t.Errorf("%v: body %q missing %q", tc.err, rec.Body, tc.wantPhrase)
		}
	}
}

func TestHandleSlots(t *testing.T) {
	slots := &fakeSlots{slots: []model.TimeSlot{
		{Date: "2025-01-20", TimeLabel: "9:00 AM", DoctorName: "Dr. Chen", Available: true},
	}}
	h := newTestHandler(t, &fakeBooker{}, slots, &fakeStore{})

	rec := doRequest(h, http.MethodGet, "/api/v1/public/slots?date=2025-01-20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got struct {
		Slots []struct {
			Date        string `json:"date"`
			Time        string `json:"time"`
			DoctorName  string `json:"doctorName"`
			IsAvailable bool   `json:"isAvailable"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Slots) != 1 || got.Slots[0].Time != "9:00 AM" || !got.Slots[0].IsAvailable {
		t.Fatalf("unexpected slots payload: %s", rec.Body)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/public/slots", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing date: got %d", rec.Code)
	}
}

func TestHandleList_DerivesEffectiveStatus(t *testing.T) {
	past := sampleAppointment()
	past.ID = "appt-past"
	past.Date = "2025-01-05"
	start, _ := timelabel.ToInstant("2025-01-05", "10:00 AM")
	past.StartTime = start

	store := &fakeStore{byID: map[string]model.Appointment{past.ID: past}}
	h := newTestHandler(t, &fakeBooker{}, &fakeSlots{}, store)

	rec := doRequest(h, http.MethodGet, "/api/v1/appointments?date=2025-01-05", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"effectiveStatus":"MISSED"`) {
		t.Fatalf("expected MISSED in %s", rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"status":"pending"`) {
		t.Fatalf("stored status must stay pending: %s", rec.Body)
	}
}

func TestHandleSetStatus(t *testing.T) {
	appt := sampleAppointment()
	store := &fakeStore{byID: map[string]model.Appointment{appt.ID: appt}}
	h := newTestHandler(t, &fakeBooker{}, &fakeSlots{}, store)

	rec := doRequest(h, http.MethodPost, "/api/v1/appointments/status",
		`{"id":"appt-1","status":"cancelled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body)
	}
	if len(store.events) != 1 || store.events[0].EventType != booking.EventAppointmentCancelled {
		t.Fatalf("expected one cancelled event, got %+v", store.events)
	}

	// Cancellation is final.
	rec = doRequest(h, http.MethodPost, "/api/v1/appointments/status",
		`{"id":"appt-1","status":"confirmed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reopen: got %d, want 409", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/v1/appointments/status",
		`{"id":"missing","status":"confirmed"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing id: got %d, want 404", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/v1/appointments/status",
		`{"id":"appt-1","status":"missed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("derived status must be rejected: got %d", rec.Code)
	}
}

func TestHandleCalendar(t *testing.T) {
	appt := sampleAppointment()
	store := &fakeStore{byID: map[string]model.Appointment{appt.ID: appt}}
	h := newTestHandler(t, &fakeBooker{}, &fakeSlots{}, store)

	rec := doRequest(h, http.MethodGet, "/api/v1/appointments/calendar?id=appt-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got struct {
		Title        string    `json:"title"`
		StartInstant time.Time `json:"startInstant"`
		EndInstant   time.Time `json:"endInstant"`
		Location     string    `json:"location"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.EndInstant.Sub(got.StartInstant) != time.Hour {
		t.Errorf("expected one hour event, got %s", got.EndInstant.Sub(got.StartInstant))
	}
	if got.Location != "12 High Street" {
		t.Errorf("location: got %q", got.Location)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/appointments/calendar?id=nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing appointment: got %d", rec.Code)
	}

	bad := sampleAppointment()
	bad.ID = "appt-bad"
	bad.TimeLabel = "whenever"
	bad.StartTime = time.Time{}
	bad.EndTime = time.Time{}
	store.byID[bad.ID] = bad
	rec = doRequest(h, http.MethodGet, "/api/v1/appointments/calendar?id=appt-bad", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unreadable stored time: got %d, want 500", rec.Code)
	}
}
