package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/booking"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/calendar"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/storage"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

type Booker interface {
	Book(ctx context.Context, req booking.Request) (model.Appointment, error)
}

type SlotIndex interface {
	AvailableSlots(ctx context.Context, date string) ([]model.TimeSlot, error)
	DoctorsOffering(ctx context.Context, date string) ([]string, error)
	TimesFor(ctx context.Context, date string, doctor string) ([]string, error)
}

type AppointmentStore interface {
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	ListByDate(ctx context.Context, date string) ([]model.Appointment, error)
	SetStatus(ctx context.Context, id string, status model.Status, events []outbox.Event) (model.Appointment, error)
}

type Handler struct {
	booker        Booker
	slots         SlotIndex
	store         AppointmentStore
	logger        *slog.Logger
	clinicAddress string
	now           func() time.Time
}

func New(booker Booker, slots SlotIndex, store AppointmentStore, clinicAddress string, logger *slog.Logger) *Handler {
	return &Handler{
		booker:        booker,
		slots:         slots,
		store:         store,
		logger:        logger,
		clinicAddress: clinicAddress,
		now:           time.Now,
	}
}

// RegisterPublic mounts the patient-facing routes; RegisterAdmin mounts
// the back-office ones. They are split so the caller can wrap the public
// surface with rate limiting and CORS without touching admin traffic.
func (h *Handler) RegisterPublic(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/public/slots", h.handleSlots)
	mux.HandleFunc("GET /api/v1/public/doctors", h.handleDoctors)
	mux.HandleFunc("GET /api/v1/public/times", h.handleTimes)
	mux.HandleFunc("POST /api/v1/public/book", h.handleBook)
}

func (h *Handler) RegisterAdmin(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/appointments", h.handleList)
	mux.HandleFunc("POST /api/v1/appointments/status", h.handleSetStatus)
	mux.HandleFunc("GET /api/v1/appointments/calendar", h.handleCalendar)
}

type slotDTO struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	DoctorName  string `json:"doctorName"`
	IsAvailable bool   `json:"isAvailable"`
}

type bookRequest struct {
	DoctorName      string `json:"doctorName"`
	TreatmentType   string `json:"treatmentType"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	PatientID       string `json:"patientId"`
	Notes           string `json:"notes"`
	PatientEmail    string `json:"patientEmail"`
	PatientPhone    string `json:"patientPhone"`
}

type appointmentDTO struct {
	ID              string `json:"id"`
	PatientID       string `json:"patientId,omitempty"`
	DoctorName      string `json:"doctorName"`
	TreatmentType   string `json:"treatmentType"`
	AppointmentDate string `json:"appointmentDate"`
	AppointmentTime string `json:"appointmentTime"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	EffectiveStatus string `json:"effectiveStatus"`
}

func (h *Handler) toDTO(a model.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorName:      a.DoctorName,
		TreatmentType:   string(a.Treatment),
		AppointmentDate: a.Date,
		AppointmentTime: a.TimeLabel,
		Status:          string(a.Status),
		Notes:           a.Notes,
		EffectiveStatus: model.EffectiveStatus(a, h.now()).Display(),
	}
}

func (h *Handler) handleSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	slots, err := h.slots.AvailableSlots(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]slotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotDTO{Date: s.Date, Time: s.TimeLabel, DoctorName: s.DoctorName, IsAvailable: s.Available})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (h *Handler) handleDoctors(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	doctors, err := h.slots.DoctorsOffering(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if doctors == nil {
		doctors = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (h *Handler) handleTimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, doctor := q.Get("date"), q.Get("doctor")
	if date == "" || doctor == "" {
		writeError(w, http.StatusBadRequest, "date and doctor are required")
		return
	}
	times, err := h.slots.TimesFor(r.Context(), date, doctor)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if times == nil {
		times = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"times": times})
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appt, err := h.booker.Book(r.Context(), booking.Request{
		DoctorName:      req.DoctorName,
		TreatmentType:   req.TreatmentType,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		PatientID:       req.PatientID,
		Notes:           req.Notes,
		PatientEmail:    req.PatientEmail,
		PatientPhone:    req.PatientPhone,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toDTO(appt))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	appts, err := h.store.ListByDate(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]appointmentDTO, 0, len(appts))
	for _, a := range appts {
		out = append(out, h.toDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

type setStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	status, ok := model.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "status must be pending, confirmed, cancelled or completed")
		return
	}

	current, err := h.store.GetByID(r.Context(), req.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	// A cancelled slot may already have been rebooked, so cancellation is
	// final. The record itself is never deleted.
	if current.Status == model.StatusCancelled && status != model.StatusCancelled {
		writeError(w, http.StatusConflict, "a cancelled appointment cannot be reopened")
		return
	}

	var events []outbox.Event
	if status == model.StatusCancelled && current.Status != model.StatusCancelled {
		ev, err := booking.AppointmentCancelledEvent(current, h.now())
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		events = append(events, ev)
	}

	updated, err := h.store.SetStatus(r.Context(), req.ID, status, events)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("appointment status changed",
		"appointment_id", updated.ID, "from", current.Status, "to", updated.Status)
	writeJSON(w, http.StatusOK, h.toDTO(updated))
}

type calendarDTO struct {
	Title        string    `json:"title"`
	StartInstant time.Time `json:"startInstant"`
	EndInstant   time.Time `json:"endInstant"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	appt, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	ev, err := calendar.FromAppointment(appt, h.clinicAddress)
	if err != nil {
		// Unparsable stored label means bad imported data, not bad input.
		h.logger.Error("stored appointment has unreadable time",
			"appointment_id", appt.ID, "time", appt.TimeLabel, "error", err)
		writeError(w, http.StatusInternalServerError, "appointment has an unreadable time on record")
		return
	}
	writeJSON(w, http.StatusOK, calendarDTO{
		Title:        ev.Title,
		StartInstant: ev.Start,
		EndInstant:   ev.End,
		Description:  ev.Description,
		Location:     ev.Location,
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrMissingField):
		writeError(w, http.StatusBadRequest, "doctorName, treatmentType, appointmentDate and appointmentTime are required")
	case errors.Is(err, model.ErrUnknownTreatment):
		writeError(w, http.StatusBadRequest, "unknown treatment type: choose one of the offered treatments")
	case errors.Is(err, timelabel.ErrMalformedTimeLabel):
		writeError(w, http.StatusBadRequest, "times must look like 10:00 AM and dates like 2025-01-20")
	case errors.Is(err, model.ErrSlotInPast):
		writeError(w, http.StatusUnprocessableEntity, "that time has already passed: pick an upcoming slot")
	case errors.Is(err, model.ErrSlotConflict):
		writeError(w, http.StatusConflict, "select a different time: this slot was just taken")
	case storage.IsNotFound(err):
		writeError(w, http.StatusNotFound, "appointment not found")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// WithClock overrides the time source. Test hook.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}
