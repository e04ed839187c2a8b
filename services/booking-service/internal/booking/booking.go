package booking

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

// Request is an inbound booking attempt. Only the first four fields are
// required; the rest enrich the record and drive reminders.
type Request struct {
	DoctorName      string
	TreatmentType   string
	AppointmentDate string
	AppointmentTime string
	PatientID       string
	Notes           string
	PatientEmail    string
	PatientPhone    string
}

// Store persists appointments. Create must write the appointment and its
// staged events in a single transaction and return model.ErrSlotConflict
// when the (doctor, date, time) triple is already held by a non-cancelled
// appointment. That constraint check is the final arbiter under
// concurrency; the coordinator's availability read is advisory.
type Store interface {
	Create(ctx context.Context, appt *model.Appointment, events []outbox.Event) error
}

// Slots is the availability read used for the pre-insert check.
type Slots interface {
	TimesFor(ctx context.Context, date string, doctor string) ([]string, error)
}

// Config carries the clinic identity stamped into calendar fields and
// the offsets before the slot at which reminders should fire.
type Config struct {
	ClinicName      string
	ClinicAddress   string
	ReminderOffsets []time.Duration
}

// Coordinator owns the booking write path: the validation sequence, the
// slot claim, and the events staged alongside it.
type Coordinator struct {
	store  Store
	slots  Slots
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator(store Store, slots Slots, cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		slots:  slots,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Book validates the request, claims the slot and persists the pending
// appointment. Validation failures surface exactly one error, in a fixed
// order: missing field, unknown treatment, malformed time label, slot in
// the past, slot conflict.
func (c *Coordinator) Book(ctx context.Context, req Request) (model.Appointment, error) {
	if strings.TrimSpace(req.DoctorName) == "" ||
		strings.TrimSpace(req.TreatmentType) == "" ||
		strings.TrimSpace(req.AppointmentDate) == "" ||
		strings.TrimSpace(req.AppointmentTime) == "" {
		return model.Appointment{}, model.ErrMissingField
	}

	treatment, ok := model.ParseTreatment(req.TreatmentType)
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: %q", model.ErrUnknownTreatment, req.TreatmentType)
	}

	start, err := timelabel.ToInstant(req.AppointmentDate, req.AppointmentTime)
	if err != nil {
		return model.Appointment{}, err
	}
	// Canonical form so "09:00 AM" and "9:00 AM" claim the same slot.
	label := timelabel.Label(start)

	now := c.now()
	if start.Before(now) {
		return model.Appointment{}, model.ErrSlotInPast
	}

	open, err := c.slots.TimesFor(ctx, req.AppointmentDate, req.DoctorName)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("availability check: %w", err)
	}
	if !slices.Contains(open, label) {
		return model.Appointment{}, model.ErrSlotConflict
	}

	appt := model.Appointment{
		ID:           uuid.NewString(),
		PatientID:    strings.TrimSpace(req.PatientID),
		DoctorName:   strings.TrimSpace(req.DoctorName),
		Treatment:    treatment,
		Date:         strings.TrimSpace(req.AppointmentDate),
		TimeLabel:    label,
		Status:       model.StatusPending,
		Notes:        strings.TrimSpace(req.Notes),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		StartTime:    start,
		EndTime:      timelabel.AddHours(start, 1),
		CreatedAt:    now,
	}

	events, err := c.buildEvents(appt, now)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("stage events: %w", err)
	}

	if err := c.store.Create(ctx, &appt, events); err != nil {
		return model.Appointment{}, err
	}

	c.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor", appt.DoctorName,
		"date", appt.Date,
		"time", appt.TimeLabel,
	)
	return appt, nil
}

// WithClock overrides the time source. Test hook.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}
