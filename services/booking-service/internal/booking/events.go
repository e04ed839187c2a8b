package booking

import (
	"encoding/json"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/calendar"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
)

// Event types published by this service. Topic names match event types.
const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventReminderRequested    = "booking.reminder.requested.v1"
)

const aggregateAppointment = "appointment"

type appointmentPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id,omitempty"`
	DoctorName      string    `json:"doctor_name"`
	TreatmentType   string    `json:"treatment_type"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	Status          string    `json:"status"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// reminderTemplate carries everything the reminder sender needs, start
// and end as RFC 3339 instants included, so consumers never re-parse
// 12-hour labels.
type reminderTemplate struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	ClinicName      string    `json:"clinic_name"`
	DoctorName      string    `json:"doctor_name"`
	TreatmentType   string    `json:"treatment_type"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

type reminderRequestedPayload struct {
	AppointmentID string           `json:"appointment_id"`
	Channel       string           `json:"channel"`
	Recipient     string           `json:"recipient"`
	RemindAt      time.Time        `json:"remind_at"`
	Template      reminderTemplate `json:"template_data"`
}

func appointmentEvent(eventType string, a model.Appointment, at time.Time) (outbox.Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		DoctorName:      a.DoctorName,
		TreatmentType:   string(a.Treatment),
		AppointmentDate: a.Date,
		AppointmentTime: a.TimeLabel,
		Status:          string(a.Status),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		OccurredAt:      at,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: aggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}

// AppointmentCancelledEvent stages the cancellation fact so reminder
// workers can drop any still-pending sends for the appointment.
func AppointmentCancelledEvent(a model.Appointment, at time.Time) (outbox.Event, error) {
	return appointmentEvent(EventAppointmentCancelled, a, at)
}

// buildEvents stages the booked fact plus one reminder request per
// configured offset and reachable channel. Reminders that would already
// be due are skipped rather than sent late.
func (c *Coordinator) buildEvents(a model.Appointment, now time.Time) ([]outbox.Event, error) {
	booked, err := appointmentEvent(EventAppointmentBooked, a, now)
	if err != nil {
		return nil, err
	}
	events := []outbox.Event{booked}

	cal, err := calendar.FromAppointment(a, c.cfg.ClinicAddress)
	if err != nil {
		return nil, err
	}
	tmpl := reminderTemplate{
		Title:           cal.Title,
		Description:     cal.Description,
		Location:        cal.Location,
		ClinicName:      c.cfg.ClinicName,
		DoctorName:      a.DoctorName,
		TreatmentType:   string(a.Treatment),
		AppointmentDate: a.Date,
		AppointmentTime: a.TimeLabel,
		StartTime:       cal.Start,
		EndTime:         cal.End,
	}

	type channel struct {
		name      string
		recipient string
	}
	channels := []channel{}
	if a.PatientEmail != "" {
		channels = append(channels, channel{name: "email", recipient: a.PatientEmail})
	}
	if a.PatientPhone != "" {
		channels = append(channels, channel{name: "sms", recipient: a.PatientPhone})
	}

	for _, offset := range c.cfg.ReminderOffsets {
		remindAt := a.StartTime.Add(-offset)
		if !remindAt.After(now) {
			continue
		}
		for _, ch := range channels {
			payload, err := json.Marshal(reminderRequestedPayload{
				AppointmentID: a.ID,
				Channel:       ch.name,
				Recipient:     ch.recipient,
				RemindAt:      remindAt,
				Template:      tmpl,
			})
			if err != nil {
				return nil, err
			}
			events = append(events, outbox.Event{
				AggregateType: aggregateAppointment,
				AggregateID:   a.ID,
				EventType:     EventReminderRequested,
				Payload:       payload,
			})
		}
	}
	return events, nil
}
