package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

// Event holds the semantic fields of a calendar entry. Rendering into a
// provider URL or an ICS document is the consumer's concern.
type Event struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
}

// FromAppointment projects an appointment into a calendar event. Pure;
// the end instant is the start plus one hour since appointments carry no
// duration. Fails only when a stored time label cannot be parsed, which
// signals bad external data rather than a coordinator bug.
func FromAppointment(a model.Appointment, location string) (Event, error) {
	start := a.StartTime
	if start.IsZero() {
		parsed, err := timelabel.ToInstant(a.Date, a.TimeLabel)
		if err != nil {
			return Event{}, err
		}
		start = parsed
	}
	end := a.EndTime
	if end.IsZero() {
		end = timelabel.AddHours(start, 1)
	}

	description := fmt.Sprintf("%s with %s on %s at %s.", a.Treatment, a.DoctorName, a.Date, a.TimeLabel)
	if notes := strings.TrimSpace(a.Notes); notes != "" {
		description += " Notes: " + notes
	}

	return Event{
		Title:       fmt.Sprintf("Dental appointment: %s with %s", a.Treatment, a.DoctorName),
		Start:       start,
		End:         end,
		Description: description,
		Location:    location,
	}, nil
}
