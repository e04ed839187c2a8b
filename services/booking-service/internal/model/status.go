package model

import (
	"strings"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

// DisplayStatus is a status as shown to a reader. It covers the stored
// statuses plus the derived "missed" state.
type DisplayStatus string

const (
	DisplayPending   DisplayStatus = "pending"
	DisplayConfirmed DisplayStatus = "confirmed"
	DisplayCancelled DisplayStatus = "cancelled"
	DisplayCompleted DisplayStatus = "completed"
	DisplayMissed    DisplayStatus = "missed"
)

// Display returns the uppercased form for UI rendering.
func (d DisplayStatus) Display() string {
	return strings.ToUpper(string(d))
}

// EffectiveStatus derives the status to show at the given instant. A
// pending appointment whose slot is strictly in the past reads as missed;
// a pending appointment at the exact slot instant is still pending. All
// other stored statuses pass through unchanged regardless of time.
func EffectiveStatus(a Appointment, now time.Time) DisplayStatus {
	if a.Status != StatusPending {
		return DisplayStatus(a.Status)
	}

	start := a.StartTime
	if start.IsZero() {
		parsed, err := timelabel.ToInstant(a.Date, a.TimeLabel)
		if err != nil {
			return DisplayPending
		}
		start = parsed
	}
	if start.Before(now) {
		return DisplayMissed
	}
	return DisplayPending
}
