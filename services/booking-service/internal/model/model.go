package model

import "time"

// Treatment is an offered treatment type. The catalog is fixed; requests
// naming anything else are rejected.
type Treatment string

const (
	TreatmentCleaning     Treatment = "cleaning"
	TreatmentCheckup      Treatment = "checkup"
	TreatmentFilling      Treatment = "filling"
	TreatmentRootCanal    Treatment = "root-canal"
	TreatmentCrown        Treatment = "crown"
	TreatmentExtraction   Treatment = "extraction"
	TreatmentOrthodontics Treatment = "orthodontics"
)

// Treatments lists the catalog in display order.
var Treatments = []Treatment{
	TreatmentCleaning,
	TreatmentCheckup,
	TreatmentFilling,
	TreatmentRootCanal,
	TreatmentCrown,
	TreatmentExtraction,
	TreatmentOrthodontics,
}

func ParseTreatment(s string) (Treatment, bool) {
	for _, t := range Treatments {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Status is a stored appointment status. "missed" is never stored; it is
// derived at read time, see EffectiveStatus.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return Status(s), true
	}
	return "", false
}

// Appointment is a booked slot claim. Date and TimeLabel are the wire
// representations; StartTime and EndTime are the derived instants so
// downstream consumers never re-parse the 12-hour label.
type Appointment struct {
	ID           string
	PatientID    string
	DoctorName   string
	Treatment    Treatment
	Date         string // YYYY-MM-DD
	TimeLabel    string // "10:00 AM"
	Status       Status
	Notes        string
	PatientEmail string
	PatientPhone string
	StartTime    time.Time
	EndTime      time.Time
	CreatedAt    time.Time
}

// TimeSlot is one bookable (date, time, doctor) combination.
type TimeSlot struct {
	Date       string
	TimeLabel  string
	DoctorName string
	Available  bool
}
