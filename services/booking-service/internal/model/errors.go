package model

import "errors"

// Booking rejection reasons, ordered by the validation sequence. The
// malformed-label case lives in the timelabel package next to its parser.
var (
	ErrMissingField     = errors.New("missing required field")
	ErrUnknownTreatment = errors.New("unknown treatment type")
	ErrSlotInPast       = errors.New("slot is in the past")
	ErrSlotConflict     = errors.New("slot already taken")
)
