package timelabel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates (ISO, no time component).
const DateLayout = "2006-01-02"

// ErrMalformedTimeLabel reports a 12-hour clock label (or its anchoring
// date) that does not match the expected shape. Callers treat it as a
// rejected request, never a crash.
var ErrMalformedTimeLabel = errors.New("malformed time label")

// ToInstant anchors a 12-hour clock label ("10:00 AM") to local midnight
// of the given calendar date. 12:MM AM maps to hour 0 and 12:MM PM to
// hour 12; seconds are always zero.
func ToInstant(date string, label string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q", ErrMalformedTimeLabel, date)
	}

	hour, minute, err := parseLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.Local), nil
}

// AddHours returns the instant offset by n whole hours. Appointments have
// no stored duration, so end instants are derived with a fixed offset.
func AddHours(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Hour)
}

// Label formats an instant back into its 12-hour label ("3:04 PM" form).
func Label(t time.Time) string {
	return t.Format("3:04 PM")
}

func parseLabel(label string) (hour int, minute int, err error) {
	clock, marker, ok := strings.Cut(strings.TrimSpace(label), " ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q (missing AM/PM marker)", ErrMalformedTimeLabel, label)
	}

	marker = strings.ToUpper(strings.TrimSpace(marker))
	if marker != "AM" && marker != "PM" {
		return 0, 0, fmt.Errorf("%w: %q (marker must be AM or PM)", ErrMalformedTimeLabel, label)
	}

	hs, ms, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q (missing separator)", ErrMalformedTimeLabel, label)
	}

	h, err := strconv.Atoi(hs)
	if err != nil || h < 1 || h > 12 {
		return 0, 0, fmt.Errorf("%w: %q (hour must be 1-12)", ErrMalformedTimeLabel, label)
	}
	if len(ms) != 2 {
		return 0, 0, fmt.Errorf("%w: %q (minutes must be two digits)", ErrMalformedTimeLabel, label)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q (minutes must be 00-59)", ErrMalformedTimeLabel, label)
	}

	switch {
	case marker == "AM" && h == 12:
		h = 0
	case marker == "PM" && h != 12:
		h += 12
	}
	return h, m, nil
}
