package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/timelabel"
)

// Pair identifies one (doctor, time) combination on a given date.
type Pair struct {
	DoctorName string
	TimeLabel  string
}

// Source supplies the roster and the pairs already consumed by
// non-cancelled appointments. Implemented by the appointment repository.
type Source interface {
	ListDoctors(ctx context.Context) ([]string, error)
	ListBookedPairs(ctx context.Context, date string) ([]Pair, error)
}

// Index answers "what can still be booked on this date". It is a
// read-only projection: the operating template of time labels crossed
// with the roster, minus every pair held by a non-cancelled appointment,
// minus anything already in the past. Ordering is time ascending with
// ties broken by doctor name, so repeated queries under no state change
// return identical sequences.
type Index struct {
	source Source
	labels []string
	now    func() time.Time
}

// NewIndex validates and chronologically sorts the operating template.
func NewIndex(source Source, template []string) (*Index, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("availability: empty slot template")
	}
	const refDate = "2000-01-01"
	type entry struct {
		label   string
		instant time.Time
	}
	entries := make([]entry, 0, len(template))
	seen := make(map[string]bool, len(template))
	for _, label := range template {
		instant, err := timelabel.ToInstant(refDate, label)
		if err != nil {
			return nil, fmt.Errorf("availability: bad template entry %q: %w", label, err)
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		entries = append(entries, entry{label: label, instant: instant})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].instant.Before(entries[j].instant) })

	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.label
	}
	return &Index{source: source, labels: labels, now: time.Now}, nil
}

// AvailableSlots returns every still-open slot for the date. Every
// returned slot has Available set; unavailable pairs are simply absent.
func (ix *Index) AvailableSlots(ctx context.Context, date string) ([]model.TimeSlot, error) {
	now := ix.now()

	doctors, err := ix.source.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(doctors)

	booked, err := ix.source.ListBookedPairs(ctx, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[Pair]bool, len(booked))
	for _, p := range booked {
		taken[p] = true
	}

	var slots []model.TimeSlot
	for _, label := range ix.labels {
		instant, err := timelabel.ToInstant(date, label)
		if err != nil {
			return nil, err
		}
		if instant.Before(now) {
			continue
		}
		for _, doctor := range doctors {
			if taken[Pair{DoctorName: doctor, TimeLabel: label}] {
				continue
			}
			slots = append(slots, model.TimeSlot{
				Date:       date,
				TimeLabel:  label,
				DoctorName: doctor,
				Available:  true,
			})
		}
	}
	return slots, nil
}

// DoctorsOffering returns the doctors with at least one open slot on the
// date, sorted by name. Empty when the whole day is taken or past.
func (ix *Index) DoctorsOffering(ctx context.Context, date string) ([]string, error) {
	slots, err := ix.AvailableSlots(ctx, date)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var doctors []string
	for _, s := range slots {
		if !seen[s.DoctorName] {
			seen[s.DoctorName] = true
			doctors = append(doctors, s.DoctorName)
		}
	}
	sort.Strings(doctors)
	return doctors, nil
}

// TimesFor returns the open time labels for one doctor on the date,
// chronologically ordered.
func (ix *Index) TimesFor(ctx context.Context, date string, doctor string) ([]string, error) {
	slots, err := ix.AvailableSlots(ctx, date)
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, s := range slots {
		if s.DoctorName == doctor {
			labels = append(labels, s.TimeLabel)
		}
	}
	return labels, nil
}

// WithClock overrides the time source. Test hook.
func (ix *Index) WithClock(now func() time.Time) *Index {
	ix.now = now
	return ix
}
