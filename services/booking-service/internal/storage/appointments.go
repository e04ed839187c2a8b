package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbook-io/clinicbook/libs/db"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/availability"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/model"
	"github.com/clinicbook-io/clinicbook/services/booking-service/internal/outbox"
)

const dateLayout = "2006-01-02"

// AppointmentRepository is the pgx-backed appointment store. A partial
// unique index on (doctor_name, appointment_date, appointment_time) for
// non-cancelled rows makes the insert itself the commit-time availability
// check.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id, COALESCE(patient_id, ''), doctor_name, treatment_type,
	appointment_date, appointment_time, status, notes,
	patient_email, patient_phone, start_time, end_time, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var date time.Time
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorName, (*string)(&a.Treatment),
		&date, &a.TimeLabel, (*string)(&a.Status), &a.Notes,
		&a.PatientEmail, &a.PatientPhone, &a.StartTime, &a.EndTime, &a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Date = date.Format(dateLayout)
	return a, nil
}

// Create inserts the appointment and its staged events in one
// transaction. A unique or exclusion violation on the slot index maps to
// model.ErrSlotConflict.
func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment, events []outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_name, treatment_type, appointment_date,
			 appointment_time, status, notes, patient_email, patient_phone,
			 start_time, end_time, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		appt.ID, appt.PatientID, appt.DoctorName, string(appt.Treatment), appt.Date,
		appt.TimeLabel, string(appt.Status), appt.Notes, appt.PatientEmail, appt.PatientPhone,
		appt.StartTime, appt.EndTime, appt.CreatedAt,
	)
	if err != nil {
		if isSlotTaken(err) {
			return model.ErrSlotConflict
		}
		return err
	}

	for _, e := range events {
		if err := r.outbox.Insert(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// ListByDate returns every appointment on the date, cancelled included,
// ordered by slot instant then doctor.
func (r *AppointmentRepository) ListByDate(ctx context.Context, date string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1
		ORDER BY start_time, doctor_name`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// ListBookedPairs feeds the availability index: the (doctor, time) pairs
// consumed by non-cancelled appointments on the date.
func (r *AppointmentRepository) ListBookedPairs(ctx context.Context, date string) ([]availability.Pair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_name, appointment_time
		FROM appointments
		WHERE appointment_date = $1 AND status <> 'cancelled'`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []availability.Pair
	for rows.Next() {
		var p availability.Pair
		if err := rows.Scan(&p.DoctorName, &p.TimeLabel); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (r *AppointmentRepository) ListDoctors(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name FROM doctors WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SetStatus updates the stored status and stages the given events in the
// same transaction. Returns the updated appointment.
func (r *AppointmentRepository) SetStatus(ctx context.Context, id string, status model.Status, events []outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status))
	a, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}

	for _, e := range events {
		if err := r.outbox.Insert(ctx, tx, e); err != nil {
			return model.Appointment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isSlotTaken(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" || pgErr.Code == "23P01"
	}
	return false
}
