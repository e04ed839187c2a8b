package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Notification is the audit record of one reminder delivery attempt.
type Notification struct {
	AppointmentID string
	Channel       string
	Recipient     string
	Provider      string
	Subject       string
	Status        string // sent or failed
	Error         string
}

type NotificationsRepository struct{}

func NewNotificationsRepository() *NotificationsRepository {
	return &NotificationsRepository{}
}

// Insert writes the attempt inside the worker's transaction so the job
// state change and its audit row commit together.
func (r *NotificationsRepository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications
			(appointment_id, channel, recipient, provider, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
	`, n.AppointmentID, n.Channel, n.Recipient, n.Provider, n.Subject, n.Status, n.Error)
	return err
}
