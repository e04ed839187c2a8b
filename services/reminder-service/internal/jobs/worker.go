package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicbook-io/clinicbook/libs/db"
	otelx "github.com/clinicbook-io/clinicbook/libs/otel"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/email"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/sms"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/storage"
)

// Worker claims due reminder jobs and delivers them. The claim uses
// FOR UPDATE SKIP LOCKED, so multiple replicas can run the same loop
// without double-sending.
type Worker struct {
	pool          *db.Pool
	repo          *Repository
	outbox        outbox.Repository
	notifications *storage.NotificationsRepository
	email         email.Sender
	sms           sms.Sender
	logger        *slog.Logger
	interval      time.Duration
	batchSize     int
	backoff       time.Duration
	now           func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

// Event types published about delivery outcomes.
const (
	EventNotificationSent   = "reminder.notification.sent.v1"
	EventNotificationFailed = "reminder.notification.failed.v1"
)

func NewWorker(pool *db.Pool, repo *Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Minute
	}
	return &Worker{
		pool:          pool,
		repo:          repo,
		notifications: storage.NewNotificationsRepository(),
		email:         emailSender,
		sms:           smsSender,
		logger:        logger,
		interval:      cfg.Interval,
		batchSize:     cfg.BatchSize,
		backoff:       cfg.Backoff,
		now:           time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("reminder batch failed", "error", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return tx.Commit(ctx)
	}

	var sent []int64
	for _, job := range due {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)

		subject, provider, deliverErr := w.deliver(jobCtx, job)
		if deliverErr != nil {
			attempts := job.Attempts + 1
			w.logger.Warn("reminder delivery failed",
				"appointment_id", job.AppointmentID, "channel", job.Channel,
				"attempt", attempts, "error", deliverErr)
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts,
				w.now().Add(w.backoff), deliverErr.Error()); err != nil {
				return err
			}
			if attempts >= job.MaxAttempts {
				if err := w.recordOutcome(jobCtx, tx, job, subject, provider, "failed", deliverErr.Error()); err != nil {
					return err
				}
			}
			continue
		}

		if err := w.recordOutcome(jobCtx, tx, job, subject, provider, "sent", ""); err != nil {
			return err
		}
		sent = append(sent, job.ID)
	}

	if err := w.repo.MarkSent(ctx, tx, sent); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	if len(sent) > 0 {
		w.logger.Info("reminders sent", "count", len(sent))
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, job Job) (subject string, provider string, err error) {
	msg, err := BuildMessage(job, w.now())
	if err != nil {
		return "", "", err
	}
	switch job.Channel {
	case "email":
		return msg.Subject, "smtp", w.email.Send(job.Recipient, msg.Subject, msg.Text, msg.ICS)
	case "sms":
		return msg.Subject, w.sms.ProviderID(), w.sms.Send(ctx, job.Recipient, msg.SMS)
	default:
		return "", "", fmt.Errorf("unknown channel %q", job.Channel)
	}
}

// recordOutcome writes the audit row and stages the outcome event in the
// batch transaction.
func (w *Worker) recordOutcome(ctx context.Context, tx pgx.Tx, job Job, subject string, provider string, status string, reason string) error {
	if err := w.notifications.Insert(ctx, tx, storage.Notification{
		AppointmentID: job.AppointmentID,
		Channel:       job.Channel,
		Recipient:     job.Recipient,
		Provider:      provider,
		Subject:       subject,
		Status:        status,
		Error:         reason,
	}); err != nil {
		return err
	}

	eventType := EventNotificationSent
	if status != "sent" {
		eventType = EventNotificationFailed
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id": job.AppointmentID,
		"channel":        job.Channel,
		"recipient":      job.Recipient,
		"provider":       provider,
		"status":         status,
		"reason":         reason,
		"occurred_at":    w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reminder_job",
		AggregateID:   job.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	})
}
