package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/clinicbook-io/clinicbook/libs/config"
	"github.com/clinicbook-io/clinicbook/libs/db"
	"github.com/clinicbook-io/clinicbook/libs/kafkax"
	otelx "github.com/clinicbook-io/clinicbook/libs/otel"
	"github.com/clinicbook-io/clinicbook/libs/runtime"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/consumer"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/email"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/inbox"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/jobs"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/outbox"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/sms"
)

const serviceName = "reminder-service"

// Topics consumed from the booking side.
const (
	topicReminderRequested    = "booking.reminder.requested.v1"
	topicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

func main() {
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	port, err := config.Port("PORT", "8081")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	brokers := config.String("KAFKA_BROKERS", "localhost:9092")

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, databaseURL)
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	jobsRepo := jobs.NewRepository()

	emailSender := email.NewSMTPSender(
		config.String("SMTP_HOST", "localhost"),
		config.String("SMTP_PORT", "1025"),
		config.String("SMTP_FROM", ""),
	)
	var smsSender sms.Sender
	if webhookURL := config.String("SMS_WEBHOOK_URL", ""); webhookURL != "" {
		smsSender = sms.NewWebhookSender(webhookURL,
			config.String("SMS_WEBHOOK_TOKEN", ""),
			config.String("CLINIC_NAME", "ClinicBook Dental"))
	} else {
		smsSender = sms.NewNoopSender()
	}

	worker := jobs.NewWorker(pool, jobsRepo, emailSender, smsSender, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("WORKER_INTERVAL_SECONDS", 5)) * time.Second,
		BatchSize: config.Int("WORKER_BATCH_SIZE", 25),
		Backoff:   time.Duration(config.Int("WORKER_BACKOFF_SECONDS", 120)) * time.Second,
	})
	go worker.Run(ctx)

	publisher := outbox.NewPublisher(pool, kafkax.SplitBrokers(brokers), logger)
	go publisher.Run(ctx)

	cons := consumer.New(consumer.Config{
		Brokers: brokers,
		GroupID: serviceName,
		Topics:  []string{topicReminderRequested, topicAppointmentCancelled},
	}, inbox.NewRepository(pool), logger)
	cons.Handle(topicReminderRequested, onReminderRequested(pool, jobsRepo))
	cons.Handle(topicAppointmentCancelled, onAppointmentCancelled(pool, jobsRepo, logger))
	go cons.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "postgres", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type reminderRequested struct {
	AppointmentID string         `json:"appointment_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      time.Time      `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

func onReminderRequested(pool *db.Pool, repo *jobs.Repository) consumer.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var req reminderRequested
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return err
		}
		if req.AppointmentID == "" || req.Recipient == "" {
			return errors.New("reminder request missing appointment_id or recipient")
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		err = repo.Insert(ctx, tx, jobs.Job{
			IdempotencyKey: req.AppointmentID + "|" + req.Channel + "|" + req.RemindAt.UTC().Format(time.RFC3339),
			AppointmentID:  req.AppointmentID,
			Channel:        req.Channel,
			Recipient:      req.Recipient,
			RemindAt:       req.RemindAt,
			TemplateData:   req.TemplateData,
		})
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
}

type appointmentCancelled struct {
	AppointmentID string `json:"appointment_id"`
}

func onAppointmentCancelled(pool *db.Pool, repo *jobs.Repository, logger *slog.Logger) consumer.HandlerFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev appointmentCancelled
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return err
		}
		if ev.AppointmentID == "" {
			return errors.New("cancelled event missing appointment_id")
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		dropped, err := repo.CancelForAppointment(ctx, tx, ev.AppointmentID)
		if err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		if dropped > 0 {
			logger.Info("pending reminders dropped", "appointment_id", ev.AppointmentID, "count", dropped)
		}
		return nil
	}
}
