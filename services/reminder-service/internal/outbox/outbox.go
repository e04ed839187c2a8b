package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/clinicbook-io/clinicbook/libs/db"
	otelx "github.com/clinicbook-io/clinicbook/libs/otel"
)

// Event is a fact staged for publication alongside the state change that
// produced it.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type record struct {
	id          int64
	eventID     string
	aggregateID string
	eventType   string
	payload     []byte
	traceparent string
	tracestate  string
}

type Repository struct{}

func (Repository) Insert(ctx context.Context, tx pgx.Tx, e Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO reminder_outbox_events
			(event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), e.AggregateType, e.AggregateID, e.EventType, e.Payload, traceparent, tracestate,
	)
	return err
}

// Publisher drains reminder_outbox_events to Kafka, topic per event type.
type Publisher struct {
	pool   *db.Pool
	writer *kafka.Writer
	repo   Repository
	logger *slog.Logger
}

func NewPublisher(pool *db.Pool, brokers []string, logger *slog.Logger) *Publisher {
	return &Publisher{
		pool: pool,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.writer.Close()
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("reminder outbox drain failed", "error", err)
			}
		}
	}
}

func (p *Publisher) drain(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload,
		       COALESCE(traceparent, ''), COALESCE(tracestate, '')
		FROM reminder_outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT 50
		FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return err
	}

	var records []record
	for rows.Next() {
		var rec record
		if err := rows.Scan(&rec.id, &rec.eventID, &rec.aggregateID, &rec.eventType,
			&rec.payload, &rec.traceparent, &rec.tracestate); err != nil {
			rows.Close()
			return err
		}
		records = append(records, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(rec.eventID)},
			{Key: "event_type", Value: []byte(rec.eventType)},
		}
		if rec.traceparent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(rec.traceparent)})
		}
		if rec.tracestate != "" {
			headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(rec.tracestate)})
		}
		messages = append(messages, kafka.Message{
			Topic:   rec.eventType,
			Key:     []byte(rec.aggregateID),
			Value:   rec.payload,
			Headers: headers,
		})
		ids = append(ids, rec.id)
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE reminder_outbox_events SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
