package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/clinicbook-io/clinicbook/libs/db"
)

// Publisher drains the outbox to Kafka on a fixed tick. Each event type
// maps one-to-one onto a topic of the same name. Fetch, write and mark
// happen under one transaction so a crashed publisher re-delivers rather
// than drops; consumers dedupe by event_id.
type Publisher struct {
	pool     *db.Pool
	writer   *kafka.Writer
	repo     Repository
	logger   *slog.Logger
	interval time.Duration
	batch    int
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
		logger:   logger,
		interval: 2 * time.Second,
		batch:    100,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := p.writer.Close(); err != nil {
				p.logger.Warn("outbox writer close failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox publish batch failed", "error", err)
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batch)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		headers := []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
			{Key: "event_type", Value: []byte(rec.EventType)},
		}
		if rec.Traceparent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(rec.Traceparent)})
		}
		if rec.Tracestate != "" {
			headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(rec.Tracestate)})
		}
		messages = append(messages, kafka.Message{
			Topic:   rec.EventType,
			Key:     []byte(rec.AggregateID),
			Value:   rec.Payload,
			Headers: headers,
		})
		ids = append(ids, rec.ID)
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	p.logger.Debug("outbox batch published", "count", len(ids))
	return nil
}
