package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicbook-io/clinicbook/libs/kafkax"
	"github.com/clinicbook-io/clinicbook/services/reminder-service/internal/inbox"
)

type HandlerFunc func(ctx context.Context, msg kafka.Message) error

// Consumer reads every subscribed topic through one consumer group and
// dispatches by event type. Messages are deduped through the inbox
// before any handler runs.
type Consumer struct {
	reader   *kafka.Reader
	inbox    *inbox.Repository
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(cfg Config, inboxRepo *inbox.Repository, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:   reader,
		inbox:    inboxRepo,
		logger:   logger,
		handlers: map[string]HandlerFunc{},
	}
}

// Handle registers the handler for one event type. Call before Run.
func (c *Consumer) Handle(eventType string, fn HandlerFunc) {
	c.handlers[eventType] = fn
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "error", err)
			time.Sleep(time.Second)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	msgCtx := kafkax.ExtractTraceContext(ctx, msg)
	spanCtx, span := otel.Tracer("kafka").Start(msgCtx, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	handler, ok := c.handlers[meta.EventType]
	if !ok {
		c.logger.Debug("no handler for event type", "event_type", meta.EventType)
		return
	}

	fresh, err := c.inbox.Record(spanCtx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "event_id", meta.EventID, "error", err)
		span.RecordError(err)
		return
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	if err := handler(spanCtx, msg); err != nil {
		c.logger.Error("event handler failed",
			"event_id", meta.EventID, "event_type", meta.EventType, "error", err)
		span.RecordError(err)
	}
}
