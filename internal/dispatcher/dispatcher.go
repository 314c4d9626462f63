// Package dispatcher implements the outbox dispatcher: a long-running loop
// that drains PENDING outbox rows and publishes them to the broker, using
// InjectTraceContext for span propagation across the publish hop.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/lucerna-wms/reactor/internal/broker"
	"github.com/lucerna-wms/reactor/internal/outbox"
)

// Config holds the dispatcher's tunable knobs.
type Config struct {
	PollInterval time.Duration // poll_interval_ms, default 1s
	BatchSize    int           // batch_size, default 100
}

// DefaultConfig returns the dispatcher's default knob values.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second, BatchSize: 100}
}

// ConfirmTimeout bounds how long a single publish waits for a broker ack
// before it is treated as a failure and retried through mark_failed.
const ConfirmTimeout = 5 * time.Second

// OutboxStore is the subset of *outbox.Store the dispatcher needs; narrowed
// to an interface so tests can substitute a fake.
type OutboxStore interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Entry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Publisher is the subset of *broker.ConfirmingChannel the dispatcher needs.
type Publisher interface {
	PublishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) error
}

// Dispatcher polls the outbox and publishes due rows to the broker.
type Dispatcher struct {
	outbox OutboxStore
	ch     Publisher
	cfg    Config
	logger *slog.Logger
}

// New builds a Dispatcher over ob, publishing through ch.
func New(ob OutboxStore, ch Publisher, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{outbox: ob, ch: ch, cfg: cfg, logger: logger}
}

// Run blocks, polling every PollInterval until ctx is cancelled. On
// cancellation it finishes publishing the batch already claimed (drain),
// then returns — it never abandons a row mid-publish with neither
// mark_published nor mark_failed applied.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := d.tick(ctx); err != nil {
			d.logger.Error("dispatcher tick failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) error {
	entries, err := d.outbox.ClaimPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("claim pending outbox rows: %w", err)
	}

	// Once rows are claimed, finish publishing and marking them even if ctx
	// is cancelled mid-batch, so shutdown drains the batch.
	pubCtx := context.WithoutCancel(ctx)
	for _, entry := range entries {
		d.publish(pubCtx, entry)
	}
	return nil
}

func (d *Dispatcher) publish(ctx context.Context, entry outbox.Entry) {
	tracer := otel.Tracer("dispatcher")
	spanCtx, span := tracer.Start(ctx, "outbox.publish")
	defer span.End()

	payload, err := json.Marshal(entry.Envelope)
	if err != nil {
		d.logger.Error("marshal outbox envelope", slog.String("outbox_id", entry.ID.String()), slog.Any("error", err))
		if failErr := d.outbox.MarkFailed(ctx, entry.ID, err); failErr != nil {
			d.logger.Error("mark outbox row failed", slog.Any("error", failErr))
		}
		return
	}

	headers := broker.InjectTraceContext(spanCtx)
	headers[broker.HeaderTenantID] = entry.Envelope.TenantID
	headers[broker.HeaderEventType] = entry.Envelope.EventType

	err = d.ch.PublishAndConfirm(spanCtx, broker.EventsExchange, entry.RoutingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.Envelope.EventID,
		Headers:      headers,
		Body:         payload,
	}, ConfirmTimeout)
	if err != nil {
		d.logger.Error("publish outbox row", slog.String("outbox_id", entry.ID.String()), slog.Any("error", err))
		if failErr := d.outbox.MarkFailed(ctx, entry.ID, err); failErr != nil {
			d.logger.Error("mark outbox row failed", slog.Any("error", failErr))
		}
		return
	}

	if err := d.outbox.MarkPublished(ctx, entry.ID); err != nil {
		d.logger.Error("mark outbox row published", slog.String("outbox_id", entry.ID.String()), slog.Any("error", err))
	}
}
