// Package consumer implements the event consumer: consumes from the
// fan-in queue, runs the agent runtime, publishes derived envelopes, and
// on failure either schedules a durable delayed redelivery or dead-letters
// the message, tracking redelivery count in message headers.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/broker"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/errs"
	"github.com/lucerna-wms/reactor/internal/runtime"
)

// Config holds the consumer's tunable knobs.
type Config struct {
	Prefetch            int // prefetch_count, default 10
	MaxRetriesConsumer   int // max_retries_consumer, default 3
}

// DefaultConfig returns the consumer's default knob values.
func DefaultConfig() Config {
	return Config{Prefetch: 10, MaxRetriesConsumer: broker.MaxRetriesConsumer}
}

// Idempotency guards a consumer run against duplicate first deliveries of
// the same event id (e.g. a repeated outbox publish). A
// Redis-backed implementation lives in internal/idempotency; tests may use
// a map.
type Idempotency interface {
	// SeenBefore reports whether eventID was already processed, recording
	// it as seen if not (an atomic check-and-set).
	SeenBefore(ctx context.Context, eventID string) (bool, error)
}

// Publisher is the subset of the confirming channel the consumer needs to
// both republish derived envelopes and redeliver via the delay exchange.
type Publisher interface {
	PublishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) error
}

// DerivedEnqueuer durably records agent-derived envelopes before the
// inbound message is acked.
type DerivedEnqueuer interface {
	EnqueueBatch(ctx context.Context, envs []envelope.Envelope) error
}

// AuditRecorder appends the outcome of one Dispatch call to the agent-run
// audit log. Optional: a Consumer with no AuditRecorder set simply skips
// this step.
type AuditRecorder interface {
	RecordSummary(ctx context.Context, eventID, tenantID string, startedAt time.Time, summary runtime.Summary) error
}

// RetryCounter observes one delayed redelivery scheduled by fail. Optional:
// a Consumer with no RetryCounter set simply skips this step.
type RetryCounter interface {
	IncRetry()
}

// Consumer drives the per-message RECEIVED -> PARSING -> DISPATCHING ->
// [PUBLISHING-DERIVED]* -> ACK state machine, branching to a durable
// delayed redelivery or dead-letter on failure.
type Consumer struct {
	ch          *amqp.Channel
	publisher   Publisher
	runtime     *runtime.Runtime
	outbox      DerivedEnqueuer
	idempotency Idempotency
	audit       AuditRecorder
	retries     RetryCounter
	cfg         Config
	logger      *slog.Logger
}

// WithAudit attaches an audit log to c, returning c for chaining at the
// composition root. It is a no-op to omit this call.
func (c *Consumer) WithAudit(audit AuditRecorder) *Consumer {
	c.audit = audit
	return c
}

// WithRetryCounter attaches a retry counter to c, returning c for chaining
// at the composition root. It is a no-op to omit this call.
func (c *Consumer) WithRetryCounter(retries RetryCounter) *Consumer {
	c.retries = retries
	return c
}

// New builds a Consumer. ob is used to enqueue any derived envelopes
// alongside the ack (so a crash between "publish derived" and "ack" still
// leaves the derived envelopes durably recorded, not lost).
func New(ch *amqp.Channel, publisher Publisher, rt *runtime.Runtime, ob DerivedEnqueuer, idem Idempotency, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = DefaultConfig().Prefetch
	}
	if cfg.MaxRetriesConsumer <= 0 {
		cfg.MaxRetriesConsumer = DefaultConfig().MaxRetriesConsumer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{ch: ch, publisher: publisher, runtime: rt, outbox: ob, idempotency: idem, cfg: cfg, logger: logger}
}

// Run declares prefetch and consumes from the processor queue until ctx is
// cancelled. Graceful shutdown: stop accepting new messages by
// cancelling the underlying Consume subscription; in-flight handleDelivery
// calls are allowed to finish (bounded by the per-agent timeout inside the
// runtime).
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := c.ch.Consume(broker.ProcessorQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", broker.ProcessorQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery runs the RECEIVED -> PARSING -> DISPATCHING ->
// [PUBLISHING-DERIVED]* -> ACK state machine, branching to DELAY or
// DEAD-LETTER on failure.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	msgCtx := broker.ExtractTraceContext(ctx, d.Headers)
	tracer := otel.Tracer("consumer")
	msgCtx, span := tracer.Start(msgCtx, "events.consume")
	defer span.End()

	// PARSING
	var env envelope.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.logger.Error("parse envelope", slog.Any("error", err))
		c.fail(ctx, d, err)
		return
	}

	logger := c.logger.With(
		slog.String("event_id", env.EventID),
		slog.String("event_type", env.EventType),
		slog.String("correlation_id", env.CorrelationID),
	)

	// Only a first delivery is checked: a redelivery scheduled by fail (or
	// requeued by the broker) carries an event id already recorded as seen,
	// and still has to reach the agents.
	if c.idempotency != nil && !d.Redelivered && retryCountOf(d) == 0 {
		seen, err := c.idempotency.SeenBefore(msgCtx, env.EventID)
		if err != nil {
			logger.Error("idempotency check", slog.Any("error", err))
			c.fail(ctx, d, err)
			return
		}
		if seen {
			logger.Info("duplicate delivery, skipping agent dispatch")
			d.Ack(false)
			return
		}
	}

	// DISPATCHING
	ectx := agent.ExecutionContext{
		TenantID:      env.TenantID,
		WarehouseID:   env.WarehouseID,
		CorrelationID: env.CorrelationID,
		Logger:        logger,
	}
	dispatchStart := time.Now()
	summary := c.runtime.Dispatch(msgCtx, env, ectx)

	if c.audit != nil {
		if err := c.audit.RecordSummary(msgCtx, env.EventID, env.TenantID, dispatchStart, summary); err != nil {
			logger.Error("record agent run audit", slog.Any("error", err))
		}
	}

	if retryErr := firstRetriableError(summary); retryErr != nil {
		logger.Error("agent invocation raised a retriable error", slog.Any("error", retryErr))
		c.fail(ctx, d, retryErr)
		return
	}

	// PUBLISHING-DERIVED: enqueue through the outbox rather than publish
	// directly, so a crash here still leaves the derived envelopes durably
	// recorded for the dispatcher to pick up (no envelope is lost between
	// agent completion and broker visibility).
	if len(summary.Envelopes) > 0 {
		if err := c.outbox.EnqueueBatch(msgCtx, summary.Envelopes); err != nil {
			logger.Error("enqueue derived envelopes", slog.Any("error", err))
			c.fail(ctx, d, err)
			return
		}
	}

	logger.Info("agent dispatch complete",
		slog.Int("successes", summary.Successes),
		slog.Int("failures", summary.Failures),
		slog.Duration("wall_time", summary.WallTime),
	)

	d.Ack(false)
}

// fail inspects the inbound delivery's retry count: below the configured
// maximum it schedules a durable delayed redelivery (the DELAY state);
// at or beyond the maximum it nacks without requeue so the broker's
// dead-letter-exchange binding routes the message to the DLQ.
func (c *Consumer) fail(ctx context.Context, d amqp.Delivery, cause error) {
	retryCount := retryCountOf(d)

	if retryCount >= c.cfg.MaxRetriesConsumer {
		c.logger.Warn("max retries exceeded, dead-lettering",
			slog.Int("retry_count", retryCount), slog.Any("error", cause))
		d.Nack(false, false)
		return
	}

	nextRetry := retryCount + 1
	backoff := time.Duration(1<<uint(nextRetry)) * time.Second

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[broker.HeaderRetryCount] = int64(nextRetry)

	err := c.publisher.PublishAndConfirm(ctx, broker.DelayExchange, d.RoutingKey, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Headers:      headers,
		Body:         d.Body,
		Expiration:   fmt.Sprintf("%d", backoff.Milliseconds()),
	}, dispatcherConfirmTimeout)
	if err != nil {
		c.logger.Error("schedule delayed redelivery", slog.Any("error", err))
		// The message is still un-acked at the broker; nack with requeue so
		// it is redelivered immediately rather than lost, and the next
		// attempt's retry count stays accurate.
		d.Nack(false, true)
		return
	}

	if c.retries != nil {
		c.retries.IncRetry()
	}

	d.Ack(false)
}

// firstRetriableError returns the first thrown agent error in summary that
// is marked retriable, or nil if every invocation either succeeded or
// failed only with a non-retriable business error (carried in
// Result.Errors, not as a thrown error). A business failure does not
// trigger a redelivery; a thrown infrastructure error does.
func firstRetriableError(summary runtime.Summary) error {
	for _, inv := range summary.Invocations {
		if inv.Err != nil && errs.IsRetriable(inv.Err) {
			return inv.Err
		}
	}
	return nil
}

func retryCountOf(d amqp.Delivery) int {
	v, ok := d.Headers[broker.HeaderRetryCount]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int32:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

const dispatcherConfirmTimeout = 5 * time.Second
