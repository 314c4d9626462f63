package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConfirmingChannel wraps an amqp.Channel placed into confirm mode (see
// Connect) and blocks each publish on its broker ack, so mark_published
// only runs once the broker has actually accepted the message — making
// outbox crash recovery safe.
type ConfirmingChannel struct {
	ch      *amqp.Channel
	confirm chan amqp.Confirmation
}

// NewConfirmingChannel registers ch's confirmation listener. ch must
// already be in confirm mode (Connect does this).
func NewConfirmingChannel(ch *amqp.Channel) *ConfirmingChannel {
	return &ConfirmingChannel{ch: ch, confirm: ch.NotifyPublish(make(chan amqp.Confirmation, 1))}
}

// PublishAndConfirm publishes msg and waits up to timeout for the broker's
// ack. A nack, a timeout, or a transport error are all reported as errors —
// callers should treat all three as "not published" and retry.
func (c *ConfirmingChannel) PublishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) error {
	if err := c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", exchange, err)
	}

	select {
	case conf := <-c.confirm:
		if !conf.Ack {
			return fmt.Errorf("broker nacked publish to %s", exchange)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for publish confirm on %s", exchange)
	case <-ctx.Done():
		return ctx.Err()
	}
}
