package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/outbox"
)

type fakeOutbox struct {
	mu        sync.Mutex
	pending   []outbox.Entry
	published []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeOutbox) ClaimPending(ctx context.Context, limit int) ([]outbox.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	claimed := f.pending[:limit]
	f.pending = f.pending[limit:]
	return claimed, nil
}

func (f *fakeOutbox) MarkPublished(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

type fakePublisher struct {
	shouldFail bool
	published  []string
}

func (f *fakePublisher) PublishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing, timeout time.Duration) error {
	if f.shouldFail {
		return fmt.Errorf("broker unreachable")
	}
	f.published = append(f.published, routingKey)
	return nil
}

func mustEntry(t *testing.T) outbox.Entry {
	t.Helper()
	env, err := envelope.New("Stock.Adjusted", map[string]any{"x": 1}, envelope.Context{
		CorrelationID: "11111111-1111-1111-1111-111111111111",
		TenantID:      "22222222-2222-2222-2222-222222222222",
		Actor:         envelope.Actor{Type: envelope.ActorSystem, ID: "test"},
	})
	require.NoError(t, err)
	return outbox.Entry{ID: uuid.New(), Envelope: env, RoutingKey: "stock.adjusted", Status: outbox.StatusPending}
}

func TestTick_PublishesClaimedRowsAndMarksPublished(t *testing.T) {
	ob := &fakeOutbox{pending: []outbox.Entry{mustEntry(t), mustEntry(t)}}
	pub := &fakePublisher{}
	d := New(ob, pub, DefaultConfig(), nil)

	require.NoError(t, d.tick(context.Background()))

	require.Len(t, pub.published, 2)
	require.Len(t, ob.published, 2)
	require.Empty(t, ob.failed)
}

func TestTick_PublishFailureMarksFailed(t *testing.T) {
	ob := &fakeOutbox{pending: []outbox.Entry{mustEntry(t)}}
	pub := &fakePublisher{shouldFail: true}
	d := New(ob, pub, DefaultConfig(), nil)

	require.NoError(t, d.tick(context.Background()))

	require.Empty(t, ob.published)
	require.Len(t, ob.failed, 1)
}

func TestTick_RespectsBatchSize(t *testing.T) {
	ob := &fakeOutbox{pending: []outbox.Entry{mustEntry(t), mustEntry(t), mustEntry(t)}}
	pub := &fakePublisher{}
	d := New(ob, pub, Config{PollInterval: time.Second, BatchSize: 2}, nil)

	require.NoError(t, d.tick(context.Background()))

	require.Len(t, pub.published, 2)
	require.Len(t, ob.pending, 1)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ob := &fakeOutbox{}
	pub := &fakePublisher{}
	d := New(ob, pub, Config{PollInterval: time.Millisecond, BatchSize: 10}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
