// Package idempotency implements the Redis-backed dedup cache the consumer
// uses to skip agent dispatch when the same event id is delivered again as
// a new message: a single SETNX-based seen-set keyed by event id.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an event id is remembered; a duplicate that
// arrives after the key has expired is dispatched again.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "wh:seen:"

// Store is a Redis-backed consumer.Idempotency implementation.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New dials addr and verifies the connection before returning.
func New(addr string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// SeenBefore atomically records eventID as seen and reports whether it was
// already present. SETNX makes the check-and-set atomic across concurrent
// consumer instances sharing the same Redis.
func (s *Store) SeenBefore(ctx context.Context, eventID string) (bool, error) {
	key := keyPrefix + eventID
	ok, err := s.client.SetNX(ctx, key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	// SetNX returns true when the key was newly set, i.e. not seen before.
	return !ok, nil
}
