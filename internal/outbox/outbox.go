// Package outbox implements the transactional outbox: a durable queue of
// envelopes awaiting broker publication, using plain database/sql +
// lib/pq (no ORM) with explicit begin/mutate/commit/defer-rollback
// transactions.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucerna-wms/reactor/internal/envelope"
)

// Status is the outbox row's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// DefaultMaxRetries is the default for max_retries_outbox.
const DefaultMaxRetries = 5

// Entry is one outbox row.
type Entry struct {
	ID           uuid.UUID
	TenantID     string
	RoutingKey   string
	Envelope     envelope.Envelope
	Payload      []byte // the canonical serialized envelope, as published
	Status       Status
	RetryCount   int
	MaxRetries   int
	LastError    string
	ScheduledAt  time.Time
	CreatedAt    time.Time
	PublishedAt  *time.Time
}

// execer is satisfied by *sql.DB and *sql.Tx: enqueue can run inside the
// caller's business transaction or standalone.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the Postgres-backed outbox.
type Store struct {
	db *sql.DB
}

// New wraps db as an outbox Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle so callers (the consumer) can enqueue
// derived envelopes inside their own transaction.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Enqueue inserts a PENDING row for env under routingKey, using q — pass the
// caller's *sql.Tx to commit atomically with business mutations, or the
// Store's own db for a standalone enqueue (e.g. from the scheduler).
func Enqueue(ctx context.Context, q execer, env envelope.Envelope, routingKey string) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO outbox (id, tenant_id, routing_key, event_id, payload, status, retry_count, max_retries, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
	`, uuid.New(), env.TenantID, routingKey, env.EventID, payload, StatusPending, DefaultMaxRetries)
	if err != nil {
		return fmt.Errorf("enqueue outbox row: %w", err)
	}
	return nil
}

// EnqueueBatch enqueues every envelope in envs as PENDING rows inside a
// single transaction, routing each by envelope.RoutingKey(event_type). Used
// by the consumer to durably record agent-derived envelopes before acking
// the inbound message.
func (s *Store) EnqueueBatch(ctx context.Context, envs []envelope.Envelope) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for batch enqueue: %w", err)
	}
	defer tx.Rollback()

	for _, env := range envs {
		if err := Enqueue(ctx, tx, env, envelope.RoutingKey(env.EventType)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ClaimPending returns up to limit PENDING rows due for publication, oldest
// first, using FOR UPDATE SKIP LOCKED so multiple dispatcher replicas don't
// contend on the same row.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, routing_key, payload, status, retry_count, max_retries, last_error, scheduled_at, created_at, published_at
		FROM outbox
		WHERE status = $1 AND scheduled_at <= NOW()
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending outbox rows: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, payload, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		var env envelope.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("unmarshal envelope for outbox row %s: %w", e.ID, err)
		}
		e.Envelope = env
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, []byte, error) {
	var e Entry
	var payload []byte
	var lastError sql.NullString
	var publishedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.TenantID, &e.RoutingKey, &payload, &e.Status, &e.RetryCount, &e.MaxRetries, &lastError, &e.ScheduledAt, &e.CreatedAt, &publishedAt); err != nil {
		return Entry{}, nil, fmt.Errorf("scan outbox row: %w", err)
	}
	e.LastError = lastError.String
	if publishedAt.Valid {
		e.PublishedAt = &publishedAt.Time
	}
	return e, payload, nil
}

// MarkPublished transitions id to PUBLISHED and stamps published_at.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = $1, published_at = NOW() WHERE id = $2
	`, StatusPublished, id)
	if err != nil {
		return fmt.Errorf("mark outbox row %s published: %w", id, err)
	}
	return nil
}

// MarkFailed records publishFailure against id. If the row's retry count is
// still below its maximum, it stays PENDING and scheduled_at moves forward
// by 2^retry seconds (exponential backoff); otherwise it becomes terminally
// FAILED.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, publishErr error) error {
	var retryCount, maxRetries int
	err := s.db.QueryRowContext(ctx, `SELECT retry_count, max_retries FROM outbox WHERE id = $1`, id).Scan(&retryCount, &maxRetries)
	if err != nil {
		return fmt.Errorf("load outbox row %s for failure: %w", id, err)
	}

	newRetryCount := retryCount + 1
	if newRetryCount >= maxRetries {
		_, err = s.db.ExecContext(ctx, `
			UPDATE outbox SET status = $1, retry_count = $2, last_error = $3 WHERE id = $4
		`, StatusFailed, newRetryCount, publishErr.Error(), id)
	} else {
		backoff := time.Duration(1<<uint(newRetryCount)) * time.Second
		_, err = s.db.ExecContext(ctx, `
			UPDATE outbox SET retry_count = $1, last_error = $2, scheduled_at = NOW() + $3::interval WHERE id = $4
		`, newRetryCount, publishErr.Error(), fmt.Sprintf("%d seconds", int(backoff.Seconds())), id)
	}
	if err != nil {
		return fmt.Errorf("mark outbox row %s failed: %w", id, err)
	}
	return nil
}

// Requeue resets id's retry count and scheduled_at to now, for operator-
// triggered redelivery of a terminally FAILED row.
func (s *Store) Requeue(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = $1, retry_count = 0, scheduled_at = NOW(), last_error = '' WHERE id = $2
	`, StatusPending, id)
	if err != nil {
		return fmt.Errorf("requeue outbox row %s: %w", id, err)
	}
	return nil
}

// GC deletes PUBLISHED rows older than publishedBefore and returns the
// number of rows removed. Driven by the scheduler's outbox-cleanup job
// (an internal: job) using outbox_gc_days (default 7).
func (s *Store) GC(ctx context.Context, publishedBefore time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE status = $1 AND published_at < $2
	`, StatusPublished, publishedBefore)
	if err != nil {
		return 0, fmt.Errorf("gc outbox: %w", err)
	}
	return result.RowsAffected()
}

// QueueSize reports the number of PENDING rows, for the outbox_queue_size
// backpressure gauge.
func (s *Store) QueueSize(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE status = $1`, StatusPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox rows: %w", err)
	}
	return n, nil
}
