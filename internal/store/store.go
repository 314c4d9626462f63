// Package store is the Postgres-backed persistence layer shared by the
// outbox, the optimistic stock mutator, the event store, and the
// scheduler's tenant/warehouse enumeration: database/sql + lib/pq, no ORM,
// hand-written SQL, explicit transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Store wraps a *sql.DB and exposes the component-specific operations as
// methods in sibling files (eventstore.go, reservations.go, lots.go,
// locations.go, products.go, productstats.go, tenancy.go, migrate.go).
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at connStr and verifies the connection.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// FromDB wraps an already-open *sql.DB, for tests against testcontainers.
func FromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers (business-transaction code)
// that need to enqueue an outbox row in the same transaction as their own
// mutations inside the caller's own business transaction.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting AppendEvent run
// standalone or inside a caller-supplied transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
