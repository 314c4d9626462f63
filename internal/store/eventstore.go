package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lucerna-wms/reactor/internal/envelope"
)

// AppendEvent inserts env into the append-only event store, keyed uniquely
// by event id. q may be the Store's own db or
// a caller-supplied *sql.Tx, so a command handler can append the event and
// its business rows atomically.
func AppendEvent(ctx context.Context, q querier, env envelope.Envelope) error {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO event_store (event_id, tenant_id, warehouse_id, event_type, correlation_id, causation_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`, env.EventID, env.TenantID, nullableString(env.WarehouseID), env.EventType, env.CorrelationID,
		nullableUUID(env.CausationID), payload, env.OccurredAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", env.EventID, err)
	}
	return nil
}

// AppendEvent records env against the Store's own connection pool (not a
// caller transaction), for producers like the scheduler that have no
// surrounding business transaction to join.
func (s *Store) AppendEvent(ctx context.Context, env envelope.Envelope) error {
	return AppendEvent(ctx, s.db, env)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableUUID(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
