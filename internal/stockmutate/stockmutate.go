// Package stockmutate implements the optimistic stock mutator: a single
// row-versioned adjust operation plus an upsert convenience, using an
// explicit expected_version compare-and-swap over an arbitrary set of
// quantity deltas.
package stockmutate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucerna-wms/reactor/internal/errs"
)

// Deltas describes the signed changes to apply to a stock level's
// quantities. Any field left at zero is a no-op for that quantity.
type Deltas struct {
	OnHand   int64
	Reserved int64
	Inbound  int64
	Outbound int64
}

// Level is a snapshot of a stock level row after a successful mutation.
type Level struct {
	ID             uuid.UUID
	TenantID       string
	WarehouseID    string
	ProductID      string
	VariantID      string
	LocationID     string
	LotID          string
	OnHand         int64
	Reserved       int64
	Available      int64
	Inbound        int64
	Outbound       int64
	RowVersion     int64
	LastMovementAt time.Time
}

// Options modifies adjust's negative-on-hand guard ("without an
// override flag").
type Options struct {
	AllowNegativeOnHand bool
}

// Mutator is the Postgres-backed optimistic stock mutator.
type Mutator struct {
	db *sql.DB
}

// New wraps db as a Mutator.
func New(db *sql.DB) *Mutator {
	return &Mutator{db: db}
}

// Adjust applies deltas to the stock level identified by id, failing with
// errs.KindOptimistic if the row's current version does not match
// expectedVersion, and with errs.KindConflict (NEGATIVE_STOCK_BLOCKED) if
// the result would drive on-hand negative without opts.AllowNegativeOnHand.
// On success it recomputes available = max(0, on_hand - reserved) (the
// signed difference when opts.AllowNegativeOnHand is set), increments
// row_version, and stamps last_movement_at.
func (m *Mutator) Adjust(ctx context.Context, id uuid.UUID, deltas Deltas, expectedVersion int64, opts Options) (Level, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return Level{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current Level
	err = tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, warehouse_id, product_id, variant_id, location_id, lot_id,
		       on_hand, reserved, available, inbound, outbound, row_version
		FROM stock_levels WHERE id = $1 FOR UPDATE
	`, id).Scan(&current.ID, &current.TenantID, &current.WarehouseID, &current.ProductID, &current.VariantID,
		&current.LocationID, &current.LotID, &current.OnHand, &current.Reserved, &current.Available,
		&current.Inbound, &current.Outbound, &current.RowVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return Level{}, errs.NotFound("STOCK_LEVEL_NOT_FOUND", fmt.Sprintf("stock level %s not found", id))
	}
	if err != nil {
		return Level{}, fmt.Errorf("load stock level %s: %w", id, err)
	}

	if current.RowVersion != expectedVersion {
		return Level{}, errs.OptimisticConflict(fmt.Sprintf("stock level %s: expected version %d, found %d", id, expectedVersion, current.RowVersion))
	}

	newOnHand := current.OnHand + deltas.OnHand
	if newOnHand < 0 && !opts.AllowNegativeOnHand {
		return Level{}, errs.NegativeStockBlocked(fmt.Sprintf("stock level %s: adjustment would drive on-hand to %d", id, newOnHand))
	}

	newReserved := current.Reserved + deltas.Reserved
	newInbound := current.Inbound + deltas.Inbound
	newOutbound := current.Outbound + deltas.Outbound

	newAvailable := newOnHand - newReserved
	if newAvailable < 0 && !opts.AllowNegativeOnHand {
		newAvailable = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stock_levels
		SET on_hand = $1, reserved = $2, available = $3, inbound = $4, outbound = $5,
		    row_version = row_version + 1, last_movement_at = NOW()
		WHERE id = $6 AND row_version = $7
	`, newOnHand, newReserved, newAvailable, newInbound, newOutbound, id, expectedVersion)
	if err != nil {
		return Level{}, fmt.Errorf("apply adjustment to stock level %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Level{}, fmt.Errorf("commit adjustment to stock level %s: %w", id, err)
	}

	current.OnHand, current.Reserved, current.Available = newOnHand, newReserved, newAvailable
	current.Inbound, current.Outbound = newInbound, newOutbound
	current.RowVersion = expectedVersion + 1
	current.LastMovementAt = time.Now().UTC()
	return current, nil
}

// Key identifies the (product, location, optional lot) a stock level is
// scoped to.
type Key struct {
	TenantID    string
	WarehouseID string
	ProductID   string
	VariantID   string
	LocationID  string
	LotID       string
}

// Upsert creates the stock level row for key at row_version 1 if it does
// not yet exist (used on first receipt), otherwise returns the
// existing row unchanged. It never applies deltas to an existing row — use
// Adjust for that.
func (m *Mutator) Upsert(ctx context.Context, key Key) (Level, error) {
	id := uuid.New()
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_levels (id, tenant_id, warehouse_id, product_id, variant_id, location_id, lot_id, row_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		ON CONFLICT (tenant_id, warehouse_id, product_id, variant_id, location_id, lot_id) DO NOTHING
	`, id, key.TenantID, key.WarehouseID, key.ProductID, key.VariantID, key.LocationID, key.LotID)
	if err != nil {
		return Level{}, fmt.Errorf("upsert stock level: %w", err)
	}

	var lvl Level
	err = m.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, warehouse_id, product_id, variant_id, location_id, lot_id,
		       on_hand, reserved, available, inbound, outbound, row_version
		FROM stock_levels
		WHERE tenant_id = $1 AND warehouse_id = $2 AND product_id = $3 AND variant_id = $4 AND location_id = $5 AND lot_id = $6
	`, key.TenantID, key.WarehouseID, key.ProductID, key.VariantID, key.LocationID, key.LotID).Scan(
		&lvl.ID, &lvl.TenantID, &lvl.WarehouseID, &lvl.ProductID, &lvl.VariantID, &lvl.LocationID, &lvl.LotID,
		&lvl.OnHand, &lvl.Reserved, &lvl.Available, &lvl.Inbound, &lvl.Outbound, &lvl.RowVersion,
	)
	if err != nil {
		return Level{}, fmt.Errorf("load upserted stock level: %w", err)
	}
	return lvl, nil
}
