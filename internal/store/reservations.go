package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lucerna-wms/reactor/internal/errs"
	"github.com/lucerna-wms/reactor/internal/fefo"
)

// StockSource is a fefo.Source paired with the row version its owning
// stock level was read at, so a caller can CAS back against it.
type StockSource struct {
	fefo.Source
	RowVersion int64
}

// ListSources loads every stock level (with its lot, if any) for
// (tenantID, warehouseID, productID, optional variantID) as FEFO candidates.
func (s *Store) ListSources(ctx context.Context, tenantID, warehouseID, productID, variantID string) ([]StockSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sl.id, sl.product_id, sl.variant_id, sl.warehouse_id, sl.location_id, sl.available, sl.row_version,
		       l.id, l.status, l.expiration_date, l.received_date
		FROM stock_levels sl
		LEFT JOIN lots l ON l.tenant_id = sl.tenant_id AND l.product_id = sl.product_id AND l.lot_number = sl.lot_id AND sl.lot_id <> ''
		WHERE sl.tenant_id = $1 AND sl.warehouse_id = $2 AND sl.product_id = $3
		  AND ($4 = '' OR sl.variant_id = $4)
	`, tenantID, warehouseID, productID, variantID)
	if err != nil {
		return nil, fmt.Errorf("list fefo sources: %w", err)
	}
	defer rows.Close()

	var out []StockSource
	for rows.Next() {
		var src StockSource
		var lotID, lotStatus sql.NullString
		var expDate, recvDate sql.NullTime
		if err := rows.Scan(&src.StockLevelID, &src.Product, &src.Variant, &src.Warehouse, &src.Location, &src.Available, &src.RowVersion,
			&lotID, &lotStatus, &expDate, &recvDate); err != nil {
			return nil, fmt.Errorf("scan fefo source: %w", err)
		}
		if lotID.Valid {
			lot := &fefo.Lot{ID: lotID.String, Status: fefo.LotStatus(lotStatus.String)}
			if expDate.Valid {
				t := expDate.Time
				lot.ExpirationDate = &t
			}
			if recvDate.Valid {
				lot.ReceivedDate = recvDate.Time
			}
			src.Lot = lot
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// ReservationLine is one line of a reservation request to persist, derived
// from a fefo.Line.
type ReservationLine struct {
	StockLevelID uuid.UUID
	LotID        string
	ProductID    string
	VariantID    string
	Quantity     int64
}

// ReserveRequest asks for lines to be durably reserved against referenceID
// (e.g. a sales order id).
type ReserveRequest struct {
	TenantID      string
	ReferenceType string
	ReferenceID   string
	Lines         []ReservationLine
}

// ReservationRecord is one persisted reservation row.
type ReservationRecord struct {
	ID           uuid.UUID
	StockLevelID uuid.UUID
	LotID        string
	Quantity     int64
	Created      bool // false when this line was already reserved by a prior delivery
}

// Reserve persists req's lines as ACTIVE reservations and increments each
// target stock level's reserved quantity, idempotently: a line already
// reserved for (tenant, reference_type, reference_id, stock_level, lot) from
// an earlier delivery is detected via the reservations table's unique
// constraint and skipped without re-incrementing reserved, guarding
// against redelivery with a natural unique key instead of a separate
// dedup table.
func (s *Store) Reserve(ctx context.Context, req ReserveRequest) ([]ReservationRecord, error) {
	out := make([]ReservationRecord, 0, len(req.Lines))
	for _, line := range req.Lines {
		rec, err := s.reserveLine(ctx, req.TenantID, req.ReferenceType, req.ReferenceID, line)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) reserveLine(ctx context.Context, tenantID, referenceType, referenceID string, line ReservationLine) (ReservationRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReservationRecord{}, fmt.Errorf("begin reservation transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (id, tenant_id, stock_level_id, product_id, variant_id, lot_id, quantity, reference_type, reference_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'ACTIVE')
		ON CONFLICT (tenant_id, reference_type, reference_id, stock_level_id, lot_id) DO NOTHING
	`, id, tenantID, line.StockLevelID, line.ProductID, line.VariantID, line.LotID, line.Quantity, referenceType, referenceID)
	if err != nil {
		return ReservationRecord{}, fmt.Errorf("insert reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ReservationRecord{}, fmt.Errorf("insert reservation rows affected: %w", err)
	}
	if affected == 0 {
		// Already reserved by a prior delivery of the same inbound event;
		// skip the stock mutation entirely.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return ReservationRecord{}, fmt.Errorf("rollback duplicate reservation: %w", err)
		}
		return ReservationRecord{StockLevelID: line.StockLevelID, LotID: line.LotID, Quantity: line.Quantity, Created: false}, nil
	}

	if err := applyReservedDelta(ctx, tx, line.StockLevelID, line.Quantity); err != nil {
		return ReservationRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return ReservationRecord{}, fmt.Errorf("commit reservation: %w", err)
	}
	return ReservationRecord{ID: id, StockLevelID: line.StockLevelID, LotID: line.LotID, Quantity: line.Quantity, Created: true}, nil
}

// applyReservedDelta increments the stock level's reserved quantity and
// recomputes available. The row is already locked FOR UPDATE within tx, so
// the row_version match in the WHERE clause is a belt-and-braces CAS rather
// than a real race — the cross-process conflict window this guards against
// is a second transaction blocked on the same row lock until this one
// commits or rolls back.
func applyReservedDelta(ctx context.Context, tx *sql.Tx, stockLevelID uuid.UUID, delta int64) error {
	var onHand, reserved, rowVersion int64
	err := tx.QueryRowContext(ctx, `SELECT on_hand, reserved, row_version FROM stock_levels WHERE id = $1 FOR UPDATE`, stockLevelID).
		Scan(&onHand, &reserved, &rowVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("STOCK_LEVEL_NOT_FOUND", fmt.Sprintf("stock level %s not found", stockLevelID))
	}
	if err != nil {
		return fmt.Errorf("load stock level %s: %w", stockLevelID, err)
	}

	newReserved := reserved + delta
	newAvailable := onHand - newReserved
	if newAvailable < 0 {
		newAvailable = 0
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE stock_levels SET reserved = $1, available = $2, row_version = row_version + 1, last_movement_at = NOW()
		WHERE id = $3 AND row_version = $4
	`, newReserved, newAvailable, stockLevelID, rowVersion)
	if err != nil {
		return fmt.Errorf("apply reserved delta to stock level %s: %w", stockLevelID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserved delta rows affected: %w", err)
	}
	if affected != 1 {
		return errs.OptimisticConflict(fmt.Sprintf("stock level %s: row_version changed mid-transaction", stockLevelID))
	}
	return nil
}
