package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExpiredLot is a lot found past its expiration date, still carrying
// on-hand stock, surfaced to the expiry-sweep agent.
type ExpiredLot struct {
	ID             uuid.UUID
	TenantID       string
	ProductID      string
	LotNumber      string
	ExpirationDate time.Time
	OnHandTotal    int64
}

// ListExpiredLots returns every lot in tenantID whose expiration_date is
// before asOf, status AVAILABLE or RELEASED (i.e. not already swept), with
// at least one unit of on-hand stock recorded against it anywhere.
func (s *Store) ListExpiredLots(ctx context.Context, tenantID string, asOf time.Time) ([]ExpiredLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.tenant_id, l.product_id, l.lot_number, l.expiration_date, COALESCE(SUM(sl.on_hand), 0)
		FROM lots l
		LEFT JOIN stock_levels sl ON sl.tenant_id = l.tenant_id AND sl.product_id = l.product_id AND sl.lot_id = l.lot_number
		WHERE l.tenant_id = $1 AND l.status IN ('AVAILABLE', 'RELEASED')
		  AND l.expiration_date IS NOT NULL AND l.expiration_date < $2
		GROUP BY l.id, l.tenant_id, l.product_id, l.lot_number, l.expiration_date
	`, tenantID, asOf)
	if err != nil {
		return nil, fmt.Errorf("list expired lots: %w", err)
	}
	defer rows.Close()

	var out []ExpiredLot
	for rows.Next() {
		var lot ExpiredLot
		if err := rows.Scan(&lot.ID, &lot.TenantID, &lot.ProductID, &lot.LotNumber, &lot.ExpirationDate, &lot.OnHandTotal); err != nil {
			return nil, fmt.Errorf("scan expired lot: %w", err)
		}
		out = append(out, lot)
	}
	return out, rows.Err()
}

// MarkLotExpired transitions a lot to EXPIRED. Idempotent: a lot already
// EXPIRED is left unchanged, so redelivery of the same sweep is harmless.
func (s *Store) MarkLotExpired(ctx context.Context, lotID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE lots SET status = 'EXPIRED' WHERE id = $1`, lotID)
	if err != nil {
		return fmt.Errorf("mark lot %s expired: %w", lotID, err)
	}
	return nil
}
