package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// ProductStats is one product's trailing demand/revenue snapshot, the input
// to the ABC/XYZ classification and safety-stock recalculation agents.
type ProductStats struct {
	ProductID       string
	TrailingRevenue float64
	DailyDemand     []float64
	AvgLeadTimeDays float64
	LeadTimeStdDev  float64
}

// ListProductStats returns the trailing stats row for every product with
// recorded history in (tenantID, warehouseID).
func (s *Store) ListProductStats(ctx context.Context, tenantID, warehouseID string) ([]ProductStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, trailing_revenue, daily_demand, avg_lead_time_days, lead_time_stddev
		FROM product_stats WHERE tenant_id = $1 AND warehouse_id = $2
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list product stats: %w", err)
	}
	defer rows.Close()

	var out []ProductStats
	for rows.Next() {
		var ps ProductStats
		var demand pq.Float64Array
		if err := rows.Scan(&ps.ProductID, &ps.TrailingRevenue, &demand, &ps.AvgLeadTimeDays, &ps.LeadTimeStdDev); err != nil {
			return nil, fmt.Errorf("scan product stats: %w", err)
		}
		ps.DailyDemand = []float64(demand)
		out = append(out, ps)
	}
	return out, rows.Err()
}

// SaveClassification records a product's latest ABC/XYZ class.
func (s *Store) SaveClassification(ctx context.Context, tenantID, warehouseID, productID, abcClass, xyzClass string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_stats (tenant_id, warehouse_id, product_id, abc_class, xyz_class, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tenant_id, warehouse_id, product_id)
		DO UPDATE SET abc_class = $4, xyz_class = $5, updated_at = NOW()
	`, tenantID, warehouseID, productID, abcClass, xyzClass)
	if err != nil {
		return fmt.Errorf("save classification for %s: %w", productID, err)
	}
	return nil
}

// SaveSafetyStock records a product's recalculated safety stock level.
func (s *Store) SaveSafetyStock(ctx context.Context, tenantID, warehouseID, productID string, safetyStock float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_stats (tenant_id, warehouse_id, product_id, safety_stock, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, warehouse_id, product_id)
		DO UPDATE SET safety_stock = $4, updated_at = NOW()
	`, tenantID, warehouseID, productID, safetyStock)
	if err != nil {
		return fmt.Errorf("save safety stock for %s: %w", productID, err)
	}
	return nil
}
