package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Product is the static product attributes the low-stock-threshold and
// slotting-putaway agents consult.
type Product struct {
	ProductID    string
	ABCClass     string
	Hazmat       bool
	ReorderPoint int64
	SafetyStock  int64
}

// GetProduct loads a product's static attributes, falling back to
// ABCClass "B" and zero thresholds when the product has no catalog row
// yet (an agent should still run, just with the neutral defaults).
func (s *Store) GetProduct(ctx context.Context, tenantID, productID string) (Product, error) {
	p := Product{ProductID: productID, ABCClass: "B"}
	err := s.db.QueryRowContext(ctx, `
		SELECT abc_class, hazmat, reorder_point, safety_stock
		FROM products WHERE tenant_id = $1 AND product_id = $2
	`, tenantID, productID).Scan(&p.ABCClass, &p.Hazmat, &p.ReorderPoint, &p.SafetyStock)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %s: %w", productID, err)
	}
	return p, nil
}
