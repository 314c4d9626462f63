package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Warehouse identifies a single tenant/warehouse pair, as enumerated by
// ListActiveWarehouses for the scheduler's per-(tenant, warehouse) fan-out.
type Warehouse struct {
	ID       string
	TenantID string
}

// ListActiveTenants returns the ids of every tenant with active = true.
func (s *Store) ListActiveTenants(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants WHERE active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListActiveWarehouses returns every active warehouse belonging to
// tenantID. If tenantID is empty, it returns every active warehouse across
// every tenant (used by jobs scoped to "all tenants").
func (s *Store) ListActiveWarehouses(ctx context.Context, tenantID string) ([]Warehouse, error) {
	var rows *sql.Rows
	var err error
	if tenantID == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, tenant_id FROM warehouses WHERE active = TRUE ORDER BY tenant_id, id`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, tenant_id FROM warehouses WHERE active = TRUE AND tenant_id = $1 ORDER BY id`, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("list active warehouses: %w", err)
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.TenantID); err != nil {
			return nil, fmt.Errorf("scan warehouse: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
