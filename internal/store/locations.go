package store

import (
	"context"
	"fmt"

	"github.com/lucerna-wms/reactor/internal/slotting"
)

// ListActiveLocations returns every candidate putaway location in
// (tenantID, warehouseID) as slotting.Location values, regardless of
// active/hazmat status — the slotting scorer itself is responsible for
// filtering.
func (s *Store) ListActiveLocations(ctx context.Context, tenantID, warehouseID string) ([]slotting.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location_id, kind, zone, pick_frequency, distance_from_dock, utilization_pct, active, hazmat_certified, pick_sequence
		FROM locations WHERE tenant_id = $1 AND warehouse_id = $2
	`, tenantID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var out []slotting.Location
	for rows.Next() {
		var loc slotting.Location
		var kind, zone string
		if err := rows.Scan(&loc.ID, &kind, &zone, &loc.PickFrequency, &loc.DistanceFromDock,
			&loc.UtilizationPct, &loc.Active, &loc.HazmatCertified, &loc.PickSequence); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		loc.Kind = slotting.LocationKind(kind)
		loc.Zone = slotting.TemperatureZone(zone)
		out = append(out, loc)
	}
	return out, rows.Err()
}
