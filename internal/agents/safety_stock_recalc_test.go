package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/store"
)

type fakeSafetyStockStore struct {
	stats []store.ProductStats
	saved map[string]float64
}

func (f *fakeSafetyStockStore) ListProductStats(ctx context.Context, tenantID, warehouseID string) ([]store.ProductStats, error) {
	return f.stats, nil
}

func (f *fakeSafetyStockStore) SaveSafetyStock(ctx context.Context, tenantID, warehouseID, productID string, safetyStock float64) error {
	if f.saved == nil {
		f.saved = map[string]float64{}
	}
	f.saved[productID] = safetyStock
	return nil
}

func TestSafetyStockRecalcAgent_SavesNonNegativeSafetyStock(t *testing.T) {
	fakeStore := &fakeSafetyStockStore{stats: []store.ProductStats{
		{ProductID: "P1", DailyDemand: []float64{8, 10, 12, 10}, AvgLeadTimeDays: 5, LeadTimeStdDev: 1},
	}}
	a := &SafetyStockRecalcAgent{Store: fakeStore}
	in := scheduledEnvelope(t, "Scheduled.SafetyStockRecalc")
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, fakeStore.saved, "P1")
	require.GreaterOrEqual(t, fakeStore.saved["P1"], 0.0)
	require.Len(t, result.Envelopes, 1)
	require.Equal(t, "Inventory.SafetyStockRecalculated", result.Envelopes[0].EventType)
}

func TestSafetyStockRecalcAgent_ZeroVariabilityYieldsZeroSafetyStock(t *testing.T) {
	fakeStore := &fakeSafetyStockStore{stats: []store.ProductStats{
		{ProductID: "P2", DailyDemand: []float64{10, 10, 10, 10}, AvgLeadTimeDays: 3, LeadTimeStdDev: 0},
	}}
	a := &SafetyStockRecalcAgent{Store: fakeStore}
	in := scheduledEnvelope(t, "Scheduled.SafetyStockRecalc")
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 0.0, fakeStore.saved["P2"])
}

func TestSafetyStockRecalcAgent_NoStatsSucceedsWithoutEnvelope(t *testing.T) {
	a := &SafetyStockRecalcAgent{Store: &fakeSafetyStockStore{}}
	in := scheduledEnvelope(t, "Scheduled.SafetyStockRecalc")
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Envelopes)
}
