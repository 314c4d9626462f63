package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

type fakeClassificationStore struct {
	stats []store.ProductStats
	saved map[string][2]string
}

func (f *fakeClassificationStore) ListProductStats(ctx context.Context, tenantID, warehouseID string) ([]store.ProductStats, error) {
	return f.stats, nil
}

func (f *fakeClassificationStore) SaveClassification(ctx context.Context, tenantID, warehouseID, productID, abcClass, xyzClass string) error {
	if f.saved == nil {
		f.saved = map[string][2]string{}
	}
	f.saved[productID] = [2]string{abcClass, xyzClass}
	return nil
}

func scheduledEnvelope(t *testing.T, eventType string) envelope.Envelope {
	t.Helper()
	env, err := envelope.New(eventType, map[string]interface{}{
		"triggered_by": "scheduler",
	}, envelope.Context{
		CorrelationID: uuid.New().String(),
		Actor:         envelope.Actor{Type: envelope.ActorSystem, ID: "scheduler"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestABCXYZClassificationAgent_ClassifiesAndSaves(t *testing.T) {
	fakeStore := &fakeClassificationStore{stats: []store.ProductStats{
		{ProductID: "P1", TrailingRevenue: 80, DailyDemand: []float64{10, 10, 10, 10}},
		{ProductID: "P2", TrailingRevenue: 20, DailyDemand: []float64{0, 0, 0, 100}},
	}}
	a := &ABCXYZClassificationAgent{Store: fakeStore}
	in := scheduledEnvelope(t, "Scheduled.AbcXyzAnalysis")
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, fakeStore.saved, 2)
	require.Equal(t, "A", fakeStore.saved["P1"][0])
	require.Equal(t, "X", fakeStore.saved["P1"][1])
	require.Equal(t, "Z", fakeStore.saved["P2"][1])
	require.Len(t, result.Envelopes, 1)
	require.Equal(t, "Inventory.ProductsClassified", result.Envelopes[0].EventType)
}

func TestABCXYZClassificationAgent_NoStatsSucceedsWithoutEnvelope(t *testing.T) {
	a := &ABCXYZClassificationAgent{Store: &fakeClassificationStore{}}
	in := scheduledEnvelope(t, "Scheduled.AbcXyzAnalysis")
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Envelopes)
}
