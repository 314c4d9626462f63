package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/slotting"
	"github.com/lucerna-wms/reactor/internal/store"
)

type fakeSlottingStore struct {
	locations []slotting.Location
	product   store.Product
}

func (f *fakeSlottingStore) ListActiveLocations(ctx context.Context, tenantID, warehouseID string) ([]slotting.Location, error) {
	return f.locations, nil
}

func (f *fakeSlottingStore) GetProduct(ctx context.Context, tenantID, productID string) (store.Product, error) {
	return f.product, nil
}

func goodsReceivedEnvelope(t *testing.T, productID string, quantity float64) envelope.Envelope {
	t.Helper()
	env, err := envelope.New("Goods.Received", map[string]interface{}{
		"product_id": productID,
		"quantity":   quantity,
	}, envelope.Context{
		CorrelationID: uuid.New().String(),
		Actor:         envelope.Actor{Type: envelope.ActorUser, ID: "tester"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestSlottingPutawayAgent_RanksBestLocationFirst(t *testing.T) {
	fakeStore := &fakeSlottingStore{
		locations: []slotting.Location{
			{ID: "A-01", Kind: slotting.KindPick, Zone: slotting.ZoneAmbient, PickFrequency: 80, DistanceFromDock: 1, Active: true},
			{ID: "B-01", Kind: slotting.KindPick, Zone: slotting.ZoneAmbient, PickFrequency: 50, DistanceFromDock: 5, Active: true},
			{ID: "C-01", Kind: slotting.KindPick, Zone: slotting.ZoneAmbient, PickFrequency: 20, DistanceFromDock: 9, Active: true},
		},
		product: store.Product{ABCClass: "A"},
	}
	a := NewSlottingPutawayAgent(fakeStore)
	in := goodsReceivedEnvelope(t, "P1", 10)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Envelopes, 1)
	suggestions, ok := result.Envelopes[0].Payload["suggestions"].([]map[string]interface{})
	require.True(t, ok)
	require.NotEmpty(t, suggestions)
	require.Equal(t, "A-01", suggestions[0]["location_id"])
}

func TestSlottingPutawayAgent_NoEligibleLocationsStillSucceeds(t *testing.T) {
	fakeStore := &fakeSlottingStore{product: store.Product{ABCClass: "B"}}
	a := NewSlottingPutawayAgent(fakeStore)
	in := goodsReceivedEnvelope(t, "P1", 1)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	suggestions := result.Envelopes[0].Payload["suggestions"].([]map[string]interface{})
	require.Empty(t, suggestions)
}

func TestSlottingPutawayAgent_MissingProductIDFails(t *testing.T) {
	a := NewSlottingPutawayAgent(&fakeSlottingStore{})
	in, err := envelope.New("Goods.Received", map[string]interface{}{"quantity": float64(1)}, envelope.Context{
		CorrelationID: uuid.New().String(),
		Actor:         envelope.Actor{Type: envelope.ActorUser, ID: "tester"},
		TenantID:      uuid.New().String(),
	})
	require.NoError(t, err)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.False(t, result.Success)
}
