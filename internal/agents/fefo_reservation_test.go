package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/fefo"
	"github.com/lucerna-wms/reactor/internal/store"
)

type fakeFEFOStore struct {
	sources      map[string][]store.StockSource
	reserveCalls []store.ReserveRequest
	reserveErr   error
}

func (f *fakeFEFOStore) ListSources(ctx context.Context, tenantID, warehouseID, productID, variantID string) ([]store.StockSource, error) {
	return f.sources[productID], nil
}

func (f *fakeFEFOStore) Reserve(ctx context.Context, req store.ReserveRequest) ([]store.ReservationRecord, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	f.reserveCalls = append(f.reserveCalls, req)
	out := make([]store.ReservationRecord, 0, len(req.Lines))
	for _, l := range req.Lines {
		out = append(out, store.ReservationRecord{ID: uuid.New(), StockLevelID: l.StockLevelID, LotID: l.LotID, Quantity: l.Quantity, Created: true})
	}
	return out, nil
}

func testExecCtx() agent.ExecutionContext {
	return agent.ExecutionContext{TenantID: uuid.New().String(), WarehouseID: uuid.New().String(), CorrelationID: uuid.New().String()}
}

func orderPlacedEnvelope(t *testing.T, orderID string, lines []map[string]interface{}) envelope.Envelope {
	t.Helper()
	ectx := testExecCtx()
	env, err := envelope.New("SalesOrder.OrderPlaced", map[string]interface{}{
		"order_id": orderID,
		"lines":    toInterfaceSlice(lines),
	}, envelope.Context{
		CorrelationID: ectx.CorrelationID,
		Actor:         envelope.Actor{Type: envelope.ActorUser, ID: "tester"},
		TenantID:      ectx.TenantID,
		WarehouseID:   ectx.WarehouseID,
	})
	require.NoError(t, err)
	return env
}

func toInterfaceSlice(ms []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}

func TestFEFOReservationAgent_FullyAllocatesAcrossLots(t *testing.T) {
	stockLevelL1 := uuid.New()
	stockLevelL2 := uuid.New()

	in := orderPlacedEnvelope(t, "ORDER-1", []map[string]interface{}{
		{"product_id": "P2", "quantity": float64(7)},
	})
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	fakeStore := &fakeFEFOStore{sources: map[string][]store.StockSource{
		"P2": {
			{Source: fefo.Source{StockLevelID: stockLevelL1.String(), Product: "P2", Warehouse: in.WarehouseID, Available: 5,
				Lot: &fefo.Lot{ID: "L1", Status: fefo.LotAvailable}}},
			{Source: fefo.Source{StockLevelID: stockLevelL2.String(), Product: "P2", Warehouse: in.WarehouseID, Available: 5,
				Lot: &fefo.Lot{ID: "L2", Status: fefo.LotAvailable}}},
		},
	}}
	a := &FEFOReservationAgent{Store: fakeStore}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Envelopes, 1)
	require.Equal(t, "SalesOrder.OrderFullyAllocated", result.Envelopes[0].EventType)
	require.Equal(t, true, result.Envelopes[0].Payload["fully_reserved"])
	require.Len(t, fakeStore.reserveCalls, 1)
	require.Len(t, fakeStore.reserveCalls[0].Lines, 2)
}

func TestFEFOReservationAgent_ShortfallEmitsPartialEvent(t *testing.T) {
	stockLevel := uuid.New()
	in := orderPlacedEnvelope(t, "ORDER-2", []map[string]interface{}{
		{"product_id": "P2", "quantity": float64(7)},
	})
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	fakeStore := &fakeFEFOStore{sources: map[string][]store.StockSource{
		"P2": {{Source: fefo.Source{StockLevelID: stockLevel.String(), Product: "P2", Warehouse: in.WarehouseID, Available: 3}}},
	}}
	a := &FEFOReservationAgent{Store: fakeStore}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.Equal(t, "SalesOrder.OrderPartiallyAllocated", result.Envelopes[0].EventType)
	require.Equal(t, false, result.Envelopes[0].Payload["fully_reserved"])
}

func TestFEFOReservationAgent_MissingLinesFails(t *testing.T) {
	a := &FEFOReservationAgent{Store: &fakeFEFOStore{}}
	in := orderPlacedEnvelope(t, "ORDER-3", nil)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
}

func TestFEFOReservationAgent_NoStockSkipsReserveCall(t *testing.T) {
	fakeStore := &fakeFEFOStore{sources: map[string][]store.StockSource{}}
	a := &FEFOReservationAgent{Store: fakeStore}
	in := orderPlacedEnvelope(t, "ORDER-4", []map[string]interface{}{
		{"product_id": "P9", "quantity": float64(1)},
	})
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, fakeStore.reserveCalls)
	require.Equal(t, false, result.Envelopes[0].Payload["fully_reserved"])
}
