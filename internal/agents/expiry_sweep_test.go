package agents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

type fakeExpirySweepStore struct {
	lots   []store.ExpiredLot
	marked []uuid.UUID
}

func (f *fakeExpirySweepStore) ListExpiredLots(ctx context.Context, tenantID string, asOf time.Time) ([]store.ExpiredLot, error) {
	return f.lots, nil
}

func (f *fakeExpirySweepStore) MarkLotExpired(ctx context.Context, lotID uuid.UUID) error {
	f.marked = append(f.marked, lotID)
	return nil
}

func scheduledExpiryCheckEnvelope(t *testing.T) envelope.Envelope {
	t.Helper()
	env, err := envelope.New("Scheduled.ExpiryCheck", map[string]interface{}{
		"triggered_by": "scheduler",
		"job_name":     "lot-expiry-check",
	}, envelope.Context{
		CorrelationID: uuid.New().String(),
		Actor:         envelope.Actor{Type: envelope.ActorSystem, ID: "scheduler"},
		TenantID:      uuid.New().String(),
		WarehouseID:   uuid.New().String(),
	})
	require.NoError(t, err)
	return env
}

func TestExpirySweepAgent_MarksAndEmitsLotExpired(t *testing.T) {
	lotID := uuid.New()
	fakeStore := &fakeExpirySweepStore{lots: []store.ExpiredLot{
		{ID: lotID, ProductID: "P4", LotNumber: "L3", ExpirationDate: time.Now().UTC().Add(-25 * time.Hour), OnHandTotal: 20},
	}}
	a := &ExpirySweepAgent{Store: fakeStore}
	in := scheduledExpiryCheckEnvelope(t)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, []uuid.UUID{lotID}, fakeStore.marked)
	require.Len(t, result.Envelopes, 1)
	require.Equal(t, "Inventory.LotExpired", result.Envelopes[0].EventType)
	require.Equal(t, "AUTO_QUARANTINE", result.Envelopes[0].Payload["action_taken"])
	require.Equal(t, 1, result.Envelopes[0].Payload["days_expired"])
}

func TestExpirySweepAgent_NoExpiredLotsEmitsNothing(t *testing.T) {
	a := &ExpirySweepAgent{Store: &fakeExpirySweepStore{}}
	in := scheduledExpiryCheckEnvelope(t)
	ectx := agent.ExecutionContext{TenantID: in.TenantID, WarehouseID: in.WarehouseID, CorrelationID: in.CorrelationID}

	result, err := a.Handle(context.Background(), in, ectx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Envelopes)
}
