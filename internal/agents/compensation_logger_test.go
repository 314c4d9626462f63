package agents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
)

func TestCompensationLoggerAgent_SubscribesToCatchAll(t *testing.T) {
	a := &CompensationLoggerAgent{}
	require.Equal(t, []string{agent.CatchAll}, a.SubscribesTo())
}

func TestCompensationLoggerAgent_HandlesAnyEnvelopeWithoutDeriving(t *testing.T) {
	a := &CompensationLoggerAgent{}
	in, err := envelope.New("Inventory.LotExpired", map[string]interface{}{"lot_id": "L3"}, envelope.Context{
		CorrelationID: uuid.New().String(),
		Actor:         envelope.Actor{Type: envelope.ActorAgent, ID: "expiry-sweep-agent"},
		TenantID:      uuid.New().String(),
	})
	require.NoError(t, err)

	result, err := a.Handle(context.Background(), in, agent.ExecutionContext{TenantID: in.TenantID})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Envelopes)
}
