package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

// ExpirySweepStore is the narrow slice of internal/store the expiry-sweep
// agent needs.
type ExpirySweepStore interface {
	ListExpiredLots(ctx context.Context, tenantID string, asOf time.Time) ([]store.ExpiredLot, error)
	MarkLotExpired(ctx context.Context, lotID uuid.UUID) error
}

// ExpirySweepAgent sweeps lots past their expiration date to EXPIRED,
// auto-quarantining their remaining stock. Driven by the scheduler's
// lot-expiry-check job, not a user-facing event.
type ExpirySweepAgent struct {
	Store ExpirySweepStore
}

func (a *ExpirySweepAgent) Name() string { return "expiry-sweep-agent" }

func (a *ExpirySweepAgent) Description() string {
	return "Transitions expired lots to EXPIRED and auto-quarantines their remaining stock"
}

func (a *ExpirySweepAgent) SubscribesTo() []string {
	return []string{"Scheduled.ExpiryCheck"}
}

func (a *ExpirySweepAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	now := time.Now().UTC()
	expired, err := a.Store.ListExpiredLots(ctx, ectx.TenantID, now)
	if err != nil {
		return agent.Result{}, fmt.Errorf("list expired lots: %w", err)
	}

	var derived []envelope.Envelope
	for _, lot := range expired {
		if err := a.Store.MarkLotExpired(ctx, lot.ID); err != nil {
			return agent.Result{}, fmt.Errorf("mark lot %s expired: %w", lot.ID, err)
		}

		daysExpired := int(now.Sub(lot.ExpirationDate).Hours() / 24)
		if daysExpired < 0 {
			daysExpired = 0
		}

		payload := map[string]interface{}{
			"lot_id":         lot.ID.String(),
			"product_id":     lot.ProductID,
			"lot_number":     lot.LotNumber,
			"on_hand_total":  lot.OnHandTotal,
			"action_taken":   "AUTO_QUARANTINE",
			"days_expired":   daysExpired,
		}
		env, err := envelope.Derive(in, "Inventory.LotExpired", payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
		if err != nil {
			return agent.Result{}, fmt.Errorf("derive Inventory.LotExpired for lot %s: %w", lot.ID, err)
		}
		derived = append(derived, env)
	}

	return agent.Result{
		Success:   true,
		Message:   fmt.Sprintf("swept %d expired lot(s)", len(expired)),
		Envelopes: derived,
	}, nil
}
