package agents

import (
	"context"
	"fmt"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/slotting"
	"github.com/lucerna-wms/reactor/internal/store"
)

// maxSuggestions caps how many ranked candidates ride along in the derived
// envelope's payload; the full ranking is still computed, only the top N
// are reported.
const maxSuggestions = 5

// SlottingStore is the narrow slice of internal/store the putaway agent
// needs.
type SlottingStore interface {
	ListActiveLocations(ctx context.Context, tenantID, warehouseID string) ([]slotting.Location, error)
	GetProduct(ctx context.Context, tenantID, productID string) (store.Product, error)
}

// SlottingPutawayAgent ranks candidate locations for a goods receipt,
// using internal/slotting's pure scorer.
type SlottingPutawayAgent struct {
	Store  SlottingStore
	Scorer slotting.Scorer
}

// NewSlottingPutawayAgent builds an agent scoring with the default
// slotting weights.
func NewSlottingPutawayAgent(s SlottingStore) *SlottingPutawayAgent {
	return &SlottingPutawayAgent{Store: s, Scorer: slotting.NewScorer(slotting.DefaultWeights())}
}

func (a *SlottingPutawayAgent) Name() string { return "slotting-putaway-agent" }

func (a *SlottingPutawayAgent) Description() string {
	return "Ranks candidate putaway locations for a goods receipt under weighted slotting criteria"
}

func (a *SlottingPutawayAgent) SubscribesTo() []string {
	return []string{"Goods.Received"}
}

func (a *SlottingPutawayAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	productID, err := stringField(in.Payload, "product_id")
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}
	quantity, err := numberField(in.Payload, "quantity")
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}

	locations, err := a.Store.ListActiveLocations(ctx, ectx.TenantID, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("list locations: %w", err)
	}
	product, err := a.Store.GetProduct(ctx, ectx.TenantID, productID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("get product %s: %w", productID, err)
	}

	sctx := slotting.Context{
		ABCClass: slotting.ABCClass(product.ABCClass),
		Hazmat:   product.Hazmat,
		Quantity: int(quantity),
	}
	suggestions := a.Scorer.Rank(locations, sctx)

	top := suggestions
	if len(top) > maxSuggestions {
		top = top[:maxSuggestions]
	}
	payloadSuggestions := make([]map[string]interface{}, 0, len(top))
	for _, s := range top {
		payloadSuggestions = append(payloadSuggestions, map[string]interface{}{
			"location_id": s.Location.ID,
			"score":       s.Score,
		})
	}

	payload := map[string]interface{}{
		"product_id":  productID,
		"quantity":    quantity,
		"suggestions": payloadSuggestions,
	}
	derived, err := envelope.Derive(in, "Slotting.SuggestionsGenerated", payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("derive Slotting.SuggestionsGenerated: %w", err)
	}

	msg := fmt.Sprintf("ranked %d candidate location(s) for %s", len(suggestions), productID)
	if len(suggestions) == 0 {
		msg = fmt.Sprintf("no eligible location for %s", productID)
	}

	return agent.Result{
		Success:   true,
		Message:   msg,
		Envelopes: []envelope.Envelope{derived},
	}, nil
}
