package agents

import (
	"context"
	"fmt"
	"math"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/classify"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

// defaultTargetServiceLevel is used when the scheduled event's payload
// doesn't override it.
const defaultTargetServiceLevel = 0.95

// SafetyStockStore is the narrow slice of internal/store the safety-stock
// agent needs.
type SafetyStockStore interface {
	ListProductStats(ctx context.Context, tenantID, warehouseID string) ([]store.ProductStats, error)
	SaveSafetyStock(ctx context.Context, tenantID, warehouseID, productID string, safetyStock float64) error
}

// SafetyStockRecalcAgent recomputes every product's safety stock from
// trailing demand/lead-time variability. Driven by the scheduler's
// safety-stock-recalc job.
type SafetyStockRecalcAgent struct {
	Store SafetyStockStore
}

func (a *SafetyStockRecalcAgent) Name() string { return "safety-stock-recalc-agent" }

func (a *SafetyStockRecalcAgent) Description() string {
	return "Recomputes safety stock for every product from trailing demand and lead-time variability"
}

func (a *SafetyStockRecalcAgent) SubscribesTo() []string {
	return []string{"Scheduled.SafetyStockRecalc"}
}

func (a *SafetyStockRecalcAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	targetServiceLevel := optionalNumberField(in.Payload, "target_service_level", defaultTargetServiceLevel)
	z := classify.ServiceLevelZ(targetServiceLevel)

	stats, err := a.Store.ListProductStats(ctx, ectx.TenantID, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("list product stats: %w", err)
	}
	if len(stats) == 0 {
		return agent.Result{Success: true, Message: "no products with recorded stats"}, nil
	}

	for _, s := range stats {
		avgDemand := meanOrZero(s.DailyDemand)
		ss := classify.SafetyStock(classify.SafetyStockInput{
			Z:               z,
			AvgLeadTimeDays: s.AvgLeadTimeDays,
			DemandStdDev:    stddevOrZero(s.DailyDemand, avgDemand),
			AvgDailyDemand:  avgDemand,
			LeadTimeStdDev:  s.LeadTimeStdDev,
		})
		if err := a.Store.SaveSafetyStock(ctx, ectx.TenantID, ectx.WarehouseID, s.ProductID, ss); err != nil {
			return agent.Result{}, fmt.Errorf("save safety stock for %s: %w", s.ProductID, err)
		}
	}

	payload := map[string]interface{}{
		"products_recalculated": len(stats),
		"target_service_level":  targetServiceLevel,
	}
	derived, err := envelope.Derive(in, "Inventory.SafetyStockRecalculated", payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("derive Inventory.SafetyStockRecalculated: %w", err)
	}

	return agent.Result{
		Success:   true,
		Message:   fmt.Sprintf("recalculated safety stock for %d product(s)", len(stats)),
		Envelopes: []envelope.Envelope{derived},
	}, nil
}

func meanOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOrZero(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}
