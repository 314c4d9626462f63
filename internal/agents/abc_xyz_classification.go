package agents

import (
	"context"
	"fmt"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/classify"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

// ClassificationStore is the narrow slice of internal/store the ABC/XYZ
// agent needs.
type ClassificationStore interface {
	ListProductStats(ctx context.Context, tenantID, warehouseID string) ([]store.ProductStats, error)
	SaveClassification(ctx context.Context, tenantID, warehouseID, productID, abcClass, xyzClass string) error
}

// ABCXYZClassificationAgent recomputes every product's revenue-Pareto (ABC)
// and demand-variability (XYZ) class from trailing stats. Driven by the
// scheduler's abc-xyz-analysis job.
type ABCXYZClassificationAgent struct {
	Store ClassificationStore
}

func (a *ABCXYZClassificationAgent) Name() string { return "abc-xyz-classification-agent" }

func (a *ABCXYZClassificationAgent) Description() string {
	return "Recomputes ABC revenue-Pareto and XYZ demand-variability classes for every product"
}

func (a *ABCXYZClassificationAgent) SubscribesTo() []string {
	return []string{"Scheduled.AbcXyzAnalysis"}
}

func (a *ABCXYZClassificationAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	stats, err := a.Store.ListProductStats(ctx, ectx.TenantID, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("list product stats: %w", err)
	}
	if len(stats) == 0 {
		return agent.Result{Success: true, Message: "no products with recorded stats"}, nil
	}

	samples := make([]classify.RevenueSample, 0, len(stats))
	for _, s := range stats {
		samples = append(samples, classify.RevenueSample{ProductID: s.ProductID, Revenue: s.TrailingRevenue})
	}
	abcResults := classify.ClassifyABC(samples)
	abcByProduct := make(map[string]classify.ABCResult, len(abcResults))
	for _, r := range abcResults {
		abcByProduct[r.ProductID] = r
	}

	counts := map[string]int{}
	for _, s := range stats {
		xyz := classify.ClassifyXYZ(s.ProductID, s.DailyDemand)
		abc := abcByProduct[s.ProductID]

		if err := a.Store.SaveClassification(ctx, ectx.TenantID, ectx.WarehouseID, s.ProductID, string(abc.Class), string(xyz.Class)); err != nil {
			return agent.Result{}, fmt.Errorf("save classification for %s: %w", s.ProductID, err)
		}
		counts[string(abc.Class)+string(xyz.Class)]++
	}

	payload := map[string]interface{}{
		"products_classified": len(stats),
		"class_counts":        counts,
	}
	derived, err := envelope.Derive(in, "Inventory.ProductsClassified", payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("derive Inventory.ProductsClassified: %w", err)
	}

	return agent.Result{
		Success:   true,
		Message:   fmt.Sprintf("classified %d product(s)", len(stats)),
		Envelopes: []envelope.Envelope{derived},
	}, nil
}
