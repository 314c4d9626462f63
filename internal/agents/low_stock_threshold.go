package agents

import (
	"context"
	"fmt"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/store"
)

// AlertLevel is the severity carried on a LowStockAlert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// ThresholdStore is the narrow slice of internal/store the threshold agent
// needs.
type ThresholdStore interface {
	GetProduct(ctx context.Context, tenantID, productID string) (store.Product, error)
}

// LowStockThresholdAgent watches stock movements and raises an alert when
// available quantity crosses below reorder_point (WARNING) or safety_stock
// (CRITICAL).
type LowStockThresholdAgent struct {
	Store ThresholdStore
}

func (a *LowStockThresholdAgent) Name() string { return "low-stock-threshold-agent" }

func (a *LowStockThresholdAgent) Description() string {
	return "Raises WARNING/CRITICAL alerts when available stock crosses reorder_point or safety_stock"
}

func (a *LowStockThresholdAgent) SubscribesTo() []string {
	return []string{"Inventory.MovementRecorded"}
}

func (a *LowStockThresholdAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	productID, err := stringField(in.Payload, "product_id")
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}
	available, err := numberField(in.Payload, "available")
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}

	product, err := a.Store.GetProduct(ctx, ectx.TenantID, productID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("get product %s: %w", productID, err)
	}

	var level AlertLevel
	switch {
	case product.SafetyStock > 0 && int64(available) <= product.SafetyStock:
		level = AlertCritical
	case product.ReorderPoint > 0 && int64(available) <= product.ReorderPoint:
		level = AlertWarning
	default:
		return agent.Result{Success: true, Message: fmt.Sprintf("%s above threshold, no alert", productID)}, nil
	}

	payload := map[string]interface{}{
		"product_id":    productID,
		"available":     available,
		"reorder_point": product.ReorderPoint,
		"safety_stock":  product.SafetyStock,
		"alert_level":   string(level),
	}
	derived, err := envelope.Derive(in, "Inventory.LowStockAlert", payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("derive Inventory.LowStockAlert: %w", err)
	}

	return agent.Result{
		Success:   true,
		Message:   fmt.Sprintf("%s alert_level=%s available=%d", productID, level, int64(available)),
		Envelopes: []envelope.Envelope{derived},
	}, nil
}
