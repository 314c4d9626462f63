package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/fefo"
	"github.com/lucerna-wms/reactor/internal/store"
)

// FEFOStore is the narrow slice of internal/store the reservation agent
// needs, satisfied by *store.Store in production and a fake in tests.
type FEFOStore interface {
	ListSources(ctx context.Context, tenantID, warehouseID, productID, variantID string) ([]store.StockSource, error)
	Reserve(ctx context.Context, req store.ReserveRequest) ([]store.ReservationRecord, error)
}

// orderLine is one line of a SalesOrder.OrderPlaced payload.
type orderLine struct {
	ProductID string
	VariantID string
	Quantity  int64
}

// FEFOReservationAgent reserves sales-order lines against available stock
// in earliest-expiry order, using internal/fefo's pure allocator and
// internal/store/reservations.go's idempotent persistence.
type FEFOReservationAgent struct {
	Store FEFOStore
}

func (a *FEFOReservationAgent) Name() string { return "fefo-reservation-agent" }

func (a *FEFOReservationAgent) Description() string {
	return "Reserves sales order lines against stock in first-expire-first-out order"
}

func (a *FEFOReservationAgent) SubscribesTo() []string {
	return []string{"SalesOrder.OrderPlaced"}
}

func (a *FEFOReservationAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	orderID, err := stringField(in.Payload, "order_id")
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}
	lines, err := parseOrderLines(in.Payload)
	if err != nil {
		return agent.Result{Success: false, Errors: []string{err.Error()}}, nil
	}

	var reservationLines []store.ReservationLine
	fullyAllocated := true

	for _, line := range lines {
		sources, err := a.Store.ListSources(ctx, ectx.TenantID, ectx.WarehouseID, line.ProductID, line.VariantID)
		if err != nil {
			return agent.Result{}, fmt.Errorf("list fefo sources for %s: %w", line.ProductID, err)
		}

		req := fefo.Request{
			Product:   line.ProductID,
			Variant:   line.VariantID,
			Warehouse: ectx.WarehouseID,
			Quantity:  int(line.Quantity),
		}
		plan := fefo.Allocate(req, toFEFOSources(sources), time.Now().UTC())
		if !plan.FullyAllocated {
			fullyAllocated = false
		}

		for _, l := range plan.Lines {
			stockLevelID, err := uuid.Parse(l.StockLevelID)
			if err != nil {
				return agent.Result{}, fmt.Errorf("fefo allocation returned non-uuid stock level id %q: %w", l.StockLevelID, err)
			}
			reservationLines = append(reservationLines, store.ReservationLine{
				StockLevelID: stockLevelID,
				LotID:        l.LotID,
				ProductID:    line.ProductID,
				VariantID:    line.VariantID,
				Quantity:     int64(l.Quantity),
			})
		}
	}

	var created int
	if len(reservationLines) > 0 {
		records, err := a.Store.Reserve(ctx, store.ReserveRequest{
			TenantID:      ectx.TenantID,
			ReferenceType: "SALES_ORDER",
			ReferenceID:   orderID,
			Lines:         reservationLines,
		})
		if err != nil {
			return agent.Result{}, fmt.Errorf("reserve lines for order %s: %w", orderID, err)
		}
		for _, r := range records {
			if r.Created {
				created++
			}
		}
	}

	eventType := "SalesOrder.OrderFullyAllocated"
	if !fullyAllocated {
		eventType = "SalesOrder.OrderPartiallyAllocated"
	}

	payload := map[string]interface{}{
		"order_id":       orderID,
		"fully_reserved": fullyAllocated,
		"lines_reserved": len(reservationLines),
		"lines_created":  created,
	}
	derived, err := envelope.Derive(in, eventType, payload, envelope.Actor{Type: envelope.ActorAgent, ID: a.Name()}, ectx.WarehouseID)
	if err != nil {
		return agent.Result{}, fmt.Errorf("derive %s: %w", eventType, err)
	}

	return agent.Result{
		Success:   true,
		Message:   fmt.Sprintf("reserved %d line(s) for order %s", len(reservationLines), orderID),
		Envelopes: []envelope.Envelope{derived},
	}, nil
}

func parseOrderLines(payload map[string]interface{}) ([]orderLine, error) {
	raw := mapSliceField(payload, "lines")
	if len(raw) == 0 {
		return nil, fmt.Errorf("payload missing required non-empty field %q", "lines")
	}
	out := make([]orderLine, 0, len(raw))
	for i, m := range raw {
		productID, err := stringField(m, "product_id")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		qty, err := numberField(m, "quantity")
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, orderLine{
			ProductID: productID,
			VariantID: optionalStringField(m, "variant_id"),
			Quantity:  int64(qty),
		})
	}
	return out, nil
}

func toFEFOSources(sources []store.StockSource) []fefo.Source {
	out := make([]fefo.Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Source)
	}
	return out
}
