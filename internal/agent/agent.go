// Package agent defines the reaction-handler contract every agent
// implements: one interface, no runtime type introspection.
package agent

import (
	"context"
	"log/slog"

	"github.com/lucerna-wms/reactor/internal/envelope"
)

// ExecutionContext is handed to every agent invocation: the tenant/
// warehouse scope, the correlation id to preserve, and the ambient logger.
type ExecutionContext struct {
	TenantID      string
	WarehouseID   string
	CorrelationID string
	Logger        *slog.Logger
}

// Result is what an agent hands back: whether it succeeded, a human
// message, optional structured data, any envelopes it derived, and any
// error strings. Agents never publish directly — the runtime takes
// Envelopes and hands them to the outbox.
type Result struct {
	Success   bool
	Message   string
	Data      map[string]interface{}
	Envelopes []envelope.Envelope
	Errors    []string
}

// Agent is the single-method capability every reaction handler implements.
// Name must be unique within a Registry. SubscribesTo lists the event types
// the agent reacts to; the literal "*" subscribes to every type.
type Agent interface {
	Name() string
	Description() string
	SubscribesTo() []string
	Handle(ctx context.Context, in envelope.Envelope, ectx ExecutionContext) (Result, error)
}

// CatchAll is the subscription literal meaning "every event type".
const CatchAll = "*"

// Rewrite enforces the tenancy/correlation/causation contract on every
// envelope an agent returns, regardless of what the agent itself set — the
// harness rewrites these fields defensively before acceptance. Call this
// once per derived envelope before it reaches the outbox.
func Rewrite(inbound envelope.Envelope, derived envelope.Envelope) envelope.Envelope {
	derived.TenantID = inbound.TenantID
	derived.CorrelationID = inbound.CorrelationID
	derived.CausationID = inbound.EventID
	return derived
}
