package agents

import (
	"context"
	"io"
	"log/slog"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
)

// discardLogger backstops a nil ExecutionContext.Logger so Handle never
// needs a nil check at every call site beyond this one.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// CompensationLoggerAgent subscribes to every event type (agent.CatchAll)
// and logs it at debug level. It derives no envelopes — it exists as the
// minimal catch-all example of the registry's union-of-specific-and-"*"
// subscriber lookup, and as the place a compensating action would log a
// failure that another agent's envelope reported.
type CompensationLoggerAgent struct{}

func (a *CompensationLoggerAgent) Name() string { return "compensation-logger-agent" }

func (a *CompensationLoggerAgent) Description() string {
	return "Logs every inbound envelope for audit, taking no further action"
}

func (a *CompensationLoggerAgent) SubscribesTo() []string {
	return []string{agent.CatchAll}
}

func (a *CompensationLoggerAgent) Handle(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) (agent.Result, error) {
	logger := ectx.Logger
	if logger == nil {
		logger = discardLogger
	}
	logger.Debug("envelope observed",
		"event_type", in.EventType,
		"event_id", in.EventID,
		"correlation_id", in.CorrelationID,
	)
	return agent.Result{Success: true, Message: "logged"}, nil
}
