// Package runtime implements the agent execution harness: for one inbound
// envelope, resolve subscribed agents from the registry, run them batched
// with bounded concurrency and a per-agent deadline, and collect the
// envelopes they derive. The runtime never talks to the broker — derived
// envelopes are handed back to the caller (the consumer) for publication.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lucerna-wms/reactor/internal/agent"
	"github.com/lucerna-wms/reactor/internal/envelope"
	"github.com/lucerna-wms/reactor/internal/registry"
)

// Config holds the runtime's tunable knobs.
type Config struct {
	Concurrency     int           // agent_concurrency, default 10
	AgentTimeout    time.Duration // agent_timeout_ms, default 30s
	ContinueOnError bool          // continue_on_error, default true
}

// DefaultConfig returns the runtime's default knob values.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		AgentTimeout:    30 * time.Second,
		ContinueOnError: true,
	}
}

// Runtime is the agent execution harness.
type Runtime struct {
	registry *registry.Registry
	cfg      Config
}

// New builds a Runtime over reg with cfg.
func New(reg *registry.Registry, cfg Config) *Runtime {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultConfig().AgentTimeout
	}
	return &Runtime{registry: reg, cfg: cfg}
}

// Invocation is one agent's outcome within a Summary.
type Invocation struct {
	AgentName string
	Result    agent.Result
	Err       error
	Duration  time.Duration
}

// Summary aggregates one Dispatch call: wall time, success/failure counts,
// and every derived envelope in agent-completion order.
type Summary struct {
	WallTime    time.Duration
	Successes   int
	Failures    int
	Invocations []Invocation
	Envelopes   []envelope.Envelope
}

// Dispatch looks up the agents subscribed to in.EventType, partitions them
// into batches of Config.Concurrency, and runs each batch in parallel. With
// ContinueOnError=false, Dispatch stops issuing further batches as soon as
// any invocation in the current batch failed; already-started batches still
// finish. Every derived envelope is rewritten per the agent contract
// (tenant/correlation/causation) before being appended to the Summary.
func (rt *Runtime) Dispatch(ctx context.Context, in envelope.Envelope, ectx agent.ExecutionContext) Summary {
	start := time.Now()
	agents := rt.registry.AgentsFor(in.EventType)

	summary := Summary{}
	for batchStart := 0; batchStart < len(agents); batchStart += rt.cfg.Concurrency {
		end := batchStart + rt.cfg.Concurrency
		if end > len(agents) {
			end = len(agents)
		}
		batch := agents[batchStart:end]

		results := rt.runBatch(ctx, batch, in, ectx)
		failedInBatch := false
		for _, inv := range results {
			summary.Invocations = append(summary.Invocations, inv)
			if inv.Err != nil || !inv.Result.Success {
				summary.Failures++
				failedInBatch = true
			} else {
				summary.Successes++
			}
			for _, env := range inv.Result.Envelopes {
				summary.Envelopes = append(summary.Envelopes, agent.Rewrite(in, env))
			}
		}

		if failedInBatch && !rt.cfg.ContinueOnError {
			break
		}
	}

	summary.WallTime = time.Since(start)
	return summary
}

// runBatch runs every agent in batch concurrently, each under its own
// per-agent deadline, and collects results in completion order.
func (rt *Runtime) runBatch(ctx context.Context, batch []agent.Agent, in envelope.Envelope, ectx agent.ExecutionContext) []Invocation {
	type indexed struct {
		order int
		inv   Invocation
	}

	resultsCh := make(chan indexed, len(batch))
	var wg sync.WaitGroup
	for i, a := range batch {
		wg.Add(1)
		go func(order int, a agent.Agent) {
			defer wg.Done()
			resultsCh <- indexed{order: order, inv: rt.invoke(ctx, a, in, ectx)}
		}(i, a)
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	// completion order, not submission order: agents for the same inbound
	// envelope may finish in any order.
	out := make([]Invocation, 0, len(batch))
	for r := range resultsCh {
		out = append(out, r.inv)
	}
	return out
}

func (rt *Runtime) invoke(ctx context.Context, a agent.Agent, in envelope.Envelope, ectx agent.ExecutionContext) Invocation {
	deadlineCtx, cancel := context.WithTimeout(ctx, rt.cfg.AgentTimeout)
	defer cancel()

	started := time.Now()
	done := make(chan struct {
		res agent.Result
		err error
	}, 1)

	go func() {
		res, err := a.Handle(deadlineCtx, in, ectx)
		done <- struct {
			res agent.Result
			err error
		}{res, err}
	}()

	select {
	case out := <-done:
		return Invocation{AgentName: a.Name(), Result: out.res, Err: out.err, Duration: time.Since(started)}
	case <-deadlineCtx.Done():
		if ectx.Logger != nil {
			ectx.Logger.Error("agent timed out", slog.String("agent", a.Name()), slog.Duration("timeout", rt.cfg.AgentTimeout))
		}
		return Invocation{
			AgentName: a.Name(),
			Result:    agent.Result{Success: false, Message: "agent timed out", Errors: []string{"AGENT_TIMEOUT"}},
			Err:       deadlineCtx.Err(),
			Duration:  time.Since(started),
		}
	}
}
