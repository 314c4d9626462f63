// Package audit implements the agent-run audit log: a Mongo-backed append
// log of every agent invocation's outcome, supplementing the relational
// event store (which is keyed on event identity, not on which agent ran
// against it) with a queryable per-agent-run trail.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lucerna-wms/reactor/internal/runtime"
)

// Run is one agent invocation's recorded outcome.
type Run struct {
	EventID         string    `bson:"event_id"`
	AgentName       string    `bson:"agent_name"`
	TenantID        string    `bson:"tenant_id"`
	StartedAt       time.Time `bson:"started_at"`
	DurationMs      int64     `bson:"duration_ms"`
	Success         bool      `bson:"success"`
	Message         string    `bson:"message"`
	DerivedEventIDs []string  `bson:"derived_event_ids"`
	Errors          []string  `bson:"errors"`
}

// Log appends Run documents to the "reactor.agent_runs" collection.
type Log struct {
	collection *mongo.Collection
}

// Connect dials uri and verifies the connection before returning.
func Connect(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// NewLog wraps client's "reactor" database, "agent_runs" collection.
func NewLog(client *mongo.Client) *Log {
	return &Log{collection: client.Database("reactor").Collection("agent_runs")}
}

// Append inserts run.
func (l *Log) Append(ctx context.Context, run Run) error {
	if _, err := l.collection.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}
	return nil
}

// RecordSummary appends one Run document per invocation in summary, for
// the inbound envelope identified by eventID/tenantID, matching what the
// consumer observed from a single Dispatch call.
func (l *Log) RecordSummary(ctx context.Context, eventID, tenantID string, startedAt time.Time, summary runtime.Summary) error {
	for _, inv := range summary.Invocations {
		run := Run{
			EventID:    eventID,
			AgentName:  inv.AgentName,
			TenantID:   tenantID,
			StartedAt:  startedAt,
			DurationMs: inv.Duration.Milliseconds(),
			Success:    inv.Result.Success,
			Message:    inv.Result.Message,
			Errors:     inv.Result.Errors,
		}
		for _, env := range inv.Result.Envelopes {
			run.DerivedEventIDs = append(run.DerivedEventIDs, env.EventID)
		}
		if err := l.Append(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// ForEvent returns every recorded run for eventID, oldest first — the
// query a replay/audit check runs against to confirm "replay twice, same
// final state" held.
func (l *Log) ForEvent(ctx context.Context, eventID string) ([]Run, error) {
	cursor, err := l.collection.Find(ctx, bson.M{"event_id": eventID}, options.Find().SetSort(bson.M{"started_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("find agent runs: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Run
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode agent runs: %w", err)
	}
	return out, nil
}
