// Package envelope implements the canonical event envelope: the on-the-
// wire shape every domain event and every agent-derived event shares, its
// validation, and the causation/correlation linking rules.
package envelope

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the schema_version stamped on every envelope minted by
// New. Nothing in this codebase mints any other version; a future breaking
// payload change would bump this.
const SchemaVersion = "1.0"

// ActorType enumerates who originated an envelope.
type ActorType string

const (
	ActorUser        ActorType = "USER"
	ActorSystem      ActorType = "SYSTEM"
	ActorAgent       ActorType = "AGENT"
	ActorIntegration ActorType = "INTEGRATION"
)

// Actor identifies the originator of an envelope.
type Actor struct {
	Type  ActorType `json:"type"`
	ID    string    `json:"id"`
	Roles []string  `json:"roles,omitempty"`
}

// Envelope is the immutable, value-typed event record. Treat every field
// as read-only once constructed; derive a new envelope rather than
// mutating one in place.
type Envelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	OccurredAt    time.Time              `json:"occurred_at"`
	SchemaVersion string                 `json:"schema_version"`
	CorrelationID string                 `json:"correlation_id"`
	CausationID   string                 `json:"causation_id,omitempty"`
	Actor         Actor                  `json:"actor"`
	TenantID      string                 `json:"tenant_id"`
	WarehouseID   string                 `json:"warehouse_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// eventTypePattern enforces the "AggregateName.VerbPhrase" grammar:
// ^[A-Z][A-Za-z]+\.[A-Z][A-Za-z]+$
var eventTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]+\.[A-Z][A-Za-z]+$`)

// Context carries the fields an envelope derives from its caller: the
// correlation id shared by every envelope in one user interaction, the
// optional id of the envelope that caused this one, who is acting, and the
// tenancy scope.
type Context struct {
	CorrelationID string
	CausationID   string
	Actor         Actor
	TenantID      string
	WarehouseID   string
}

// New mints a fresh envelope: a new event id, the current timestamp, schema
// version 1.0, and the context's identity/causation fields. It returns a
// validation error if eventType or the context's identifiers are malformed.
func New(eventType string, payload map[string]interface{}, ctx Context) (Envelope, error) {
	env := Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		CorrelationID: ctx.CorrelationID,
		CausationID:   ctx.CausationID,
		Actor:         ctx.Actor,
		TenantID:      ctx.TenantID,
		WarehouseID:   ctx.WarehouseID,
		Payload:       payload,
	}
	if err := Validate(env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Derive mints a new envelope caused by src: it copies src's tenant and
// correlation id and sets CausationID to src.EventID. Callers that need a
// different actor/warehouse still get tenant/correlation/causation pinned
// correctly — the runtime rewrites these fields defensively before
// acceptance regardless of what a caller passes in.
func Derive(src Envelope, eventType string, payload map[string]interface{}, actor Actor, warehouseID string) (Envelope, error) {
	return New(eventType, payload, Context{
		CorrelationID: src.CorrelationID,
		CausationID:   src.EventID,
		Actor:         actor,
		TenantID:      src.TenantID,
		WarehouseID:   warehouseID,
	})
}

// Validate checks the structural invariants: event type grammar and
// well-formed identifiers. It does not check that CausationID
// names an existing envelope, and neither the outbox nor the event store
// checks that on insert.
func Validate(env Envelope) error {
	if !eventTypePattern.MatchString(env.EventType) {
		return ValidationError{Field: "event_type", Reason: "must match AggregateName.VerbPhrase"}
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return ValidationError{Field: "event_id", Reason: "must be a UUID"}
	}
	if _, err := uuid.Parse(env.CorrelationID); err != nil {
		return ValidationError{Field: "correlation_id", Reason: "must be a UUID"}
	}
	if env.CausationID != "" {
		if _, err := uuid.Parse(env.CausationID); err != nil {
			return ValidationError{Field: "causation_id", Reason: "must be a UUID"}
		}
	}
	if _, err := uuid.Parse(env.TenantID); err != nil {
		return ValidationError{Field: "tenant_id", Reason: "must be a UUID"}
	}
	if env.WarehouseID != "" {
		if _, err := uuid.Parse(env.WarehouseID); err != nil {
			return ValidationError{Field: "warehouse_id", Reason: "must be a UUID"}
		}
	}
	switch env.Actor.Type {
	case ActorUser, ActorSystem, ActorAgent, ActorIntegration:
	default:
		return ValidationError{Field: "actor.type", Reason: "must be one of USER|SYSTEM|AGENT|INTEGRATION"}
	}
	if env.Actor.ID == "" {
		return ValidationError{Field: "actor.id", Reason: "must not be empty"}
	}
	return nil
}

// ValidationError reports a single malformed envelope field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return "envelope: " + e.Field + ": " + e.Reason
}

// RoutingKey derives the broker routing key from an event type:
// lower-cased, dot-separated ("Inventory.MovementRecorded" ->
// "inventory.movementrecorded").
func RoutingKey(eventType string) string {
	b := make([]rune, 0, len(eventType))
	for _, r := range eventType {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		b = append(b, r)
	}
	return string(b)
}
