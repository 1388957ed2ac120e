// Package events defines the audit event sink consumed by the directory and
// escrow subsystems. Events describe security-relevant transitions
// (connection attempts, bind failures, membership checks, escrow state
// changes); payloads never include passwords or vault plaintext.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of audit event.
type Type string

const (
	TypeConnectionAttempted Type = "directory.connection_attempted"
	TypeBindFailed          Type = "directory.bind_failed"
	TypeGroupCheck          Type = "directory.group_check"
	TypeUserResolved        Type = "directory.user_resolved"
	TypeEscrowTransition    Type = "escrow.transition"
	TypeSyncRun             Type = "directory.sync_run"
)

// Event is a single audit record. Fields hold event-specific key-value
// details such as server, filter, directory result code or escrow status.
type Event struct {
	ID     string
	Type   Type
	Time   time.Time
	Fields map[string]any
}

// New builds an Event with a fresh ID and the given key-value fields.
// The variadic args are interpreted as key–value pairs, mirroring the
// logging package.
func New(t Type, args ...any) Event {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		Time:   time.Now(),
		Fields: fields,
	}
}

// Sink receives audit events. Implementations must not block the caller for
// long; Emit errors are not surfaced to the emitting subsystem.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}
