//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-core/domain"
	"chat-core/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one duplex channel's outgoing side. Implementations must
// never block the caller: a slow consumer drops frames, it does not
// stall presence or relay paths.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// IPresence is the shared registry mapping an identity to its live
// connections and call state. Every mutation is atomic with respect to
// all other operations.
type IPresence interface {
	Add(userID, connID, displayName string, sink EventSink)
	// Remove reports whether the identity went fully offline, so the
	// caller can fire the offline broadcast and status write exactly once.
	Remove(userID, connID string) (offline bool)
	ConnectionsOf(userID string) []EventSink
	AllSinksExcept(connID string) []EventSink
	DisplayName(userID string) string
	// TryStartCall does the busy test and the Ringing write under one
	// lock; false means offline or already in a call.
	TryStartCall(userID, callID string) bool
	SetCallState(userID string, inCall bool, callID string)
	CallState(userID string) (inCall bool, callID string)
}

// Enqueuer is the batcher's write side: append-only, never blocks,
// never rejects.
type Enqueuer interface {
	Enqueue(msg domain.QueuedMessage)
}

// Flusher is the batcher's drain side, driven by the flush worker.
type Flusher interface {
	Flush() error
	Len() int
}

// MessageStore is the persistence sink for chat records. InsertBatch
// tolerates per-record failures: invalid records are rejected without
// aborting the rest of the batch.
type MessageStore interface {
	InsertBatch(records []domain.QueuedMessage) (stored, rejected int, err error)
	FindRecent(userA, userB string, limit int) ([]domain.StoredMessage, error)
}

// StatusStore persists the online flag. Writes are idempotent and
// best-effort; callers log failures and carry on.
type StatusStore interface {
	UpdateStatus(userID string, online bool) error
}

// TokenVerifier turns a raw credential into an identity or fails.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}
