// Package services holds the coordination logic between the presence
// registry, the persistence layer and the duplex event surface.
package services

import (
	"chat-core/contract"
	"chat-core/domain"
	"fmt"
	"log/slog"
	"sync"
)

// Batcher buffers outgoing message records and hands them to the store
// in bulk. Enqueue never blocks and never rejects; the buffer is
// unbounded. The snapshot-and-clear inside Flush is atomic with respect
// to concurrent Enqueue calls: no record is lost or duplicated between
// the two steps.
type Batcher struct {
	mu     sync.Mutex
	log    *slog.Logger
	store  contract.MessageStore
	buffer []domain.QueuedMessage
}

func NewBatcher(log *slog.Logger, store contract.MessageStore) *Batcher {
	return &Batcher{log: log, store: store}
}

// Enqueue appends a record to the in-memory buffer, preserving
// insertion order.
func (b *Batcher) Enqueue(msg domain.QueuedMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, msg)
}

// Len reports the current backlog, for telemetry.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Flush snapshots and clears the buffer, then performs one bulk insert.
// Records rejected by per-record validation are logged and dropped; a
// whole-batch failure loses the snapshot as well. There is no retry and
// no requeue either way.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	snapshot := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	stored, rejected, err := b.store.InsertBatch(snapshot)
	if err != nil {
		return fmt.Errorf("bulk insert of %d messages failed: %w", len(snapshot), err)
	}
	if rejected > 0 {
		b.log.Warn("Some records failed validation and were dropped",
			"stored", stored, "rejected", rejected)
	}
	b.log.Debug(fmt.Sprintf("Flushed %d messages to store", stored))
	return nil
}
