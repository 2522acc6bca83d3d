package workers

import (
	"chat-core/contract"
	"context"
	"log/slog"
	"time"
)

// FlushWorker drains the persistence batcher on a fixed interval.
// An empty buffer makes the tick a no-op inside Flush; a failed flush
// is logged and the records are lost, never requeued.
type FlushWorker struct {
	log      *slog.Logger
	batcher  contract.Flusher
	interval time.Duration
}

func NewFlushWorker(log *slog.Logger, batcher contract.Flusher, interval time.Duration) *FlushWorker {
	return &FlushWorker{log: log, batcher: batcher, interval: interval}
}

func (w *FlushWorker) Run(ctx context.Context) error {
	w.log.Info("Starting message flush worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Last drain so a clean shutdown does not strand buffered
			// messages.
			if err := w.batcher.Flush(); err != nil {
				w.log.Error("Final flush failed", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := w.batcher.Flush(); err != nil {
				w.log.Error("Flush failed, batch lost", "err", err)
			}
		}
	}
}
