package workers

import (
	"chat-core/contract"
	"chat-core/runtime"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically logs process health (CPU, RSS, status)
// together with the gateway gauges: online identities and batcher
// backlog. The buffer has no bound, so the backlog gauge is the only
// early warning when flushes stop succeeding.
type TelemetryWorker struct {
	log      *slog.Logger
	registry *runtime.Registry
	batcher  contract.Flusher
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, registry *runtime.Registry,
	batcher contract.Flusher, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, registry: registry, batcher: batcher, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			w.log.Info("telemetry: gateway health",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"online_users", w.registry.OnlineCount(),
				"buffered_messages", w.batcher.Len(),
			)
		}
	}
}

// selfStats retrieves technical metrics (Memory, CPU, and OS Status)
// for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
