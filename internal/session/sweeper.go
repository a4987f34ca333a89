package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically evicts idle sessions.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
}

// NewSweeper creates a sweeper for manager running every interval.
func NewSweeper(manager *Manager, interval time.Duration) *Sweeper {
	return &Sweeper{manager: manager, interval: interval}
}

// Run starts the sweep loop. Blocks until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "session-sweeper",
		"interval", w.interval.String(),
		"idle_ttl", w.manager.idleTTL.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "session-sweeper",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Sweeper) sweep() {
	start := time.Now()
	evicted := w.manager.Sweep(w.manager.now())
	if evicted == 0 {
		return
	}
	slog.Info("idle sessions evicted",
		"component", "worker",
		"action", "sweep_complete",
		"evicted", evicted,
		"remaining", w.manager.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
