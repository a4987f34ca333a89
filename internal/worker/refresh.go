// Package worker contains background loops that run alongside the server.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hyperengineering/shopfilter/internal/catalog"
)

// Reloader defines the catalog operation needed by the refresh worker.
type Reloader interface {
	Reload(ctx context.Context) (*catalog.Snapshot, error)
}

// CatalogRefreshWorker reloads the catalog from its source on a fixed
// interval. A failed reload keeps the current snapshot serving.
type CatalogRefreshWorker struct {
	reloader Reloader
	interval time.Duration
}

// NewCatalogRefreshWorker creates a worker with the given reloader and interval.
func NewCatalogRefreshWorker(reloader Reloader, interval time.Duration) *CatalogRefreshWorker {
	return &CatalogRefreshWorker{
		reloader: reloader,
		interval: interval,
	}
}

// Run starts the worker loop. The catalog is loaded at startup, so the first
// reload happens one interval after start.
func (w *CatalogRefreshWorker) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "catalog-refresh",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "catalog-refresh",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *CatalogRefreshWorker) refresh(ctx context.Context) {
	_, err := w.reloader.Reload(ctx)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, catalog.ErrEmptyCatalog) {
		slog.Warn("catalog refresh rejected empty catalog",
			"component", "worker",
			"action", "refresh_rejected",
			"error", err,
		)
		return
	}
	slog.Warn("catalog refresh failed",
		"component", "worker",
		"action", "refresh_failed",
		"error", err,
	)
}
