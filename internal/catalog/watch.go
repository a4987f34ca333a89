package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a Holder whenever its catalog file changes.
type Watcher struct {
	holder   *Holder
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	// onReload is called after each reload attempt. Used by tests.
	onReload func(*Snapshot, error)
}

// NewWatcher watches the directory holding path so that atomic
// rename-over-write saves are seen.
func NewWatcher(holder *Holder, path string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create catalog watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch catalog directory: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{holder: holder, path: abs, debounce: debounce, watcher: w}, nil
}

// Run blocks until ctx is cancelled, reloading on changes to the catalog file.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	slog.Info("worker started",
		"component", "catalog",
		"worker", "catalog-watch",
		"path", w.path,
	)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			slog.Info("worker stopped",
				"component", "catalog",
				"worker", "catalog-watch",
				"reason", "context_cancelled",
			)
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("catalog watch error",
				"component", "catalog",
				"action", "watch_error",
				"error", err,
			)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	snap, err := w.holder.Reload(ctx)
	if err != nil {
		slog.Error("catalog reload failed",
			"component", "catalog",
			"action", "reload_failed",
			"path", w.path,
			"error", err,
		)
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}
