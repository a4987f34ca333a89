package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyperengineering/shopfilter/internal/catalog"
)

// ErrNoSnapshotInContext indicates no catalog snapshot was found in the context.
var ErrNoSnapshotInContext = errors.New("no catalog snapshot in context")

// CatalogProvider hands out the current catalog snapshot.
type CatalogProvider interface {
	Current() *catalog.Snapshot
}

// WithSnapshot returns a new context with the snapshot attached. The turn
// service reads the same value.
func WithSnapshot(ctx context.Context, snap *catalog.Snapshot) context.Context {
	return catalog.WithSnapshot(ctx, snap)
}

// SnapshotFromContext extracts the snapshot from the context.
// Returns ErrNoSnapshotInContext if not present or nil.
func SnapshotFromContext(ctx context.Context) (*catalog.Snapshot, error) {
	snap, ok := catalog.FromContext(ctx)
	if !ok {
		return nil, ErrNoSnapshotInContext
	}
	return snap, nil
}

// SnapshotMiddleware pins the current catalog snapshot for the lifetime of
// the request, so a hot reload mid-request cannot mix two catalogs.
func SnapshotMiddleware(provider CatalogProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithSnapshot(r.Context(), provider.Current())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
