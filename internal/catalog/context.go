package catalog

import "context"

type snapshotKey struct{}

// WithSnapshot returns a context carrying snap.
func WithSnapshot(ctx context.Context, snap *Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// FromContext returns the snapshot pinned on ctx, if any.
func FromContext(ctx context.Context) (*Snapshot, bool) {
	snap, ok := ctx.Value(snapshotKey{}).(*Snapshot)
	return snap, ok && snap != nil
}
