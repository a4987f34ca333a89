package catalog

import (
	"context"
	"testing"
)

func TestFromContext(t *testing.T) {
	snap := &Snapshot{Source: "pinned"}

	got, ok := FromContext(WithSnapshot(context.Background(), snap))
	if !ok || got != snap {
		t.Errorf("FromContext = %v, %v; want the pinned snapshot", got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context should carry no snapshot")
	}
	if _, ok := FromContext(WithSnapshot(context.Background(), nil)); ok {
		t.Error("nil snapshot should not count as pinned")
	}
}
