// Package catalog holds the immutable product catalog and its facets.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/shopfilter/internal/facets"
	"github.com/hyperengineering/shopfilter/internal/types"
)

// ErrEmptyCatalog is returned when a source yields no products.
var ErrEmptyCatalog = errors.New("catalog is empty")

// Source loads the full product list.
type Source interface {
	Load(ctx context.Context) ([]types.Product, error)
	Name() string
}

// Snapshot is one loaded catalog. It is never mutated after creation.
type Snapshot struct {
	Products []types.Product
	Facets   *facets.Facets
	Source   string
	LoadedAt time.Time
}

// NewSnapshot validates products and computes their facets.
func NewSnapshot(products []types.Product, source string) (*Snapshot, error) {
	if err := ValidateProducts(products); err != nil {
		return nil, err
	}
	owned := make([]types.Product, len(products))
	copy(owned, products)
	return &Snapshot{
		Products: owned,
		Facets:   facets.Build(owned),
		Source:   source,
		LoadedAt: time.Now().UTC(),
	}, nil
}

// Empty reports whether the snapshot has no products.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Products) == 0
}

// ValidateProducts checks product IDs are present and unique and prices are non-negative.
func ValidateProducts(products []types.Product) error {
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("product %d: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("product %d: duplicate id %q", i, id)
		}
		seen[id] = true
		if p.Price < 0 {
			return fmt.Errorf("product %q: price must be non-negative", id)
		}
	}
	return nil
}

// Holder serves the current snapshot and swaps it atomically on reload.
type Holder struct {
	source  Source
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder with an empty snapshot.
func NewHolder(source Source) *Holder {
	h := &Holder{source: source}
	h.current.Store(&Snapshot{Facets: facets.Build(nil), Source: sourceName(source)})
	return h
}

// Current returns the active snapshot. Never nil.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Reload reads the source and installs a new snapshot. On error, or when the
// source is empty and a non-empty snapshot is already installed, the current
// snapshot is kept.
func (h *Holder) Reload(ctx context.Context) (*Snapshot, error) {
	if h.source == nil {
		return h.Current(), fmt.Errorf("reload catalog: no source configured")
	}

	start := time.Now()
	products, err := h.source.Load(ctx)
	if err != nil {
		return h.Current(), fmt.Errorf("reload catalog from %s: %w", h.source.Name(), err)
	}
	if len(products) == 0 && !h.Current().Empty() {
		return h.Current(), fmt.Errorf("reload catalog from %s: %w", h.source.Name(), ErrEmptyCatalog)
	}

	snap, err := NewSnapshot(products, h.source.Name())
	if err != nil {
		return h.Current(), fmt.Errorf("reload catalog from %s: %w", h.source.Name(), err)
	}
	h.current.Store(snap)

	slog.Info("catalog loaded",
		"component", "catalog",
		"action", "catalog_loaded",
		"source", snap.Source,
		"products", len(snap.Products),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if snap.Empty() {
		return snap, ErrEmptyCatalog
	}
	return snap, nil
}

func sourceName(s Source) string {
	if s == nil {
		return ""
	}
	return s.Name()
}
