package store

import (
	"context"
	"time"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// ImportMode selects how an import treats existing products.
type ImportMode string

const (
	// ImportReplace deletes every existing product first.
	ImportReplace ImportMode = "replace"
	// ImportMerge upserts by ID, keeping the position of existing products.
	ImportMerge ImportMode = "merge"
)

// ImportResult summarizes one import.
type ImportResult struct {
	ImportID string    `json:"import_id"`
	Inserted int       `json:"inserted"`
	Updated  int       `json:"updated"`
	Removed  int       `json:"removed"`
	At       time.Time `json:"at"`
}

// Stats describes the stored catalog.
type Stats struct {
	ProductCount  int        `json:"product_count"`
	SchemaVersion int64      `json:"schema_version"`
	LastImportID  string     `json:"last_import_id,omitempty"`
	LastImportAt  *time.Time `json:"last_import_at,omitempty"`
}

// Store defines the catalog storage operations.
type Store interface {
	ImportProducts(ctx context.Context, products []types.Product, mode ImportMode) (*ImportResult, error)
	ListProducts(ctx context.Context) ([]types.Product, error)
	GetProduct(ctx context.Context, id string) (*types.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
