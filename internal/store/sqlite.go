package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the SQLite-backed product catalog.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database at dbPath, applies pragmas and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if _, err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Name identifies the store as a catalog source.
func (s *SQLiteStore) Name() string {
	return "sqlite:" + s.path
}

// Load returns every product in catalog order.
func (s *SQLiteStore) Load(ctx context.Context) ([]types.Product, error) {
	return s.ListProducts(ctx)
}

// ImportProducts writes products in one transaction. Catalog order follows
// the order of products; merged products that already exist keep their position.
func (s *SQLiteStore) ImportProducts(ctx context.Context, products []types.Product, mode ImportMode) (*ImportResult, error) {
	if mode != ImportReplace && mode != ImportMerge {
		return nil, fmt.Errorf("%w: unknown import mode %q", ErrInvalidInput, mode)
	}
	seen := make(map[string]bool, len(products))
	for i, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("%w: product %d has no id", ErrInvalidInput, i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidInput, p.ID)
		}
		seen[p.ID] = true
		if p.Price < 0 {
			return nil, fmt.Errorf("%w: product %q has negative price", ErrInvalidInput, p.ID)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result := &ImportResult{ImportID: ulid.Make().String(), At: now}

	if mode == ImportReplace {
		res, err := tx.ExecContext(ctx, `DELETE FROM products`)
		if err != nil {
			return nil, fmt.Errorf("clear products: %w", err)
		}
		n, _ := res.RowsAffected()
		result.Removed = int(n)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM products`).Scan(&next); err != nil {
		return nil, fmt.Errorf("read next position: %w", err)
	}

	ts := now.Format(time.RFC3339Nano)
	for _, p := range products {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`, p.ID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check product %q: %w", p.ID, err)
		}

		if exists {
			_, err = tx.ExecContext(ctx, `
				UPDATE products SET title = ?, price = ?, in_stock = ?, subcategory = ?,
				       color = ?, material = ?, size = ?, updated_at = ?
				WHERE id = ?`,
				p.Title, p.Price, boolToInt(p.InStock), p.Subcategory, p.Color, p.Material, p.Size, ts, p.ID)
			result.Updated++
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO products (id, position, title, price, in_stock, subcategory, color, material, size, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, next, p.Title, p.Price, boolToInt(p.InStock), p.Subcategory, p.Color, p.Material, p.Size, ts, ts)
			next++
			result.Inserted++
		}
		if err != nil {
			return nil, fmt.Errorf("write product %q: %w", p.ID, err)
		}

		if err := replaceValues(ctx, tx, "product_style_tags", "tag", p.ID, p.StyleTags); err != nil {
			return nil, err
		}
		if err := replaceValues(ctx, tx, "product_occasions", "occasion", p.ID, p.Occasions); err != nil {
			return nil, err
		}
	}

	for key, value := range map[string]string{"last_import_id": result.ImportID, "last_import_at": ts} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
			return nil, fmt.Errorf("record import metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

// replaceValues rewrites one product's rows in a multi-valued attribute table.
func replaceValues(ctx context.Context, tx *sql.Tx, table, column, productID string, values []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE product_id = ?`, productID); err != nil {
		return fmt.Errorf("clear %s for %q: %w", table, productID, err)
	}
	stmt := `INSERT OR IGNORE INTO ` + table + ` (product_id, ordinal, ` + column + `) VALUES (?, ?, ?)`
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt, productID, i, v); err != nil {
			return fmt.Errorf("write %s for %q: %w", table, productID, err)
		}
	}
	return nil
}

// ListProducts returns every product ordered by catalog position.
func (s *SQLiteStore) ListProducts(ctx context.Context) ([]types.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, price, in_stock, subcategory, color, material, size
		FROM products ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	if err := s.attachValues(ctx, "product_style_tags", "tag", index, func(p *types.Product, v string) {
		p.StyleTags = append(p.StyleTags, v)
	}, products); err != nil {
		return nil, err
	}
	if err := s.attachValues(ctx, "product_occasions", "occasion", index, func(p *types.Product, v string) {
		p.Occasions = append(p.Occasions, v)
	}, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *SQLiteStore) attachValues(ctx context.Context, table, column string, index map[string]int, add func(*types.Product, string), products []types.Product) error {
	rows, err := s.db.QueryContext(ctx, `SELECT product_id, `+column+` FROM `+table+` ORDER BY product_id, ordinal`)
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, value string
		if err := rows.Scan(&id, &value); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if i, ok := index[id]; ok {
			add(&products[i], value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

// GetProduct returns one product by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, price, in_stock, subcategory, color, material, size
		FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.StyleTags, err = s.values(ctx, "product_style_tags", "tag", id); err != nil {
		return nil, err
	}
	if p.Occasions, err = s.values(ctx, "product_occasions", "occasion", id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) values(ctx context.Context, table, column, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+` FROM `+table+` WHERE product_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteProduct removes a product and its attribute rows.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats returns the product count, schema version and last import metadata.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&stats.ProductCount); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM catalog_meta WHERE key IN ('last_import_id', 'last_import_at')`)
	if err != nil {
		return nil, fmt.Errorf("query catalog metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan catalog metadata: %w", err)
		}
		switch key {
		case "last_import_id":
			stats.LastImportID = value
		case "last_import_at":
			if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
				stats.LastImportAt = &t
			}
		}
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (types.Product, error) {
	var p types.Product
	var inStock int
	if err := row.Scan(&p.ID, &p.Title, &p.Price, &inStock, &p.Subcategory, &p.Color, &p.Material, &p.Size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan product: %w", err)
	}
	p.InStock = inStock != 0
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
