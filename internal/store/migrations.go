package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/hyperengineering/shopfilter/migrations"
)

var gooseSetup struct {
	once sync.Once
	err  error
}

// configureGoose points goose at the embedded catalog migrations. goose keeps
// this configuration in package globals, so it is applied once per process.
func configureGoose() error {
	gooseSetup.once.Do(func() {
		goose.SetLogger(goose.NopLogger())
		goose.SetBaseFS(migrations.FS)
		gooseSetup.err = goose.SetDialect("sqlite3")
	})
	return gooseSetup.err
}

// RunMigrations brings the catalog schema up to date and returns the
// resulting schema version.
func RunMigrations(ctx context.Context, db *sql.DB) (int64, error) {
	if err := configureGoose(); err != nil {
		return 0, fmt.Errorf("configure migrations: %w", err)
	}

	before, err := SchemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return before, fmt.Errorf("apply migrations: %w", err)
	}
	after, err := SchemaVersion(ctx, db)
	if err != nil {
		return before, err
	}

	if after != before {
		slog.Info("catalog schema migrated",
			"component", "store",
			"action", "migrate",
			"from_version", before,
			"to_version", after,
		)
	}
	return after, nil
}

// SchemaVersion reports the applied migration version. A database goose has
// never touched reports 0.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := configureGoose(); err != nil {
		return 0, fmt.Errorf("configure migrations: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
