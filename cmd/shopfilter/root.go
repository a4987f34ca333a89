package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/shopfilter/internal/api"
	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/config"
	"github.com/hyperengineering/shopfilter/internal/llm"
	"github.com/hyperengineering/shopfilter/internal/session"
	"github.com/hyperengineering/shopfilter/internal/snapshot"
	"github.com/hyperengineering/shopfilter/internal/store"
	"github.com/hyperengineering/shopfilter/internal/turn"
	"github.com/hyperengineering/shopfilter/internal/vocab"
	"github.com/hyperengineering/shopfilter/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "shopfilter",
	Short: "Shopfilter - conversational product filtering service",
	Long: "Serves the conversational filter API. Run without a subcommand to start the server;\n" +
		"use the catalog and filter subcommands to work with catalogs offline.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(filterCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	slog.Info("configuration loaded", "dev_mode", config.DevMode())
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	tables, err := loadVocab(cfg.Vocab)
	if err != nil {
		return err
	}

	source, closer, err := openCatalogSource(cfg.Catalog)
	if err != nil {
		return err
	}
	defer closeQuietly(closer, "catalog source")

	holder := catalog.NewHolder(source)
	snap, err := holder.Reload(ctx)
	if err != nil && !errors.Is(err, catalog.ErrEmptyCatalog) {
		return err
	}
	if snap.Empty() {
		slog.Warn("catalog is empty; turns will answer with no products", "source", source.Name())
	}
	slog.Info("catalog initialized", "source", source.Name(), "products", len(snap.Products))

	generator := llm.NewOpenAI(llm.Options{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Timeout:     cfg.LLM.Timeout.Std(),
		Temperature: cfg.LLM.Temperature,
	})
	slog.Info("generator initialized", "model", generator.ModelName())

	turns := turn.NewService(holder, generator, tables, turn.Options{
		PreviewLimit:     cfg.Turn.PreviewLimit,
		ColorIntentTurns: cfg.Turn.ColorIntentTurns,
		HistoryTurns:     cfg.LLM.HistoryTurns,
	})
	sessions := session.NewManager(cfg.Session.IdleTTL.Std(), cfg.Session.MaxHistory)

	handler := api.NewHandler(holder, turns, sessions, cfg.Auth.APIKey, Version, generator.ModelName())
	router := api.NewRouter(handler)
	slog.Info("router initialized")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	var wg sync.WaitGroup
	if cfg.Session.IdleTTL > 0 {
		sweeper := session.NewSweeper(sessions, cfg.Session.SweepInterval.Std())
		startWorker(ctx, &wg, "session-sweeper", sweeper.Run)
	}
	if cfg.Catalog.Watch {
		watcher, err := catalog.NewWatcher(holder, cfg.Catalog.Path, catalog.DefaultDebounce)
		if err != nil {
			return err
		}
		startWorker(ctx, &wg, "catalog-watcher", watcher.Run)
	}
	if cfg.Catalog.RefreshInterval > 0 {
		refresher := worker.NewCatalogRefreshWorker(holder, cfg.Catalog.RefreshInterval.Std())
		startWorker(ctx, &wg, "catalog-refresh", refresher.Run)
	}

	go func() {
		slog.Info("server starting", "address", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from the log section.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadVocab returns the embedded mapping tables, or the override file when set.
func loadVocab(cfg config.VocabConfig) (*vocab.Tables, error) {
	if cfg.Path == "" {
		return vocab.Default(), nil
	}
	tables, err := vocab.Load(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary %s: %w", cfg.Path, err)
	}
	slog.Info("vocabulary loaded", "path", cfg.Path, "color_families", len(tables.ColorFamilies))
	return tables, nil
}

// openCatalogSource opens the configured catalog source. The returned closer
// is nil for file and object storage sources.
func openCatalogSource(cfg config.CatalogConfig) (catalog.Source, io.Closer, error) {
	switch cfg.Source {
	case config.SourceSQLite:
		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	case config.SourceFile, "":
		return &catalog.FileSource{Path: cfg.Path}, nil, nil
	case config.SourceS3:
		src, err := snapshot.NewS3Source(cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", cfg.Source)
	}
}

func closeQuietly(c io.Closer, what string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		slog.Error("close error", "resource", what, "error", err)
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
