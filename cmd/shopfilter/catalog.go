package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/config"
	"github.com/hyperengineering/shopfilter/internal/facets"
	"github.com/hyperengineering/shopfilter/internal/snapshot"
	"github.com/hyperengineering/shopfilter/internal/store"
	"github.com/hyperengineering/shopfilter/internal/types"
)

var (
	catalogDBOverride string
	catalogJSONOutput bool
	importMode        string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the product catalog",
	Long:  "Import, inspect, and edit the SQLite product catalog without running the server.",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import products from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogImport,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog database statistics",
	Args:  cobra.NoArgs,
	RunE:  runCatalogStats,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <product-id>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove <product-id>",
	Short: "Remove one product",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogRemove,
}

var catalogPublishCmd = &cobra.Command{
	Use:   "publish <file>",
	Short: "Publish a catalog file to object storage",
	Long:  "Validate a JSON or YAML catalog file and upload it to the configured S3 bucket and key.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogPublish,
}

var catalogFacetsCmd = &cobra.Command{
	Use:   "facets [file]",
	Short: "Print the facet vocabulary of a catalog",
	Long:  "Print the facet vocabulary of the given catalog file, or of the configured catalog source.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogFacets,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogDBOverride, "db", "",
		"Catalog database path (overrides config and SHOPFILTER_DB_PATH)")
	catalogCmd.PersistentFlags().BoolVar(&catalogJSONOutput, "json", false,
		"Output in JSON format")
	catalogImportCmd.Flags().StringVar(&importMode, "mode", string(store.ImportReplace),
		"Import mode: replace or merge")

	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogRemoveCmd)
	catalogCmd.AddCommand(catalogFacetsCmd)
	catalogCmd.AddCommand(catalogPublishCmd)
}

// openCatalogStore opens the catalog database named by --db or the config.
func openCatalogStore() (*store.SQLiteStore, error) {
	path := catalogDBOverride
	if path == "" {
		cfg, err := config.LoadCatalogConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.Catalog.DBPath
	}
	return store.NewSQLiteStore(path)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mode := store.ImportMode(strings.ToLower(importMode))
	if mode != store.ImportReplace && mode != store.ImportMerge {
		return fmt.Errorf("invalid --mode %q: must be %q or %q", importMode, store.ImportReplace, store.ImportMerge)
	}

	src := &catalog.FileSource{Path: args[0]}
	products, err := src.Load(ctx)
	if err != nil {
		return err
	}
	if err := catalog.ValidateProducts(products); err != nil {
		return fmt.Errorf("validate %s: %w", args[0], err)
	}

	db, err := openCatalogStore()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ImportProducts(ctx, products, mode)
	if err != nil {
		return fmt.Errorf("import products: %w", err)
	}

	out := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(out, res)
	}
	fmt.Fprintf(out, "Imported %d products from %s (%s): %d inserted, %d updated, %d removed\n",
		len(products), args[0], mode, res.Inserted, res.Updated, res.Removed)
	fmt.Fprintf(out, "Import ID: %s\n", res.ImportID)
	return nil
}

func runCatalogStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openCatalogStore()
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("catalog stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Database:     %s\n", db.Name())
	fmt.Fprintf(out, "Products:     %d\n", stats.ProductCount)
	fmt.Fprintf(out, "Schema:       v%d\n", stats.SchemaVersion)
	if stats.LastImportAt != nil {
		fmt.Fprintf(out, "Last import:  %s (%s)\n", stats.LastImportAt.Format("2006-01-02 15:04:05 MST"), stats.LastImportID)
	} else {
		fmt.Fprintln(out, "Last import:  never")
	}
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openCatalogStore()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.GetProduct(ctx, args[0])
	if err != nil {
		return fmt.Errorf("product %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(out, p)
	}
	fmt.Fprintf(out, "ID:          %s\n", p.ID)
	fmt.Fprintf(out, "Title:       %s\n", p.Title)
	fmt.Fprintf(out, "Price:       %d\n", p.Price)
	fmt.Fprintf(out, "In stock:    %t\n", p.InStock)
	fmt.Fprintf(out, "Subcategory: %s\n", p.Subcategory)
	fmt.Fprintf(out, "Color:       %s\n", p.Color)
	fmt.Fprintf(out, "Material:    %s\n", p.Material)
	fmt.Fprintf(out, "Size:        %s\n", p.Size)
	fmt.Fprintf(out, "Style tags:  %s\n", joinOrDash(p.StyleTags))
	fmt.Fprintf(out, "Occasions:   %s\n", joinOrDash(p.Occasions))
	return nil
}

func runCatalogRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openCatalogStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteProduct(ctx, args[0]); err != nil {
		return fmt.Errorf("remove product %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed product %s\n", args[0])
	return nil
}

func runCatalogPublish(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	products, err := (&catalog.FileSource{Path: args[0]}).Load(ctx)
	if err != nil {
		return err
	}

	cfg, err := config.LoadCatalogConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dest, err := snapshot.NewS3Source(cfg.Catalog.S3)
	if err != nil {
		return fmt.Errorf("open object storage: %w", err)
	}
	if err := dest.Publish(ctx, products); err != nil {
		return fmt.Errorf("publish %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d products to %s\n", len(products), dest.Name())
	return nil
}

func runCatalogFacets(cmd *cobra.Command, args []string) error {
	products, err := loadProducts(context.Background(), args)
	if err != nil {
		return err
	}
	f := facets.Build(products)

	out := cmd.OutOrStdout()
	if catalogJSONOutput {
		return printJSON(out, f)
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "FACET\tCOUNT\tVALUES")
	for _, ct := range types.ChipTypes {
		values := f.Values(ct)
		fmt.Fprintf(w, "%s\t%d\t%s\n", ct.FilterKey(), len(values), joinOrDash(values))
	}
	if bounds, ok := f.Bounds(); ok {
		fmt.Fprintf(w, "price\t-\t%d to %d\n", bounds.Min, bounds.Max)
	}
	return w.Flush()
}

// loadProducts reads the catalog file named in args, or the configured
// catalog source when args is empty.
func loadProducts(ctx context.Context, args []string) ([]types.Product, error) {
	if len(args) > 0 && args[0] != "" {
		return (&catalog.FileSource{Path: args[0]}).Load(ctx)
	}

	cfg, err := config.LoadCatalogConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if catalogDBOverride != "" {
		cfg.Catalog.Source = config.SourceSQLite
		cfg.Catalog.DBPath = catalogDBOverride
	}
	src, closer, err := openCatalogSource(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(closer, "catalog source")
	return src.Load(ctx)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
