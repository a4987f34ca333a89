package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/shopfilter/internal/facets"
	"github.com/hyperengineering/shopfilter/internal/filter"
	"github.com/hyperengineering/shopfilter/internal/types"
)

var (
	filterCatalogPath string
	filterJSONOutput  bool
	filterLimit       int
	filterMinPrice    int
	filterMaxPrice    int
	filterInStock     bool
	filterValues      = map[types.ChipType]*[]string{}
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter a catalog from the command line",
	Long: "Apply facet filters to a catalog and print the matching products.\n" +
		"Values are matched against the catalog vocabulary case-insensitively.",
	Args: cobra.NoArgs,
	RunE: runFilter,
}

func init() {
	flags := filterCmd.Flags()
	flags.StringVar(&filterCatalogPath, "catalog", "", "Catalog file (defaults to the configured catalog source)")
	flags.BoolVar(&filterJSONOutput, "json", false, "Output in JSON format")
	flags.IntVar(&filterLimit, "limit", 20, "Maximum products to print (0 for all)")
	flags.IntVar(&filterMinPrice, "min-price", -1, "Minimum price, inclusive")
	flags.IntVar(&filterMaxPrice, "max-price", -1, "Maximum price, inclusive")
	flags.BoolVar(&filterInStock, "in-stock", false, "Only products in stock")

	for _, ct := range types.ChipTypes {
		values := []string{}
		filterValues[ct] = &values
		flags.StringSliceVar(&values, flagName(ct), nil, fmt.Sprintf("Filter by %s (repeatable)", flagName(ct)))
	}
}

func flagName(ct types.ChipType) string {
	if ct == types.ChipStyleTag {
		return "style"
	}
	return string(ct)
}

func runFilter(cmd *cobra.Command, args []string) error {
	var paths []string
	if filterCatalogPath != "" {
		paths = []string{filterCatalogPath}
	}
	products, err := loadProducts(context.Background(), paths)
	if err != nil {
		return err
	}

	fs, err := buildFilterState(cmd, facets.Build(products))
	if err != nil {
		return err
	}

	matches := filter.Apply(products, fs)
	total := len(matches)
	if filterLimit > 0 && len(matches) > filterLimit {
		matches = matches[:filterLimit]
	}

	out := cmd.OutOrStdout()
	if filterJSONOutput {
		return printJSON(out, types.FilterResponse{Products: matches, Total: total})
	}

	if total == 0 {
		fmt.Fprintln(out, "No matching products.")
		return nil
	}

	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tTITLE\tPRICE\tSTOCK\tSUBCATEGORY\tCOLOR\tSIZE")
	for _, p := range matches {
		stock := "no"
		if p.InStock {
			stock = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			p.ID, p.Title, p.Price, stock, p.Subcategory, p.Color, p.Size)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d matching products\n", len(matches), total)
	return nil
}

// buildFilterState turns the flags into a filter state, resolving each value
// to its catalog casing. Unknown values are kept so they match nothing.
func buildFilterState(cmd *cobra.Command, f *facets.Facets) (types.FilterState, error) {
	var chips []types.Chip
	for _, ct := range types.ChipTypes {
		for _, v := range *filterValues[ct] {
			canonical, ok := f.Lookup(ct, v)
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %q is not in the catalog\n", flagName(ct), v)
				canonical = v
			}
			chips = append(chips, types.NewChip(ct, canonical, ""))
		}
	}

	var minPrice, maxPrice *int
	if filterMinPrice >= 0 {
		v := filterMinPrice
		minPrice = &v
	}
	if filterMaxPrice >= 0 {
		v := filterMaxPrice
		maxPrice = &v
	}
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return types.FilterState{}, fmt.Errorf("--min-price %d exceeds --max-price %d", *minPrice, *maxPrice)
	}

	fs := filter.FromChips(chips, minPrice, maxPrice)
	if filterInStock {
		inStock := true
		fs.InStock = &inStock
	}
	return fs, nil
}
