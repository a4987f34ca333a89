// Package facets derives the controlled vocabulary of a catalog.
package facets

import (
	"sort"
	"strings"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Facets is a read-only snapshot of every legal facet value in a catalog.
// Lists are sorted lexicographically and keep the casing stored in the catalog.
type Facets struct {
	Subcategories []string `json:"subcategories"`
	Colors        []string `json:"colors"`
	Materials     []string `json:"materials"`
	StyleTags     []string `json:"styleTags"`
	Occasions     []string `json:"occasions"`
	Sizes         []string `json:"sizes"`
	MinPrice      int      `json:"minPrice"`
	MaxPrice      int      `json:"maxPrice"`

	// HasPrice is false for an empty catalog, where no price range exists.
	HasPrice bool `json:"hasPrice"`

	index map[types.ChipType]map[string]string
}

// Build computes the facets of products. An empty catalog yields empty lists
// and HasPrice=false.
func Build(products []types.Product) *Facets {
	sets := map[types.ChipType]map[string]struct{}{}
	for _, ct := range types.ChipTypes {
		sets[ct] = map[string]struct{}{}
	}
	add := func(ct types.ChipType, v string) {
		if strings.TrimSpace(v) == "" {
			return
		}
		sets[ct][v] = struct{}{}
	}

	f := &Facets{}
	for i, p := range products {
		add(types.ChipSubcategory, p.Subcategory)
		add(types.ChipColor, p.Color)
		add(types.ChipMaterial, p.Material)
		add(types.ChipSize, p.Size)
		for _, tag := range p.StyleTags {
			add(types.ChipStyleTag, tag)
		}
		for _, occ := range p.Occasions {
			add(types.ChipOccasion, occ)
		}

		if i == 0 || p.Price < f.MinPrice {
			f.MinPrice = p.Price
		}
		if i == 0 || p.Price > f.MaxPrice {
			f.MaxPrice = p.Price
		}
	}
	f.HasPrice = len(products) > 0

	f.Subcategories = sortedKeys(sets[types.ChipSubcategory])
	f.Colors = sortedKeys(sets[types.ChipColor])
	f.Materials = sortedKeys(sets[types.ChipMaterial])
	f.StyleTags = sortedKeys(sets[types.ChipStyleTag])
	f.Occasions = sortedKeys(sets[types.ChipOccasion])
	f.Sizes = sortedKeys(sets[types.ChipSize])
	f.buildIndex()
	return f
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// buildIndex maps lower-cased values to their canonical catalog form.
// When two catalog values differ only by case, the first in sort order wins.
func (f *Facets) buildIndex() {
	f.index = make(map[types.ChipType]map[string]string, len(types.ChipTypes))
	for _, ct := range types.ChipTypes {
		values := f.Values(ct)
		m := make(map[string]string, len(values))
		for _, v := range values {
			key := foldKey(ct, v)
			if _, exists := m[key]; !exists {
				m[key] = v
			}
		}
		f.index[ct] = m
	}
}

// foldKey is the comparison key for a facet value. Sizes compare upper-cased,
// everything else lower-cased.
func foldKey(ct types.ChipType, v string) string {
	v = strings.TrimSpace(v)
	if ct == types.ChipSize {
		return strings.ToUpper(v)
	}
	return strings.ToLower(v)
}

// Values returns the sorted value list for a chip type.
func (f *Facets) Values(ct types.ChipType) []string {
	if f == nil {
		return nil
	}
	switch ct {
	case types.ChipSubcategory:
		return f.Subcategories
	case types.ChipColor:
		return f.Colors
	case types.ChipMaterial:
		return f.Materials
	case types.ChipStyleTag:
		return f.StyleTags
	case types.ChipOccasion:
		return f.Occasions
	case types.ChipSize:
		return f.Sizes
	default:
		return nil
	}
}

// Lookup returns the canonical catalog casing of value for the chip type.
func (f *Facets) Lookup(ct types.ChipType, value string) (string, bool) {
	if f == nil {
		return "", false
	}
	key := foldKey(ct, value)
	if f.index == nil {
		// Facets decoded from JSON carry no index.
		for _, v := range f.Values(ct) {
			if foldKey(ct, v) == key {
				return v, true
			}
		}
		return "", false
	}
	canonical, ok := f.index[ct][key]
	return canonical, ok
}

// Contains reports whether value is a member of the chip type's facet list.
func (f *Facets) Contains(ct types.ChipType, value string) bool {
	_, ok := f.Lookup(ct, value)
	return ok
}

// Bounds returns the catalog-wide price range. ok is false for an empty catalog.
func (f *Facets) Bounds() (types.PriceRange, bool) {
	if f == nil || !f.HasPrice {
		return types.PriceRange{}, false
	}
	return types.PriceRange{Min: f.MinPrice, Max: f.MaxPrice}, true
}
