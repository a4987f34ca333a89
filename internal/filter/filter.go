// Package filter evaluates filter state against the catalog.
//
// Values on the same facet combine with OR; constraints across facets combine
// with AND. An unconstrained facet never excludes a product.
package filter

import (
	"sort"
	"strings"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Apply returns the products that satisfy every constrained field of f, in
// catalog order.
func Apply(products []types.Product, f types.FilterState) []types.Product {
	out := make([]types.Product, 0, len(products))
	for _, p := range products {
		if Matches(p, f) {
			out = append(out, p)
		}
	}
	return out
}

// Count is Apply without materializing the result.
func Count(products []types.Product, f types.FilterState) int {
	n := 0
	for _, p := range products {
		if Matches(p, f) {
			n++
		}
	}
	return n
}

// Matches reports whether p passes every constrained field of f.
func Matches(p types.Product, f types.FilterState) bool {
	switch {
	case len(f.Subcategories) > 0:
		if !containsExact(f.Subcategories, p.Subcategory) {
			return false
		}
	case f.Subcategory != nil:
		if p.Subcategory != *f.Subcategory {
			return false
		}
	}

	if len(f.Occasions) > 0 && !intersects(f.Occasions, p.Occasions) {
		return false
	}
	if len(f.Colors) > 0 && !containsFold(f.Colors, p.Color) {
		return false
	}
	if len(f.Materials) > 0 && !containsExact(f.Materials, p.Material) {
		return false
	}
	if len(f.Sizes) > 0 && !containsExact(f.Sizes, p.Size) {
		return false
	}
	if len(f.StyleTags) > 0 && !intersects(f.StyleTags, p.StyleTags) {
		return false
	}
	if f.InStock != nil && p.InStock != *f.InStock {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}

// MatchesChip reports whether p individually satisfies a single chip.
func MatchesChip(p types.Product, c types.Chip) bool {
	switch c.Type {
	case types.ChipSubcategory:
		return p.Subcategory == c.Value
	case types.ChipOccasion:
		return containsExact(p.Occasions, c.Value)
	case types.ChipColor:
		return strings.EqualFold(p.Color, c.Value)
	case types.ChipMaterial:
		return p.Material == c.Value
	case types.ChipStyleTag:
		return containsExact(p.StyleTags, c.Value)
	case types.ChipSize:
		return p.Size == c.Value
	default:
		return false
	}
}

// Ranked is a product with the number of candidate chips it satisfies.
type Ranked struct {
	Product types.Product `json:"product"`
	Matches int           `json:"matches"`
}

// RankAnyChip scores each product by how many chips it satisfies, keeps those
// with a positive score and sorts by score descending, ties in catalog order.
//
// Occasion chips act as a gate: when present, only products matching at least
// one of the occasions are considered, and the remaining chips do the scoring.
func RankAnyChip(products []types.Product, chips []types.Chip) []Ranked {
	if len(chips) == 0 {
		return []Ranked{}
	}

	var occasions, scoring []types.Chip
	for _, c := range chips {
		if c.Type == types.ChipOccasion {
			occasions = append(occasions, c)
		} else {
			scoring = append(scoring, c)
		}
	}

	pool := products
	if len(occasions) > 0 {
		pool = make([]types.Product, 0, len(products))
		for _, p := range products {
			if matchesAny(p, occasions) {
				pool = append(pool, p)
			}
		}
		if len(scoring) == 0 {
			scoring = occasions
		}
	}

	ranked := make([]Ranked, 0, len(pool))
	for _, p := range pool {
		n := 0
		for _, c := range scoring {
			if MatchesChip(p, c) {
				n++
			}
		}
		if n > 0 {
			ranked = append(ranked, Ranked{Product: p, Matches: n})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Matches > ranked[j].Matches
	})
	return ranked
}

// MatchAnyChip returns the products of RankAnyChip without their scores.
func MatchAnyChip(products []types.Product, chips []types.Chip) []types.Product {
	ranked := RankAnyChip(products, chips)
	out := make([]types.Product, len(ranked))
	for i, r := range ranked {
		out[i] = r.Product
	}
	return out
}

// IsAvailable reports whether candidate is worth offering: adding it to f still
// matches something, or it is already selected and may be toggled off.
func IsAvailable(products []types.Product, f types.FilterState, candidate types.Chip, selected []types.Chip) bool {
	for _, s := range selected {
		if s.ID == candidate.ID {
			return true
		}
	}
	next := WithChip(f, candidate)
	for _, p := range products {
		if Matches(p, next) {
			return true
		}
	}
	return false
}

func matchesAny(p types.Product, chips []types.Chip) bool {
	for _, c := range chips {
		if MatchesChip(p, c) {
			return true
		}
	}
	return false
}

func containsExact(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(values []string, v string) bool {
	for _, x := range values {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, h := range have {
		if containsExact(want, h) {
			return true
		}
	}
	return false
}
