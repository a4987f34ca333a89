// Package intent reconciles a turn's suggested chips against the prior selection.
package intent

import (
	"strings"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// categoryChipTypes maps facet-scoped replace categories to the chip type they clear.
var categoryChipTypes = map[types.ReplaceCategory]types.ChipType{
	types.ReplaceSubcategory: types.ChipSubcategory,
	types.ReplaceOccasions:   types.ChipOccasion,
	types.ReplaceMaterials:   types.ChipMaterial,
	types.ReplaceColors:      types.ChipColor,
	types.ReplaceStyleTags:   types.ChipStyleTag,
	types.ReplaceSizes:       types.ChipSize,
}

var knownCategories = map[types.ReplaceCategory]bool{
	types.ReplaceAll:            true,
	types.ReplaceAllExceptPrice: true,
	types.ReplacePrice:          true,
	types.ReplaceSubcategory:    true,
	types.ReplaceOccasions:      true,
	types.ReplaceMaterials:      true,
	types.ReplaceColors:         true,
	types.ReplaceStyleTags:      true,
	types.ReplaceSizes:          true,
}

// ParseMode maps a raw classification to an IntentMode. Anything unrecognized,
// including the empty string, resolves to refine.
func ParseMode(raw string) types.IntentMode {
	switch types.IntentMode(strings.ToLower(strings.TrimSpace(raw))) {
	case types.IntentReplace:
		return types.IntentReplace
	case types.IntentExplore:
		return types.IntentExplore
	default:
		return types.IntentRefine
	}
}

// ParseCategories keeps recognized replace categories in input order, dropping
// duplicates. Unrecognized values are returned separately for diagnostics.
func ParseCategories(raw []string) (categories []types.ReplaceCategory, unknown []string) {
	seen := make(map[types.ReplaceCategory]bool, len(raw))
	for _, r := range raw {
		c := types.ReplaceCategory(strings.ToLower(strings.TrimSpace(r)))
		if !knownCategories[c] {
			unknown = append(unknown, r)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		categories = append(categories, c)
	}
	return categories, unknown
}

// Decision is one turn's classification.
type Decision struct {
	Mode       types.IntentMode
	Categories []types.ReplaceCategory
}

// Classify builds a Decision from raw generator output. A replace with no
// recognized category carries no usable signal and resolves to refine.
func Classify(mode string, categories []string) Decision {
	cats, _ := ParseCategories(categories)
	return NewDecision(ParseMode(mode), cats)
}

// NewDecision builds a Decision from parsed values, applying the same rules as
// Classify: categories only matter for replace, and replace needs at least one.
func NewDecision(mode types.IntentMode, categories []types.ReplaceCategory) Decision {
	mode = ParseMode(string(mode))
	if mode != types.IntentReplace {
		return Decision{Mode: mode}
	}
	if len(categories) == 0 {
		return Decision{Mode: types.IntentRefine}
	}
	return Decision{Mode: mode, Categories: categories}
}

// Has reports whether the decision lists category c.
func (d Decision) Has(c types.ReplaceCategory) bool {
	for _, dc := range d.Categories {
		if dc == c {
			return true
		}
	}
	return false
}

// Outcome is the reconciled selection for a turn, before new chips are added.
type Outcome struct {
	Selected   []types.Chip
	Removed    []types.Chip
	Price      types.PriceRange
	PriceReset bool
}

// Reconcile applies the decision's clearing rules to the prior selection.
// bounds is the catalog price range used when price is reset.
func Reconcile(prior []types.Chip, price types.PriceRange, d Decision, bounds types.PriceRange) Outcome {
	out := Outcome{Price: price}

	if d.Mode != types.IntentReplace {
		out.Selected = cloneChips(prior)
		return out
	}

	switch {
	case d.Has(types.ReplaceAll):
		out.Removed = cloneChips(prior)
		out.Selected = []types.Chip{}
		out.Price = bounds
		out.PriceReset = true
		return out
	case d.Has(types.ReplaceAllExceptPrice):
		out.Removed = cloneChips(prior)
		out.Selected = []types.Chip{}
		if d.Has(types.ReplacePrice) {
			out.Price = bounds
			out.PriceReset = true
		}
		return out
	}

	drop := make(map[types.ChipType]bool)
	for _, c := range d.Categories {
		if ct, ok := categoryChipTypes[c]; ok {
			drop[ct] = true
		}
	}

	out.Selected = make([]types.Chip, 0, len(prior))
	for _, c := range prior {
		if drop[c.Type] {
			out.Removed = append(out.Removed, c)
			continue
		}
		out.Selected = append(out.Selected, c)
	}

	if d.Has(types.ReplacePrice) {
		out.Price = bounds
		out.PriceReset = true
	}
	return out
}

// Merge adds incoming chips to the reconciled selection for refine and replace.
// Explore leaves the selection untouched; its chips are offered as alternatives.
// Chips de-duplicate by ID, keeping the first occurrence.
func Merge(selected, incoming []types.Chip, mode types.IntentMode) []types.Chip {
	out := cloneChips(selected)
	if mode == types.IntentExplore {
		return out
	}
	seen := make(map[string]bool, len(out)+len(incoming))
	for _, c := range out {
		seen[c.ID] = true
	}
	for _, c := range incoming {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func cloneChips(chips []types.Chip) []types.Chip {
	out := make([]types.Chip, len(chips))
	copy(out, chips)
	return out
}
