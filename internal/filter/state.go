package filter

import (
	"github.com/hyperengineering/shopfilter/internal/types"
)

// WithChip returns a copy of f constrained additionally by c. Values stay
// unique and the single subcategory field tracks the first array element.
func WithChip(f types.FilterState, c types.Chip) types.FilterState {
	out := f.Clone()
	switch c.Type {
	case types.ChipSubcategory:
		if len(out.Subcategories) == 0 && out.Subcategory != nil {
			out.Subcategories = []string{*out.Subcategory}
		}
		out.Subcategories = appendUnique(out.Subcategories, c.Value)
		syncSubcategory(&out)
	case types.ChipOccasion:
		out.Occasions = appendUnique(out.Occasions, c.Value)
	case types.ChipColor:
		out.Colors = appendUnique(out.Colors, c.Value)
	case types.ChipMaterial:
		out.Materials = appendUnique(out.Materials, c.Value)
	case types.ChipStyleTag:
		out.StyleTags = appendUnique(out.StyleTags, c.Value)
	case types.ChipSize:
		out.Sizes = appendUnique(out.Sizes, c.Value)
	}
	return out
}

// FromChips builds a fresh filter state from selected chips and a price range.
func FromChips(chips []types.Chip, minPrice, maxPrice *int) types.FilterState {
	var f types.FilterState
	for _, c := range chips {
		f = WithChip(f, c)
	}
	if minPrice != nil {
		v := *minPrice
		f.MinPrice = &v
	}
	if maxPrice != nil {
		v := *maxPrice
		f.MaxPrice = &v
	}
	return f
}

// ChipsFromState lists one chip per facet value held in f, in facet order.
func ChipsFromState(f types.FilterState) []types.Chip {
	var chips []types.Chip
	add := func(t types.ChipType, values []string) {
		for _, v := range values {
			chips = append(chips, types.NewChip(t, v, v))
		}
	}
	subs := f.Subcategories
	if len(subs) == 0 && f.Subcategory != nil {
		subs = []string{*f.Subcategory}
	}
	add(types.ChipSubcategory, subs)
	add(types.ChipOccasion, f.Occasions)
	add(types.ChipColor, f.Colors)
	add(types.ChipMaterial, f.Materials)
	add(types.ChipStyleTag, f.StyleTags)
	add(types.ChipSize, f.Sizes)
	return chips
}

func syncSubcategory(f *types.FilterState) {
	if len(f.Subcategories) == 0 {
		f.Subcategories = nil
		f.Subcategory = nil
		return
	}
	first := f.Subcategories[0]
	f.Subcategory = &first
}

func appendUnique(values []string, v string) []string {
	if containsExact(values, v) {
		return values
	}
	return append(values, v)
}
