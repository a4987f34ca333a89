// Package price merges extracted price constraints into a held price range.
package price

import (
	"fmt"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// Resolution is the outcome of one Reconcile call.
type Resolution struct {
	Range types.PriceRange

	// Applied is false when no extracted value changed the range.
	Applied bool

	// Conflicts describe how inconsistent input was resolved. Never fatal.
	Conflicts []string
}

// Reconcile merges extractedMin/extractedMax into current. bounds is the catalog
// price range. Nil extractions leave their side alone. The result always has
// Min <= Max.
func Reconcile(current types.PriceRange, extractedMin, extractedMax *int, bounds types.PriceRange) Resolution {
	res := Resolution{Range: current}

	if extractedMin != nil && *extractedMin < 0 {
		res.Conflicts = append(res.Conflicts, fmt.Sprintf("ignored negative min price %d", *extractedMin))
		extractedMin = nil
	}
	if extractedMax != nil && *extractedMax < 0 {
		res.Conflicts = append(res.Conflicts, fmt.Sprintf("ignored negative max price %d", *extractedMax))
		extractedMax = nil
	}

	switch {
	case extractedMin == nil && extractedMax == nil:
		return res

	case extractedMin != nil && extractedMax != nil:
		if *extractedMin > *extractedMax {
			res.Conflicts = append(res.Conflicts,
				fmt.Sprintf("ignored min %d greater than max %d", *extractedMin, *extractedMax))
			return res
		}
		res.Range = types.PriceRange{Min: *extractedMin, Max: *extractedMax}

	case extractedMin != nil:
		r := current
		if *extractedMin > r.Max {
			res.Conflicts = append(res.Conflicts,
				fmt.Sprintf("min %d exceeds held max %d; max reset to catalog max %d", *extractedMin, r.Max, bounds.Max))
			r.Max = bounds.Max
		}
		r.Min = *extractedMin
		if r.Min > r.Max {
			r.Max = r.Min
		}
		res.Range = r

	default:
		r := current
		if *extractedMax < r.Min {
			res.Conflicts = append(res.Conflicts,
				fmt.Sprintf("max %d below held min %d; min reset to catalog min %d", *extractedMax, r.Min, bounds.Min))
			r.Min = bounds.Min
		}
		r.Max = *extractedMax
		if r.Max < r.Min {
			r.Min = r.Max
		}
		res.Range = r
	}

	res.Applied = res.Range != current
	return res
}

// Current derives the held range from a filter state, filling unset sides
// from the catalog bounds.
func Current(f types.FilterState, bounds types.PriceRange) types.PriceRange {
	r := bounds
	if f.MinPrice != nil {
		r.Min = *f.MinPrice
	}
	if f.MaxPrice != nil {
		r.Max = *f.MaxPrice
	}
	if r.Min > r.Max {
		r = bounds
	}
	return r
}

// Pointers converts a range to FilterState fields. A side equal to the catalog
// bound is unconstrained and returned as nil.
func Pointers(r, bounds types.PriceRange) (min, max *int) {
	if r.Min != bounds.Min {
		v := r.Min
		min = &v
	}
	if r.Max != bounds.Max {
		v := r.Max
		max = &v
	}
	return min, max
}
