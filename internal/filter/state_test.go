package filter

import (
	"reflect"
	"testing"

	"github.com/hyperengineering/shopfilter/internal/types"
)

func TestWithChip_KeepsSubcategoryInSync(t *testing.T) {
	f := WithChip(types.FilterState{}, types.NewChip(types.ChipSubcategory, "sweaters", ""))
	f = WithChip(f, types.NewChip(types.ChipSubcategory, "boots", ""))

	if !reflect.DeepEqual(f.Subcategories, []string{"sweaters", "boots"}) {
		t.Errorf("Subcategories = %v", f.Subcategories)
	}
	if f.Subcategory == nil || *f.Subcategory != "sweaters" {
		t.Errorf("Subcategory = %v, want sweaters", f.Subcategory)
	}
}

func TestWithChip_PromotesLegacySingleSubcategory(t *testing.T) {
	f := WithChip(types.FilterState{Subcategory: strPtr("boots")}, types.NewChip(types.ChipSubcategory, "jackets", ""))
	if !reflect.DeepEqual(f.Subcategories, []string{"boots", "jackets"}) {
		t.Errorf("Subcategories = %v", f.Subcategories)
	}
}

func TestWithChip_NoDuplicates(t *testing.T) {
	red := types.NewChip(types.ChipColor, "red", "")
	f := WithChip(WithChip(types.FilterState{}, red), red)
	if !reflect.DeepEqual(f.Colors, []string{"red"}) {
		t.Errorf("Colors = %v, want [red]", f.Colors)
	}
}

func TestWithChip_DoesNotMutateInput(t *testing.T) {
	orig := types.FilterState{Colors: []string{"red"}}
	WithChip(orig, types.NewChip(types.ChipColor, "blue", ""))
	if !reflect.DeepEqual(orig.Colors, []string{"red"}) {
		t.Errorf("input mutated: %v", orig.Colors)
	}
}

func TestFromChips_CopiesPrice(t *testing.T) {
	min, max := 10, 90
	f := FromChips(nil, &min, &max)
	min = 50
	if f.MinPrice == nil || *f.MinPrice != 10 || *f.MaxPrice != 90 {
		t.Errorf("price = %v..%v, want 10..90", f.MinPrice, f.MaxPrice)
	}
}

func TestChipsFromState_RoundTripsThroughFromChips(t *testing.T) {
	f := types.FilterState{
		Subcategory: strPtr("sweaters"),
		Colors:      []string{"red", "blue"},
		Occasions:   []string{"work"},
	}
	chips := ChipsFromState(f)
	if len(chips) != 4 {
		t.Fatalf("ChipsFromState = %d chips, want 4", len(chips))
	}
	rebuilt := FromChips(chips, nil, nil)
	if !reflect.DeepEqual(rebuilt.Colors, f.Colors) || *rebuilt.Subcategory != "sweaters" {
		t.Errorf("rebuilt = %+v", rebuilt)
	}
}
