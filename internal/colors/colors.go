// Package colors decides where a turn's color chips come from: the suggestion
// itself, or the colors actually stocked in the suggested subcategories.
package colors

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/vocab"
)

// Source records which branch produced the color chips.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceDerived  Source = "derived"
	SourceNone     Source = "none"
)

// Input carries everything one derivation needs.
type Input struct {
	// Accepted are the validated chips of the current suggestion.
	Accepted []types.Chip

	// Products is the catalog.
	Products []types.Product

	// Subcategories anchors derivation. Empty means no derivation.
	Subcategories []string

	// FamilyHint names a color family stated by the suggestion generator.
	FamilyHint string

	// Texts are the current and recent user messages, newest first, scanned for
	// color-family keywords when FamilyHint is empty or unknown.
	Texts []string
}

// Result is the color chip set for the turn.
type Result struct {
	Chips  []types.Chip
	Source Source
	Family string
}

// Policy derives color chips using a set of color-family mapping tables.
type Policy struct {
	vocab *vocab.Tables
}

// NewPolicy creates a Policy. A nil table set disables family narrowing.
func NewPolicy(tables *vocab.Tables) *Policy {
	return &Policy{vocab: tables}
}

// Derive returns the color chips for a turn. Explicit color chips in the
// suggestion are honored exclusively, even when they match no product.
func (p *Policy) Derive(in Input) Result {
	var explicit []types.Chip
	for _, c := range in.Accepted {
		if c.Type == types.ChipColor {
			explicit = append(explicit, c)
		}
	}
	if len(explicit) > 0 {
		return Result{Chips: explicit, Source: SourceExplicit}
	}

	if len(in.Subcategories) == 0 {
		return Result{Chips: []types.Chip{}, Source: SourceNone}
	}

	derived := presentColors(in.Products, in.Subcategories)

	fam, ok := p.family(in.FamilyHint, in.Texts)
	if ok {
		narrowed := derived[:0:0]
		for _, c := range derived {
			if fam.HasColor(c) {
				narrowed = append(narrowed, c)
			}
		}
		derived = narrowed
	}

	chips := make([]types.Chip, 0, len(derived))
	for _, c := range derived {
		chips = append(chips, types.NewChip(types.ChipColor, c, capitalize(c)))
	}

	res := Result{Chips: chips, Source: SourceDerived}
	if ok {
		res.Family = fam.Name
	}
	return res
}

// Replace swaps the color chips in accepted for colorChips, keeping the order
// of the other chips.
func Replace(accepted, colorChips []types.Chip) []types.Chip {
	out := make([]types.Chip, 0, len(accepted)+len(colorChips))
	for _, c := range accepted {
		if c.Type != types.ChipColor {
			out = append(out, c)
		}
	}
	return append(out, colorChips...)
}

func (p *Policy) family(hint string, texts []string) (vocab.ColorFamily, bool) {
	if p == nil || p.vocab == nil {
		return vocab.ColorFamily{}, false
	}
	if strings.TrimSpace(hint) != "" {
		if fam, ok := p.vocab.FamilyByName(hint); ok {
			return fam, true
		}
	}
	return p.vocab.DetectColorFamily(texts...)
}

// presentColors lists the distinct colors of products in the given
// subcategories, sorted, using the catalog's casing.
func presentColors(products []types.Product, subcategories []string) []string {
	want := make(map[string]bool, len(subcategories))
	for _, s := range subcategories {
		want[s] = true
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range products {
		if !want[p.Subcategory] || strings.TrimSpace(p.Color) == "" {
			continue
		}
		key := strings.ToLower(p.Color)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p.Color)
	}
	sort.Strings(out)
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
