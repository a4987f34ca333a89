package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Product is an immutable catalog record.
type Product struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Price       int      `json:"price" yaml:"price"`
	InStock     bool     `json:"inStock" yaml:"in_stock"`
	Subcategory string   `json:"subcategory" yaml:"subcategory"`
	Color       string   `json:"color" yaml:"color"`
	Material    string   `json:"material" yaml:"material"`
	Size        string   `json:"size" yaml:"size"`
	StyleTags   []string `json:"styleTags" yaml:"style_tags"`
	Occasions   []string `json:"occasions" yaml:"occasions"`
}

// MarshalJSON ensures nil slices in Product marshal as [] not null.
func (p Product) MarshalJSON() ([]byte, error) {
	if p.StyleTags == nil {
		p.StyleTags = []string{}
	}
	if p.Occasions == nil {
		p.Occasions = []string{}
	}
	type Alias Product
	return json.Marshal(Alias(p))
}

// ChipType is the discriminant of a filter chip.
type ChipType string

const (
	ChipSubcategory ChipType = "subcategory"
	ChipOccasion    ChipType = "occasion"
	ChipColor       ChipType = "color"
	ChipMaterial    ChipType = "material"
	ChipStyleTag    ChipType = "style_tag"
	ChipSize        ChipType = "size"
)

// ChipTypes lists every chip type in display order.
var ChipTypes = []ChipType{
	ChipSubcategory,
	ChipOccasion,
	ChipColor,
	ChipMaterial,
	ChipStyleTag,
	ChipSize,
}

// Valid reports whether t is one of the six chip types.
func (t ChipType) Valid() bool {
	for _, ct := range ChipTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// FilterKey returns the FilterState field a chip of this type targets.
func (t ChipType) FilterKey() FilterKey {
	switch t {
	case ChipSubcategory:
		return KeySubcategories
	case ChipOccasion:
		return KeyOccasions
	case ChipColor:
		return KeyColors
	case ChipMaterial:
		return KeyMaterials
	case ChipStyleTag:
		return KeyStyleTags
	case ChipSize:
		return KeySizes
	default:
		return ""
	}
}

// FilterKey names a FilterState field.
type FilterKey string

const (
	KeySubcategory   FilterKey = "subcategory"
	KeySubcategories FilterKey = "subcategories"
	KeyColors        FilterKey = "colors"
	KeyMaterials     FilterKey = "materials"
	KeySizes         FilterKey = "sizes"
	KeyStyleTags     FilterKey = "styleTags"
	KeyOccasions     FilterKey = "occasions"
	KeyInStock       FilterKey = "inStock"
	KeyMinPrice      FilterKey = "minPrice"
	KeyMaxPrice      FilterKey = "maxPrice"
)

// FilterKeys lists every FilterState key accepted on the wire.
var FilterKeys = []FilterKey{
	KeySubcategory,
	KeySubcategories,
	KeyColors,
	KeyMaterials,
	KeySizes,
	KeyStyleTags,
	KeyOccasions,
	KeyInStock,
	KeyMinPrice,
	KeyMaxPrice,
}

// Accepts reports whether key is a legal filterKey for a chip of type t.
// Subcategory chips may name either the single or the array form.
func (t ChipType) Accepts(key FilterKey) bool {
	if t == ChipSubcategory && key == KeySubcategory {
		return true
	}
	return t.FilterKey() == key
}

// Chip is the atomic unit of filter intent: one facet, one value.
// The filter key is derived from Type, so a chip can never target a field
// that disagrees with its type.
type Chip struct {
	ID    string
	Type  ChipType
	Label string
	Value string
}

// NewChip builds a chip with the canonical identifier for type and value.
func NewChip(t ChipType, value, label string) Chip {
	if label == "" {
		label = value
	}
	return Chip{
		ID:    ChipID(t, value),
		Type:  t,
		Label: label,
		Value: value,
	}
}

// ChipID returns the identifier "chip-{type}-{value}" used for de-duplication.
// The value is lower-cased and whitespace runs become a single hyphen.
func ChipID(t ChipType, value string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(value)), "-")
	return fmt.Sprintf("chip-%s-%s", t, slug)
}

// FilterKey returns the FilterState field the chip targets.
func (c Chip) FilterKey() FilterKey {
	return c.Type.FilterKey()
}

type chipWire struct {
	ID          string    `json:"id"`
	Type        ChipType  `json:"type"`
	Label       string    `json:"label"`
	FilterKey   FilterKey `json:"filterKey"`
	FilterValue string    `json:"filterValue"`
}

// MarshalJSON emits the wire shape with the derived filterKey.
func (c Chip) MarshalJSON() ([]byte, error) {
	return json.Marshal(chipWire{
		ID:          c.ID,
		Type:        c.Type,
		Label:       c.Label,
		FilterKey:   c.FilterKey(),
		FilterValue: c.Value,
	})
}

// UnmarshalJSON accepts the wire shape and rejects type/filterKey combinations
// that cannot be represented.
func (c *Chip) UnmarshalJSON(data []byte) error {
	var w chipWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown chip type %q", w.Type)
	}
	if w.FilterKey != "" && !w.Type.Accepts(w.FilterKey) {
		return fmt.Errorf("filterKey %q does not match chip type %q", w.FilterKey, w.Type)
	}
	id := w.ID
	if id == "" {
		id = ChipID(w.Type, w.FilterValue)
	}
	label := w.Label
	if label == "" {
		label = w.FilterValue
	}
	*c = Chip{ID: id, Type: w.Type, Label: label, Value: w.FilterValue}
	return nil
}

// FilterState is the accumulated query. Empty slices and nil pointers leave
// the corresponding facet unconstrained.
type FilterState struct {
	Subcategory   *string  `json:"subcategory,omitempty"`
	Subcategories []string `json:"subcategories,omitempty"`
	Colors        []string `json:"colors,omitempty"`
	Materials     []string `json:"materials,omitempty"`
	Sizes         []string `json:"sizes,omitempty"`
	StyleTags     []string `json:"styleTags,omitempty"`
	Occasions     []string `json:"occasions,omitempty"`
	InStock       *bool    `json:"inStock,omitempty"`
	MinPrice      *int     `json:"minPrice,omitempty"`
	MaxPrice      *int     `json:"maxPrice,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (f FilterState) Clone() FilterState {
	out := FilterState{
		Subcategories: cloneStrings(f.Subcategories),
		Colors:        cloneStrings(f.Colors),
		Materials:     cloneStrings(f.Materials),
		Sizes:         cloneStrings(f.Sizes),
		StyleTags:     cloneStrings(f.StyleTags),
		Occasions:     cloneStrings(f.Occasions),
	}
	if f.Subcategory != nil {
		v := *f.Subcategory
		out.Subcategory = &v
	}
	if f.InStock != nil {
		v := *f.InStock
		out.InStock = &v
	}
	if f.MinPrice != nil {
		v := *f.MinPrice
		out.MinPrice = &v
	}
	if f.MaxPrice != nil {
		v := *f.MaxPrice
		out.MaxPrice = &v
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// PriceRange is an inclusive price interval in integer currency units.
type PriceRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// IntentMode classifies how a turn's suggestion relates to the prior selection.
type IntentMode string

const (
	IntentReplace IntentMode = "replace"
	IntentRefine  IntentMode = "refine"
	IntentExplore IntentMode = "explore"
)

// ReplaceCategory scopes what a replace intent clears.
type ReplaceCategory string

const (
	ReplaceAll            ReplaceCategory = "all"
	ReplaceAllExceptPrice ReplaceCategory = "all_except_price"
	ReplaceSubcategory    ReplaceCategory = "subcategory"
	ReplaceOccasions      ReplaceCategory = "occasions"
	ReplaceMaterials      ReplaceCategory = "materials"
	ReplaceColors         ReplaceCategory = "colors"
	ReplaceStyleTags      ReplaceCategory = "style_tags"
	ReplaceSizes          ReplaceCategory = "sizes"
	ReplacePrice          ReplaceCategory = "price"
)

// Message is one conversational turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRequest is the caller's input for one conversational turn.
type TurnRequest struct {
	Message             string       `json:"message"`
	ConversationHistory []Message    `json:"conversationHistory,omitempty"`
	SelectedChips       []Chip       `json:"selectedChips,omitempty"`
	CurrentFilters      *FilterState `json:"currentFilters,omitempty"`
}

// TurnResponse is the result of one conversational turn.
type TurnResponse struct {
	TurnID            string            `json:"turnId,omitempty"`
	Message           string            `json:"message"`
	SuggestedChips    []Chip            `json:"suggestedChips"`
	Invalid           []Chip            `json:"invalid,omitempty"`
	Errors            []string          `json:"errors,omitempty"`
	IntentMode        IntentMode        `json:"intentMode,omitempty"`
	ReplaceCategories []ReplaceCategory `json:"replaceCategories,omitempty"`
	MinPrice          *int              `json:"minPrice"`
	MaxPrice          *int              `json:"maxPrice"`
	MatchingProducts  []Product         `json:"matchingProducts,omitempty"`
	SelectedChips     []Chip            `json:"selectedChips"`
	Filters           FilterState       `json:"filters"`
	TotalMatches      int               `json:"totalMatches"`
	Fallback          bool              `json:"fallback,omitempty"`
}

// MarshalJSON ensures nil chip slices in TurnResponse marshal as [] not null.
func (r TurnResponse) MarshalJSON() ([]byte, error) {
	if r.SuggestedChips == nil {
		r.SuggestedChips = []Chip{}
	}
	if r.SelectedChips == nil {
		r.SelectedChips = []Chip{}
	}
	type Alias TurnResponse
	return json.Marshal(Alias(r))
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	Model         string     `json:"model"`
	ProductCount  int        `json:"product_count"`
	CatalogLoaded *time.Time `json:"catalog_loaded,omitempty"`
	Sessions      int        `json:"sessions"`
}

// FilterRequest asks for the products matching a filter state. Limit caps the
// returned products; zero means the server default.
type FilterRequest struct {
	Filters FilterState `json:"filters"`
	Limit   int         `json:"limit,omitempty"`
}

// FilterResponse lists matching products. Total counts all matches before the
// limit is applied.
type FilterResponse struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
}

// PreviewRequest asks which products match any of the candidate chips.
type PreviewRequest struct {
	Chips []Chip `json:"chips"`
	Limit int    `json:"limit,omitempty"`
}

// RankedProduct is a product with the number of chips it satisfies.
type RankedProduct struct {
	Product Product `json:"product"`
	Matches int     `json:"matches"`
}

// PreviewResponse is the ranked preview for a chip set.
type PreviewResponse struct {
	Products []RankedProduct `json:"products"`
	Total    int             `json:"total"`
}

// AvailabilityRequest asks, per candidate chip, whether toggling it on keeps
// the result set non-empty.
type AvailabilityRequest struct {
	Filters    FilterState `json:"filters"`
	Candidates []Chip      `json:"candidates"`
	Selected   []Chip      `json:"selected,omitempty"`
}

// ChipAvailability is the availability flag of one candidate chip.
type ChipAvailability struct {
	ChipID    string `json:"chipId"`
	Available bool   `json:"available"`
}

// AvailabilityResponse carries one flag per candidate, in request order.
type AvailabilityResponse struct {
	Chips []ChipAvailability `json:"chips"`
}

// SessionTurnRequest is one message sent to a held session. Version, when
// non-zero, must match the session's current version.
type SessionTurnRequest struct {
	Message string `json:"message"`
	Version int64  `json:"version,omitempty"`
}
