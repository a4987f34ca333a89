package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperengineering/shopfilter/internal/facets"
	"github.com/hyperengineering/shopfilter/internal/intent"
	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/vocab"
)

var (
	// ErrParse marks suggestion text that is not well-formed JSON. Terminal for the turn.
	ErrParse = errors.New("parse failure")

	// ErrSchema marks JSON whose fields, types or enumerations are wrong. Terminal for the turn.
	ErrSchema = errors.New("schema violation")

	// ErrCatalogMismatch tags a chip whose value is not in the catalog. Soft: the chip is dropped.
	ErrCatalogMismatch = errors.New("catalog mismatch")
)

// SuggestionResult is the validated form of one generator response.
type SuggestionResult struct {
	Accepted []types.Chip
	Rejected []types.Chip
	Errors   []string

	// Message is the assistant text shown to the shopper.
	Message string

	IntentMode        types.IntentMode
	ReplaceCategories []types.ReplaceCategory
	MinPrice          *int
	MaxPrice          *int

	// ColorIntent optionally names a color family ("earth tones").
	ColorIntent string
}

// SuggestionValidator checks generator output against the fixed schema and
// the catalog vocabulary.
type SuggestionValidator struct {
	facets *facets.Facets
	vocab  *vocab.Tables
}

// NewSuggestionValidator creates a validator for one catalog snapshot.
// tables may be nil, which disables synonym resolution.
func NewSuggestionValidator(f *facets.Facets, tables *vocab.Tables) *SuggestionValidator {
	return &SuggestionValidator{facets: f, vocab: tables}
}

var knownFilterKeys = func() map[types.FilterKey]bool {
	m := make(map[types.FilterKey]bool, len(types.FilterKeys))
	for _, k := range types.FilterKeys {
		m[k] = true
	}
	return m
}()

var chipTypeNames = func() []string {
	out := make([]string, len(types.ChipTypes))
	for i, ct := range types.ChipTypes {
		out[i] = string(ct)
	}
	return out
}()

var filterKeyNames = func() []string {
	out := make([]string, len(types.FilterKeys))
	for i, k := range types.FilterKeys {
		out[i] = string(k)
	}
	return out
}()

// Validate parses raw generator text and validates it. On ErrParse or
// ErrSchema the returned result carries no chips and a diagnostic in Errors.
func (v *SuggestionValidator) Validate(raw string) (*SuggestionResult, error) {
	span, err := ExtractJSON(raw)
	if err != nil {
		return &SuggestionResult{Errors: []string{ErrParse.Error()}}, err
	}

	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return &SuggestionResult{Errors: []string{ErrParse.Error()}}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v.ValidateDocument(doc)
}

// ValidateDocument validates already-decoded generator output.
func (v *SuggestionValidator) ValidateDocument(doc map[string]any) (*SuggestionResult, error) {
	if doc == nil {
		return &SuggestionResult{Errors: []string{ErrParse.Error()}}, fmt.Errorf("%w: empty document", ErrParse)
	}

	var c Collector
	res := &SuggestionResult{IntentMode: types.IntentRefine}

	msg, ok := doc["message"].(string)
	if !ok {
		c.Add(&ValidationError{Field: "message", Message: "is required and must be a string"})
	}

	rawChips, ok := doc["suggestedChips"].([]any)
	if !ok {
		c.Add(&ValidationError{Field: "suggestedChips", Message: "is required and must be an array"})
	}
	chips := make([]rawChip, 0, len(rawChips))
	for i, item := range rawChips {
		rc, errs := parseRawChip(i, item)
		for _, e := range errs {
			c.Add(e)
		}
		chips = append(chips, rc)
	}

	var mode string
	switch m := doc["intentMode"].(type) {
	case nil:
	case string:
		mode = m
	default:
		c.Add(&ValidationError{Field: "intentMode", Message: "must be a string"})
	}

	var categories []string
	switch rc := doc["replaceCategories"].(type) {
	case nil:
	case []any:
		for i, item := range rc {
			s, ok := item.(string)
			if !ok {
				c.Add(&ValidationError{Field: fmt.Sprintf("replaceCategories[%d]", i), Message: "must be a string"})
				continue
			}
			categories = append(categories, s)
		}
	default:
		c.Add(&ValidationError{Field: "replaceCategories", Message: "must be an array"})
	}

	minPrice, err := priceField(doc, "minPrice")
	c.Add(err)
	maxPrice, err := priceField(doc, "maxPrice")
	c.Add(err)

	switch ci := doc["colorIntent"].(type) {
	case nil:
	case string:
		res.ColorIntent = strings.TrimSpace(ci)
	default:
		c.Add(&ValidationError{Field: "colorIntent", Message: "must be a string"})
	}

	if c.HasErrors() {
		errs := c.Errors()
		out := &SuggestionResult{Errors: make([]string, len(errs))}
		for i, e := range errs {
			out.Errors[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
		}
		return out, fmt.Errorf("%w: %s", ErrSchema, out.Errors[0])
	}

	res.Message = msg
	res.MinPrice = minPrice
	res.MaxPrice = maxPrice

	res.IntentMode = intent.ParseMode(mode)
	if strings.TrimSpace(mode) != "" && !strings.EqualFold(strings.TrimSpace(mode), string(res.IntentMode)) {
		res.Errors = append(res.Errors, fmt.Sprintf("unrecognized intentMode %q, treated as %s", mode, res.IntentMode))
	}
	cats, unknown := intent.ParseCategories(categories)
	res.ReplaceCategories = cats
	for _, u := range unknown {
		res.Errors = append(res.Errors, fmt.Sprintf("ignored unknown replace category %q", u))
	}

	seen := make(map[string]bool, len(chips))
	for _, rc := range chips {
		chip, err := v.checkMembership(rc)
		if err != nil {
			res.Rejected = append(res.Rejected, rc.asChip())
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		if seen[chip.ID] {
			continue
		}
		seen[chip.ID] = true
		res.Accepted = append(res.Accepted, chip)
	}

	return res, nil
}

// rawChip is a structurally valid chip whose value has not been checked
// against the catalog.
type rawChip struct {
	id        string
	chipType  types.ChipType
	label     string
	filterKey types.FilterKey
	value     string
	isBool    bool
}

func (r rawChip) asChip() types.Chip {
	id := r.id
	if id == "" {
		id = types.ChipID(r.chipType, r.value)
	}
	return types.Chip{ID: id, Type: r.chipType, Label: r.label, Value: r.value}
}

// parseRawChip checks the primitive shape of one chip record.
func parseRawChip(i int, item any) (rawChip, []*ValidationError) {
	prefix := fmt.Sprintf("suggestedChips[%d]", i)
	obj, ok := item.(map[string]any)
	if !ok {
		return rawChip{}, []*ValidationError{{Field: prefix, Message: "must be an object"}}
	}

	var errs []*ValidationError
	present := make(map[string]bool, 4)
	str := func(key string) string {
		s, ok := obj[key].(string)
		if !ok {
			errs = append(errs, &ValidationError{Field: prefix + "." + key, Message: "is required and must be a string"})
		}
		present[key] = ok
		return s
	}

	rc := rawChip{
		id:        str("id"),
		chipType:  types.ChipType(str("type")),
		label:     str("label"),
		filterKey: types.FilterKey(str("filterKey")),
	}

	// A missing field already has its error; an empty string is checked as a value.
	if present["type"] && !rc.chipType.Valid() {
		errs = append(errs, ValidateEnum(prefix+".type", string(rc.chipType), chipTypeNames))
	}
	if present["filterKey"] && !knownFilterKeys[rc.filterKey] {
		errs = append(errs, ValidateEnum(prefix+".filterKey", string(rc.filterKey), filterKeyNames))
	}

	switch fv := obj["filterValue"].(type) {
	case string:
		rc.value = fv
	case bool:
		rc.value = strconv.FormatBool(fv)
		rc.isBool = true
	default:
		errs = append(errs, &ValidationError{Field: prefix + ".filterValue", Message: "must be a string or boolean"})
	}

	return rc, errs
}

// checkMembership resolves a raw chip against the catalog vocabulary.
func (v *SuggestionValidator) checkMembership(rc rawChip) (types.Chip, error) {
	if !rc.chipType.Accepts(rc.filterKey) {
		return types.Chip{}, fmt.Errorf("%w: chip %q has filterKey %s which does not match type %s",
			ErrCatalogMismatch, rc.id, rc.filterKey, rc.chipType)
	}
	if rc.isBool {
		return types.Chip{}, fmt.Errorf("%w: invalid %s %s, expected a text value",
			ErrCatalogMismatch, rc.chipType, rc.value)
	}

	value := rc.value
	if rc.chipType == types.ChipOccasion && !v.facets.Contains(types.ChipOccasion, value) {
		if resolved, ok := v.vocab.ResolveOccasion(value); ok {
			value = resolved
		}
	}

	chip := types.Chip{ID: rc.id, Type: rc.chipType, Label: rc.label, Value: value}
	normalized, ok := Normalize(chip, v.facets)
	if !ok {
		return types.Chip{}, fmt.Errorf("%w: invalid %s %q, valid values are: %s",
			ErrCatalogMismatch, rc.chipType, rc.value, strings.Join(v.facets.Values(rc.chipType), ", "))
	}
	return normalized, nil
}

// Normalize rewrites a chip's value to the catalog's canonical casing and its
// ID to the canonical identifier. It reports false when the value is not a
// catalog member. Normalizing a normalized chip returns it unchanged.
func Normalize(c types.Chip, f *facets.Facets) (types.Chip, bool) {
	canonical, ok := f.Lookup(c.Type, c.Value)
	if !ok {
		return c, false
	}
	c.Value = canonical
	c.ID = types.ChipID(c.Type, canonical)
	if strings.TrimSpace(c.Label) == "" {
		c.Label = canonical
	}
	return c, true
}

// priceField reads an optional numeric price. Numeric strings are accepted.
func priceField(doc map[string]any, key string) (*int, *ValidationError) {
	var f float64
	switch v := doc[key].(type) {
	case nil:
		return nil, nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, &ValidationError{Field: key, Message: "must be a number or null"}
		}
		f = parsed
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, &ValidationError{Field: key, Message: "must be a number or null"}
		}
		f = parsed
	default:
		return nil, &ValidationError{Field: key, Message: "must be a number or null"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxPrice {
		return nil, &ValidationError{Field: key, Message: "must be a finite price"}
	}
	n := int(math.Round(f))
	return &n, nil
}

// ExtractJSON strips surrounding code fences and returns the first top-level
// {...} span of raw.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object found", ErrParse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON object", ErrParse)
}
