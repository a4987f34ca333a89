// Package vocab holds the declarative mapping tables used to interpret free text:
// color families for color derivation and occasion synonyms for chip validation.
package vocab

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultTables []byte

// ColorFamily groups colors under a keyword-detectable name such as "earth tones".
type ColorFamily struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Colors   []string `yaml:"colors"`
}

// Tables is an immutable set of mapping tables.
type Tables struct {
	ColorFamilies    []ColorFamily       `yaml:"color_families"`
	OccasionSynonyms map[string][]string `yaml:"occasion_synonyms"`

	occasionAliases map[string]string
}

// Default returns the tables compiled into the binary.
func Default() *Tables {
	t, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded vocab tables are invalid: %v", err))
	}
	return t
}

// Load reads tables from a YAML file.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vocab file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML mapping tables.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing vocab tables: %w", err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// index validates the tables and builds the alias lookup.
func (t *Tables) index() error {
	for i, fam := range t.ColorFamilies {
		if strings.TrimSpace(fam.Name) == "" {
			return fmt.Errorf("color family %d: name is required", i)
		}
		if len(fam.Keywords) == 0 {
			return fmt.Errorf("color family %q: at least one keyword is required", fam.Name)
		}
		if len(fam.Colors) == 0 {
			return fmt.Errorf("color family %q: at least one color is required", fam.Name)
		}
	}

	t.occasionAliases = make(map[string]string)
	canonicals := make([]string, 0, len(t.OccasionSynonyms))
	for c := range t.OccasionSynonyms {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		for _, alias := range t.OccasionSynonyms[canonical] {
			key := strings.ToLower(strings.TrimSpace(alias))
			if key == "" {
				return errors.New("occasion synonym must not be empty")
			}
			if prev, dup := t.occasionAliases[key]; dup && prev != canonical {
				return fmt.Errorf("occasion synonym %q maps to both %q and %q", alias, prev, canonical)
			}
			t.occasionAliases[key] = canonical
		}
	}
	return nil
}

// ResolveOccasion maps an occasion synonym to its canonical occasion.
// Values that are not synonyms are returned unchanged with ok=false.
func (t *Tables) ResolveOccasion(value string) (string, bool) {
	if t == nil {
		return value, false
	}
	canonical, ok := t.occasionAliases[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return value, false
	}
	return canonical, true
}

// DetectColorFamily scans texts in order and returns the first family whose
// keyword appears in the earliest text that mentions any family. Within one
// text, families are tried in table order.
func (t *Tables) DetectColorFamily(texts ...string) (ColorFamily, bool) {
	if t == nil {
		return ColorFamily{}, false
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, fam := range t.ColorFamilies {
			for _, kw := range fam.Keywords {
				if containsPhrase(lower, strings.ToLower(kw)) {
					return fam, true
				}
			}
		}
	}
	return ColorFamily{}, false
}

// FamilyByName returns a family by case-insensitive name.
func (t *Tables) FamilyByName(name string) (ColorFamily, bool) {
	if t == nil {
		return ColorFamily{}, false
	}
	for _, fam := range t.ColorFamilies {
		if strings.EqualFold(fam.Name, strings.TrimSpace(name)) {
			return fam, true
		}
	}
	return ColorFamily{}, false
}

// HasColor reports whether the family includes color, case-insensitively.
func (f ColorFamily) HasColor(color string) bool {
	for _, c := range f.Colors {
		if strings.EqualFold(c, strings.TrimSpace(color)) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for start := 0; start <= len(text)-len(phrase); {
		i := strings.Index(text[start:], phrase)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(phrase)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(text[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r := rune(text[end])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
