package llm

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/shopfilter/internal/facets"
	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/vocab"
)

// Prompt is one generator request.
type Prompt struct {
	System  string
	History []types.Message
	User    string
}

// PromptInput is everything the prompt describes.
type PromptInput struct {
	Facets   *facets.Facets
	Vocab    *vocab.Tables
	Selected []types.Chip
	Price    types.PriceRange
	HasPrice bool
	History  []types.Message
	Message  string

	// HistoryTurns bounds how many trailing history messages are sent. Zero sends none.
	HistoryTurns int
}

const contract = `Respond with a single JSON object and nothing else:
{
  "message": string,                      // short reply shown to the shopper
  "suggestedChips": [                     // filters to offer
    {"id": string, "type": one of [%s],
     "label": string, "filterKey": one of [%s], "filterValue": string}
  ],
  "intentMode": "replace" | "refine" | "explore",
  "replaceCategories": [one of all, all_except_price, subcategory, occasions, materials, colors, style_tags, sizes, price],
  "minPrice": number | null,
  "maxPrice": number | null,
  "colorIntent": string | null            // a color family%s
}
Use only values listed in the catalog vocabulary. Use "replace" only when the shopper
clearly abandons earlier choices; otherwise use "refine". Only give minPrice or maxPrice
when the shopper states a number.`

// BuildPrompt renders the system and user messages for one turn.
func BuildPrompt(in PromptInput) Prompt {
	var b strings.Builder
	b.WriteString("You help shoppers narrow a product catalog by suggesting filter chips.\n\n")

	b.WriteString("Catalog vocabulary:\n")
	for _, ct := range types.ChipTypes {
		fmt.Fprintf(&b, "- %s: %s\n", ct, strings.Join(in.Facets.Values(ct), ", "))
	}
	if bounds, ok := in.Facets.Bounds(); ok {
		fmt.Fprintf(&b, "- price: %d to %d\n", bounds.Min, bounds.Max)
	}
	b.WriteString("\n")

	families := ""
	if in.Vocab != nil && len(in.Vocab.ColorFamilies) > 0 {
		names := make([]string, len(in.Vocab.ColorFamilies))
		for i, f := range in.Vocab.ColorFamilies {
			names[i] = f.Name
		}
		families = ": " + strings.Join(names, ", ")
	}
	fmt.Fprintf(&b, contract, joinTypes(), joinKeys(), families)
	b.WriteString("\n")

	if len(in.Selected) > 0 {
		b.WriteString("\nCurrently selected filters:\n")
		for _, c := range in.Selected {
			fmt.Fprintf(&b, "- %s: %s\n", c.Type, c.Value)
		}
	}
	if in.HasPrice {
		fmt.Fprintf(&b, "\nCurrent price range: %d to %d\n", in.Price.Min, in.Price.Max)
	}

	return Prompt{
		System:  b.String(),
		History: tail(in.History, in.HistoryTurns),
		User:    in.Message,
	}
}

func tail(history []types.Message, n int) []types.Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]types.Message, len(history))
	copy(out, history)
	return out
}

func joinTypes() string {
	names := make([]string, len(types.ChipTypes))
	for i, ct := range types.ChipTypes {
		names[i] = string(ct)
	}
	return strings.Join(names, ", ")
}

func joinKeys() string {
	var names []string
	for _, ct := range types.ChipTypes {
		names = append(names, string(ct.FilterKey()))
	}
	return strings.Join(names, ", ")
}
