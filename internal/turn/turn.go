// Package turn runs one conversational turn: generate a suggestion, validate
// it, derive colors, reconcile intent and price, and evaluate the filters.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/colors"
	"github.com/hyperengineering/shopfilter/internal/filter"
	"github.com/hyperengineering/shopfilter/internal/intent"
	"github.com/hyperengineering/shopfilter/internal/llm"
	"github.com/hyperengineering/shopfilter/internal/price"
	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/validation"
	"github.com/hyperengineering/shopfilter/internal/vocab"
)

// FallbackMessage is shown when a turn cannot be completed.
const FallbackMessage = "Sorry, I couldn't work out filters for that. Here is the full catalog; could you try rephrasing?"

// Defaults for Options fields left at zero.
const (
	DefaultPreviewLimit     = 12
	DefaultColorIntentTurns = 3
)

// CatalogProvider returns the active catalog snapshot.
type CatalogProvider interface {
	Current() *catalog.Snapshot
}

// Options tunes a Service.
type Options struct {
	// PreviewLimit caps matchingProducts.
	PreviewLimit int

	// ColorIntentTurns is how many recent user messages are scanned for a color family.
	ColorIntentTurns int

	// HistoryTurns is how many trailing history messages are sent to the generator.
	HistoryTurns int
}

// Service processes turns. Safe for concurrent use; turns for the same
// session must be serialized by the caller.
type Service struct {
	catalog   CatalogProvider
	generator llm.Generator
	vocab     *vocab.Tables
	colors    *colors.Policy
	opts      Options
}

// NewService creates a turn service.
func NewService(provider CatalogProvider, generator llm.Generator, tables *vocab.Tables, opts Options) *Service {
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = DefaultPreviewLimit
	}
	if opts.ColorIntentTurns <= 0 {
		opts.ColorIntentTurns = DefaultColorIntentTurns
	}
	return &Service{
		catalog:   provider,
		generator: generator,
		vocab:     tables,
		colors:    colors.NewPolicy(tables),
		opts:      opts,
	}
}

// Process runs one turn. The response is always usable: on a terminal
// failure it is the neutral fallback and the error says why. A snapshot
// pinned on ctx with catalog.WithSnapshot is used instead of the current one.
func (s *Service) Process(ctx context.Context, req types.TurnRequest) (*types.TurnResponse, error) {
	start := time.Now()
	turnID := ulid.Make().String()
	snap, ok := catalog.FromContext(ctx)
	if !ok {
		snap = s.catalog.Current()
	}
	f := snap.Facets
	bounds, hasPrice := f.Bounds()

	var current types.FilterState
	if req.CurrentFilters != nil {
		current = req.CurrentFilters.Clone()
	}
	selection := req.SelectedChips
	if len(selection) == 0 {
		// Stateless callers may carry their selection as filters only.
		selection = filter.ChipsFromState(current)
	}
	prior := s.normalizeSelection(turnID, selection, snap)
	held := price.Current(current, bounds)

	prompt := llm.BuildPrompt(llm.PromptInput{
		Facets:       f,
		Vocab:        s.vocab,
		Selected:     prior,
		Price:        held,
		HasPrice:     hasPrice && (current.MinPrice != nil || current.MaxPrice != nil),
		History:      req.ConversationHistory,
		Message:      req.Message,
		HistoryTurns: s.opts.HistoryTurns,
	})

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, llm.ErrUpstream) {
			err = fmt.Errorf("%w: %w", llm.ErrUpstream, err)
		}
		return s.fallback(turnID, snap, err), err
	}

	result, err := validation.NewSuggestionValidator(f, s.vocab).Validate(raw)
	if err != nil {
		return s.fallback(turnID, snap, err), err
	}
	if len(result.Errors) > 0 {
		slog.Debug("suggestion diagnostics",
			"component", "turn",
			"action", "chips_rejected",
			"turn_id", turnID,
			"rejected", len(result.Rejected),
			"errors", result.Errors,
		)
	}

	decision := intent.NewDecision(result.IntentMode, result.ReplaceCategories)
	outcome := intent.Reconcile(prior, held, decision, bounds)

	suggested, colorSource := s.resolveColors(result, snap, decision, outcome.Selected, req)

	incoming := suggested
	if colorSource.Source == colors.SourceDerived && colorSource.Family == "" {
		// Unnarrowed derived colors are offered, not applied.
		incoming = colors.Replace(suggested, nil)
	}
	selected := intent.Merge(outcome.Selected, incoming, decision.Mode)

	priceRange := outcome.Price
	if hasPrice {
		res := price.Reconcile(outcome.Price, result.MinPrice, result.MaxPrice, bounds)
		for _, conflict := range res.Conflicts {
			slog.Warn("price conflict resolved",
				"component", "turn",
				"action", "price_conflict",
				"turn_id", turnID,
				"detail", conflict,
			)
		}
		priceRange = res.Range
	}
	minPtr, maxPtr := price.Pointers(priceRange, bounds)

	filters := filter.FromChips(selected, minPtr, maxPtr)
	if !decision.Has(types.ReplaceAll) {
		filters.InStock = current.InStock
	}

	resp := &types.TurnResponse{
		TurnID:            turnID,
		Message:           result.Message,
		SuggestedChips:    suggested,
		Invalid:           result.Rejected,
		Errors:            result.Errors,
		IntentMode:        decision.Mode,
		ReplaceCategories: decision.Categories,
		MinPrice:          minPtr,
		MaxPrice:          maxPtr,
		MatchingProducts:  preview(filter.MatchAnyChip(snap.Products, suggested), s.opts.PreviewLimit),
		SelectedChips:     selected,
		Filters:           filters,
		TotalMatches:      filter.Count(snap.Products, filters),
	}

	slog.Info("turn processed",
		"component", "turn",
		"action", "turn_processed",
		"turn_id", turnID,
		"intent_mode", string(decision.Mode),
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"color_source", string(colorSource.Source),
		"selected", len(selected),
		"total_matches", resp.TotalMatches,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// resolveColors replaces the suggestion's color chips according to the color
// policy. The anchor is the suggested subcategories, or the kept selection's when the
// suggestion names none and the turn is not exploring.
func (s *Service) resolveColors(result *validation.SuggestionResult, snap *catalog.Snapshot, d intent.Decision, selected []types.Chip, req types.TurnRequest) ([]types.Chip, colors.Result) {
	anchor := subcategories(result.Accepted)
	if len(anchor) == 0 && d.Mode != types.IntentExplore {
		anchor = subcategories(selected)
	}

	res := s.colors.Derive(colors.Input{
		Accepted:      result.Accepted,
		Products:      snap.Products,
		Subcategories: anchor,
		FamilyHint:    result.ColorIntent,
		Texts:         recentUserTexts(req, s.opts.ColorIntentTurns),
	})
	return colors.Replace(result.Accepted, res.Chips), res
}

// normalizeSelection drops selected chips that are no longer catalog members
// and rewrites the rest to canonical form.
func (s *Service) normalizeSelection(turnID string, chips []types.Chip, snap *catalog.Snapshot) []types.Chip {
	out := make([]types.Chip, 0, len(chips))
	seen := make(map[string]bool, len(chips))
	for _, c := range chips {
		n, ok := validation.Normalize(c, snap.Facets)
		if !ok {
			slog.Debug("stale selected chip dropped",
				"component", "turn",
				"action", "chip_dropped",
				"turn_id", turnID,
				"chip_id", c.ID,
			)
			continue
		}
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// fallback is the neutral response: apology, no chips, unconstrained filters.
func (s *Service) fallback(turnID string, snap *catalog.Snapshot, cause error) *types.TurnResponse {
	slog.Error("turn failed",
		"component", "turn",
		"action", "turn_fallback",
		"turn_id", turnID,
		"error", cause,
	)
	return &types.TurnResponse{
		TurnID:           turnID,
		Message:          FallbackMessage,
		SuggestedChips:   []types.Chip{},
		Errors:           []string{cause.Error()},
		IntentMode:       types.IntentRefine,
		MatchingProducts: preview(snap.Products, s.opts.PreviewLimit),
		SelectedChips:    []types.Chip{},
		TotalMatches:     len(snap.Products),
		Fallback:         true,
	}
}

func subcategories(chips []types.Chip) []string {
	var out []string
	for _, c := range chips {
		if c.Type == types.ChipSubcategory {
			out = append(out, c.Value)
		}
	}
	return out
}

// recentUserTexts returns the current message followed by up to n-1 earlier
// user messages, newest first.
func recentUserTexts(req types.TurnRequest, n int) []string {
	texts := []string{req.Message}
	for i := len(req.ConversationHistory) - 1; i >= 0 && len(texts) < n; i-- {
		m := req.ConversationHistory[i]
		if m.Role == types.RoleUser && strings.TrimSpace(m.Content) != "" {
			texts = append(texts, m.Content)
		}
	}
	return texts
}

func preview(products []types.Product, limit int) []types.Product {
	if len(products) > limit {
		products = products[:limit]
	}
	out := make([]types.Product, len(products))
	copy(out, products)
	return out
}
