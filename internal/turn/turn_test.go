package turn

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/llm"
	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/validation"
	"github.com/hyperengineering/shopfilter/internal/vocab"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []llm.Prompt
}

func (g *fakeGenerator) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.prompts = append(g.prompts, p)
	return g.response, g.err
}

func (g *fakeGenerator) ModelName() string { return "fake" }

type staticCatalog struct {
	snap *catalog.Snapshot
}

func (c staticCatalog) Current() *catalog.Snapshot { return c.snap }

func testCatalog(t *testing.T) staticCatalog {
	t.Helper()
	snap, err := catalog.NewSnapshot([]types.Product{
		{ID: "sw1", Title: "Navy wool sweater", Price: 80, InStock: true, Subcategory: "sweaters", Color: "navy", Material: "wool", Size: "M", Occasions: []string{"work"}},
		{ID: "sw2", Title: "Brown wool sweater", Price: 120, InStock: true, Subcategory: "sweaters", Color: "brown", Material: "wool", Size: "L", Occasions: []string{"casual"}},
		{ID: "sw3", Title: "Olive cotton sweater", Price: 60, InStock: false, Subcategory: "sweaters", Color: "olive", Material: "cotton", Size: "M", Occasions: []string{"casual"}},
		{ID: "bt1", Title: "Brown leather boots", Price: 210, InStock: true, Subcategory: "boots", Color: "brown", Material: "leather", Size: "L", Occasions: []string{"outdoor"}},
		{ID: "bt2", Title: "Black leather boots", Price: 180, InStock: true, Subcategory: "boots", Color: "black", Material: "leather", Size: "M", Occasions: []string{"work"}},
		{ID: "ts1", Title: "Red tee", Price: 20, InStock: true, Subcategory: "t-shirts", Color: "red", Material: "cotton", Size: "S", Occasions: []string{"athletic"}},
		{ID: "ts2", Title: "White tee", Price: 15, InStock: true, Subcategory: "t-shirts", Color: "white", Material: "cotton", Size: "S", Occasions: []string{"athletic"}},
	}, "test")
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return staticCatalog{snap: snap}
}

func newService(t *testing.T, gen llm.Generator) *Service {
	t.Helper()
	return NewService(testCatalog(t), gen, vocab.Default(), Options{PreviewLimit: 3, HistoryTurns: 4})
}

func chipValues(chips []types.Chip) []string {
	out := make([]string, len(chips))
	for i, c := range chips {
		out[i] = string(c.Type) + ":" + c.Value
	}
	return out
}

func TestProcess_ExplicitColorHonoredWithoutMatches(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Red sweaters coming up","suggestedChips":[
		{"id":"a","type":"subcategory","label":"Sweaters","filterKey":"subcategory","filterValue":"sweaters"},
		{"id":"b","type":"color","label":"Red","filterKey":"colors","filterValue":"red"}
	]}`}

	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "red sweaters"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(resp.Filters.Colors, []string{"red"}) {
		t.Errorf("Colors = %v, want [red]", resp.Filters.Colors)
	}
	if resp.TotalMatches != 0 {
		t.Errorf("TotalMatches = %d, want 0", resp.TotalMatches)
	}
	if resp.Fallback {
		t.Error("unexpected fallback")
	}
}

func TestProcess_DerivesFamilyColors(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Earthy knits","suggestedChips":[
		{"id":"a","type":"subcategory","label":"Sweaters","filterKey":"subcategory","filterValue":"sweaters"}
	]}`}

	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "sweaters in earth tones"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"subcategory:sweaters", "color:brown", "color:olive"}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), want) {
		t.Errorf("SelectedChips = %v, want %v", chipValues(resp.SelectedChips), want)
	}
	if resp.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2", resp.TotalMatches)
	}
}

func TestProcess_UnnarrowedColorsAreOfferedOnly(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Boots","suggestedChips":[
		{"id":"a","type":"subcategory","label":"Boots","filterKey":"subcategory","filterValue":"boots"}
	]}`}

	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "boots"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(chipValues(resp.SuggestedChips), []string{"subcategory:boots", "color:black", "color:brown"}) {
		t.Errorf("SuggestedChips = %v", chipValues(resp.SuggestedChips))
	}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), []string{"subcategory:boots"}) {
		t.Errorf("SelectedChips = %v", chipValues(resp.SelectedChips))
	}
	if len(resp.Filters.Colors) != 0 {
		t.Errorf("Colors = %v, want none", resp.Filters.Colors)
	}
}

func TestProcess_ReplaceAllResetsSelectionAndPrice(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Starting over with boots","intentMode":"replace","replaceCategories":["all"],
		"suggestedChips":[{"id":"a","type":"subcategory","label":"Boots","filterKey":"subcategory","filterValue":"boots"}]}`}

	min, max := 50, 150
	inStock := true
	req := types.TurnRequest{
		Message: "actually forget that, show me boots",
		SelectedChips: []types.Chip{
			types.NewChip(types.ChipSubcategory, "sweaters", ""),
			types.NewChip(types.ChipColor, "navy", ""),
			types.NewChip(types.ChipMaterial, "wool", ""),
			types.NewChip(types.ChipOccasion, "work", ""),
			types.NewChip(types.ChipSize, "M", ""),
		},
		CurrentFilters: &types.FilterState{MinPrice: &min, MaxPrice: &max, InStock: &inStock},
	}

	resp, err := newService(t, gen).Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), []string{"subcategory:boots"}) {
		t.Errorf("SelectedChips = %v", chipValues(resp.SelectedChips))
	}
	if resp.MinPrice != nil || resp.MaxPrice != nil {
		t.Errorf("price = %v..%v, want unconstrained", resp.MinPrice, resp.MaxPrice)
	}
	if resp.Filters.InStock != nil {
		t.Error("replace all should clear inStock")
	}
	if resp.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2", resp.TotalMatches)
	}
}

func TestProcess_ReplaceColorsKeepsOtherFacets(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Black instead","intentMode":"replace","replaceCategories":["colors"],
		"suggestedChips":[{"id":"a","type":"color","label":"Black","filterKey":"colors","filterValue":"black"}]}`}

	req := types.TurnRequest{
		Message: "black instead",
		SelectedChips: []types.Chip{
			types.NewChip(types.ChipSubcategory, "boots", ""),
			types.NewChip(types.ChipColor, "brown", ""),
		},
	}
	resp, err := newService(t, gen).Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), []string{"subcategory:boots", "color:black"}) {
		t.Errorf("SelectedChips = %v", chipValues(resp.SelectedChips))
	}
	if resp.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1", resp.TotalMatches)
	}
}

func TestProcess_ExploreLeavesSelection(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"You could also try","intentMode":"explore",
		"suggestedChips":[{"id":"a","type":"material","label":"Leather","filterKey":"materials","filterValue":"leather"}]}`}

	req := types.TurnRequest{
		Message:       "what else is there",
		SelectedChips: []types.Chip{types.NewChip(types.ChipSubcategory, "sweaters", "")},
	}
	resp, err := newService(t, gen).Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), []string{"subcategory:sweaters"}) {
		t.Errorf("SelectedChips = %v", chipValues(resp.SelectedChips))
	}
	if len(resp.MatchingProducts) != 2 {
		t.Errorf("MatchingProducts = %d, want the 2 leather products", len(resp.MatchingProducts))
	}
}

func TestProcess_RefineKeepsSelectionHeldAsFilters(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Wool ones","intentMode":"refine",
		"suggestedChips":[{"id":"a","type":"material","label":"Wool","filterKey":"materials","filterValue":"wool"}]}`}

	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{
		Message:        "only wool",
		CurrentFilters: &types.FilterState{Subcategories: []string{"sweaters"}, Colors: []string{"navy"}},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"subcategory:sweaters", "color:navy", "material:wool"}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), want) {
		t.Errorf("SelectedChips = %v, want %v", chipValues(resp.SelectedChips), want)
	}
	if !reflect.DeepEqual(resp.Filters.Subcategories, []string{"sweaters"}) || !reflect.DeepEqual(resp.Filters.Colors, []string{"navy"}) {
		t.Errorf("Filters = %+v, want sweaters/navy kept", resp.Filters)
	}
	if resp.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1", resp.TotalMatches)
	}
}

func TestProcess_UsesSnapshotPinnedOnContext(t *testing.T) {
	pinned, err := catalog.NewSnapshot([]types.Product{
		{ID: "only", Title: "Grey scarf", Price: 30, InStock: true, Subcategory: "scarves", Color: "grey"},
	}, "pinned")
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	gen := &fakeGenerator{response: `{"message":"Here you go","suggestedChips":[]}`}

	ctx := catalog.WithSnapshot(context.Background(), pinned)
	resp, err := newService(t, gen).Process(ctx, types.TurnRequest{Message: "anything"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.TotalMatches != 1 {
		t.Errorf("TotalMatches = %d, want 1 from the pinned snapshot", resp.TotalMatches)
	}
	if !strings.Contains(gen.prompts[0].System, "scarves") {
		t.Error("prompt should list the pinned catalog's vocabulary")
	}
}

func TestProcess_PriceConflictResetsMax(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"Pricier","suggestedChips":[],"minPrice":150}`}

	min, max := 20, 100
	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{
		Message:        "over 150",
		CurrentFilters: &types.FilterState{MinPrice: &min, MaxPrice: &max},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.MinPrice == nil || *resp.MinPrice != 150 {
		t.Errorf("MinPrice = %v, want 150", resp.MinPrice)
	}
	if resp.MaxPrice != nil {
		t.Errorf("MaxPrice = %v, want catalog max (nil)", *resp.MaxPrice)
	}
	if resp.TotalMatches != 2 {
		t.Errorf("TotalMatches = %d, want 2", resp.TotalMatches)
	}
}

func TestProcess_PartialAcceptanceReportsInvalid(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"x","suggestedChips":[
		{"id":"a","type":"subcategory","label":"Boots","filterKey":"subcategory","filterValue":"boots"},
		{"id":"b","type":"material","label":"Suede","filterKey":"materials","filterValue":"suede"},
		{"id":"c","type":"size","label":"L","filterKey":"sizes","filterValue":"l"}
	]}`}

	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "suede boots in large"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(resp.Invalid) != 1 || resp.Invalid[0].Value != "suede" {
		t.Errorf("Invalid = %v", resp.Invalid)
	}
	if len(resp.Errors) == 0 {
		t.Error("Errors should describe the rejected chip")
	}
	if !reflect.DeepEqual(resp.Filters.Sizes, []string{"L"}) {
		t.Errorf("Sizes = %v, want [L]", resp.Filters.Sizes)
	}
}

func TestProcess_DropsStaleSelectedChips(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"ok","suggestedChips":[]}`}
	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{
		Message: "ok",
		SelectedChips: []types.Chip{
			types.NewChip(types.ChipColor, "teal", ""),
			types.NewChip(types.ChipColor, "NAVY", ""),
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !reflect.DeepEqual(chipValues(resp.SelectedChips), []string{"color:navy"}) {
		t.Errorf("SelectedChips = %v", chipValues(resp.SelectedChips))
	}
}

func TestProcess_UpstreamFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("timeout")}
	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{
		Message:       "anything",
		SelectedChips: []types.Chip{types.NewChip(types.ChipSubcategory, "boots", "")},
	})
	if !errors.Is(err, llm.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	assertFallback(t, resp)
}

func TestProcess_ParseFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{response: "I'm not sure what you mean"}
	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "?"})
	if !errors.Is(err, validation.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
	assertFallback(t, resp)
}

func TestProcess_SchemaFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{response: `{"message": 3, "suggestedChips": []}`}
	resp, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "?"})
	if !errors.Is(err, validation.ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
	assertFallback(t, resp)
}

func assertFallback(t *testing.T, resp *types.TurnResponse) {
	t.Helper()
	if resp == nil || !resp.Fallback {
		t.Fatalf("resp = %+v, want fallback", resp)
	}
	if resp.Message != FallbackMessage {
		t.Errorf("Message = %q", resp.Message)
	}
	if len(resp.SuggestedChips) != 0 || len(resp.SelectedChips) != 0 {
		t.Errorf("fallback carries chips: %v / %v", resp.SuggestedChips, resp.SelectedChips)
	}
	if resp.TotalMatches != 7 {
		t.Errorf("TotalMatches = %d, want full catalog", resp.TotalMatches)
	}
	if len(resp.MatchingProducts) != 3 {
		t.Errorf("MatchingProducts = %d, want preview limit 3", len(resp.MatchingProducts))
	}
	if len(resp.Errors) != 1 {
		t.Errorf("Errors = %v, want one diagnostic", resp.Errors)
	}
}

func TestProcess_PromptCarriesBoundedHistory(t *testing.T) {
	gen := &fakeGenerator{response: `{"message":"ok","suggestedChips":[]}`}
	history := make([]types.Message, 6)
	for i := range history {
		history[i] = types.Message{Role: types.RoleUser, Content: strings.Repeat("x", i+1)}
	}

	if _, err := newService(t, gen).Process(context.Background(), types.TurnRequest{Message: "hi", ConversationHistory: history}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.prompts))
	}
	if len(gen.prompts[0].History) != 4 {
		t.Errorf("history sent = %d, want 4", len(gen.prompts[0].History))
	}
	if !strings.Contains(gen.prompts[0].System, "t-shirts") {
		t.Error("prompt should list catalog subcategories")
	}
}

func TestRecentUserTexts(t *testing.T) {
	req := types.TurnRequest{
		Message: "now",
		ConversationHistory: []types.Message{
			{Role: types.RoleUser, Content: "first"},
			{Role: types.RoleAssistant, Content: "reply"},
			{Role: types.RoleUser, Content: "second"},
		},
	}
	got := recentUserTexts(req, 2)
	if !reflect.DeepEqual(got, []string{"now", "second"}) {
		t.Errorf("recentUserTexts = %v", got)
	}
}
