package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/shopfilter/internal/catalog"
	"github.com/hyperengineering/shopfilter/internal/filter"
	"github.com/hyperengineering/shopfilter/internal/session"
	"github.com/hyperengineering/shopfilter/internal/types"
	"github.com/hyperengineering/shopfilter/internal/validation"
)

// DefaultResultLimit caps product lists when a request names no limit.
const DefaultResultLimit = 50

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Handler implements the API handlers
type Handler struct {
	catalog  CatalogProvider
	turns    session.Processor
	sessions *session.Manager
	apiKey   string
	version  string
	model    string
}

// NewHandler creates a new Handler. turns runs conversational turns, both
// stateless and on behalf of sessions.
func NewHandler(c CatalogProvider, turns session.Processor, sessions *session.Manager, apiKey, version, model string) *Handler {
	return &Handler{
		catalog:  c,
		turns:    turns,
		sessions: sessions,
		apiKey:   apiKey,
		version:  version,
		model:    model,
	}
}

// SessionTurnResponse is the result of a turn on a held session.
type SessionTurnResponse struct {
	Session session.State       `json:"session"`
	Turn    *types.TurnResponse `json:"turn"`
}

// snapshot returns the snapshot pinned by SnapshotMiddleware, or the current
// one when the handler is mounted without it.
func (h *Handler) snapshot(r *http.Request) *catalog.Snapshot {
	if snap, err := SnapshotFromContext(r.Context()); err == nil {
		return snap
	}
	return h.catalog.Current()
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshot(r)

	resp := types.HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		Model:        h.model,
		ProductCount: len(snap.Products),
		Sessions:     h.sessions.Len(),
	}
	if snap.Empty() {
		resp.Status = "degraded"
	}
	if !snap.LoadedAt.IsZero() {
		loaded := snap.LoadedAt
		resp.CatalogLoaded = &loaded
	}

	writeJSON(w, http.StatusOK, resp)
}

// Facets handles GET /api/v1/facets
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot(r).Facets)
}

// FilterProducts handles POST /api/v1/products/filter
func (h *Handler) FilterProducts(w http.ResponseWriter, r *http.Request) {
	var req types.FilterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateFilterRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	matches := filter.Apply(h.snapshot(r).Products, req.Filters)
	writeJSON(w, http.StatusOK, types.FilterResponse{
		Products: capped(matches, req.Limit),
		Total:    len(matches),
	})
}

// PreviewChips handles POST /api/v1/chips/preview
func (h *Handler) PreviewChips(w http.ResponseWriter, r *http.Request) {
	var req types.PreviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidatePreviewRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	snap := h.snapshot(r)
	ranked := filter.RankAnyChip(snap.Products, canonicalChips(req.Chips, snap))
	out := make([]types.RankedProduct, 0, len(ranked))
	for _, rp := range capped(ranked, req.Limit) {
		out = append(out, types.RankedProduct{Product: rp.Product, Matches: rp.Matches})
	}
	writeJSON(w, http.StatusOK, types.PreviewResponse{Products: out, Total: len(ranked)})
}

// ChipAvailability handles POST /api/v1/chips/availability
func (h *Handler) ChipAvailability(w http.ResponseWriter, r *http.Request) {
	var req types.AvailabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateAvailabilityRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	snap := h.snapshot(r)
	selected := canonicalChips(req.Selected, snap)
	candidates := canonicalChips(req.Candidates, snap)
	resp := types.AvailabilityResponse{Chips: make([]types.ChipAvailability, 0, len(req.Candidates))}
	for i, c := range req.Candidates {
		resp.Chips = append(resp.Chips, types.ChipAvailability{
			ChipID:    c.ID,
			Available: filter.IsAvailable(snap.Products, req.Filters, candidates[i], selected),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Chat handles POST /api/v1/chat. The caller carries all state. A failed turn
// still answers 200 with the neutral fallback body.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req types.TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateTurnRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	resp, err := h.turns.Process(r.Context(), req)
	if resp == nil {
		slog.Error("turn failed", "component", "api", "action", "chat", "error", err)
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSession handles POST /api/v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	st := h.sessions.Create()
	w.Header().Set("Location", r.URL.Path+"/"+st.ID)
	writeJSON(w, http.StatusCreated, st)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SessionTurn handles POST /api/v1/sessions/{id}/turns
func (h *Handler) SessionTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req types.SessionTurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateSessionTurnRequest(req); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}

	resp, st, err := h.sessions.RunTurn(r.Context(), id, req.Message, req.Version, h.turns)
	if resp == nil {
		if !errors.Is(err, session.ErrSessionNotFound) && !errors.Is(err, session.ErrVersionConflict) {
			slog.Error("session turn failed", "component", "api", "action", "session_turn", "session_id", id, "error", err)
		}
		MapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionTurnResponse{Session: st, Turn: resp})
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		MapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes the request body into v, writing a problem response and
// returning false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxBodyBytes))
			return false
		}
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "component", "api", "error", err)
	}
}

// canonicalChips rewrites client chips to the snapshot's casing. Chips that are
// not catalog members pass through and match nothing.
func canonicalChips(chips []types.Chip, snap *catalog.Snapshot) []types.Chip {
	out := make([]types.Chip, len(chips))
	for i, c := range chips {
		if n, ok := validation.Normalize(c, snap.Facets); ok {
			c = n
		}
		out[i] = c
	}
	return out
}

func capped[T any](items []T, limit int) []T {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []T{}
	}
	return items
}
