// Package session keeps per-shopper conversation state in memory.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/shopfilter/internal/types"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrVersionConflict is returned when a caller's expected version is stale.
	ErrVersionConflict = errors.New("session version conflict")

	// ErrInvalidSessionID is returned for IDs that are not ULIDs.
	ErrInvalidSessionID = errors.New("invalid session id")
)

// State is the versioned value carried across turns. Version increases by one
// with every committed turn.
type State struct {
	ID            string            `json:"id"`
	Version       int64             `json:"version"`
	SelectedChips []types.Chip      `json:"selectedChips"`
	Filters       types.FilterState `json:"filters"`
	History       []types.Message   `json:"history"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.SelectedChips = append([]types.Chip{}, s.SelectedChips...)
	out.History = append([]types.Message{}, s.History...)
	out.Filters = s.Filters.Clone()
	return out
}

// Request builds the turn request for message from the held state.
func (s State) Request(message string) types.TurnRequest {
	filters := s.Filters.Clone()
	return types.TurnRequest{
		Message:             message,
		ConversationHistory: append([]types.Message(nil), s.History...),
		SelectedChips:       append([]types.Chip(nil), s.SelectedChips...),
		CurrentFilters:      &filters,
	}
}

// Commit returns the next state after a turn: selection and filters from
// resp, the exchange appended to history capped at maxHistory messages.
func (s State) Commit(message string, resp *types.TurnResponse, maxHistory int, now time.Time) State {
	next := s.Clone()
	next.Version++
	next.UpdatedAt = now
	next.SelectedChips = append([]types.Chip{}, resp.SelectedChips...)
	next.Filters = resp.Filters.Clone()
	next.History = append(next.History,
		types.Message{Role: types.RoleUser, Content: message, At: now},
		types.Message{Role: types.RoleAssistant, Content: resp.Message, At: now},
	)
	if maxHistory > 0 && len(next.History) > maxHistory {
		next.History = append([]types.Message{}, next.History[len(next.History)-maxHistory:]...)
	}
	return next
}

// ValidateID checks that id is a well-formed session ID.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidSessionID
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return ErrInvalidSessionID
	}
	return nil
}
