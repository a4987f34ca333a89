package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// DefaultMaxHistory bounds the history kept per session.
const DefaultMaxHistory = 50

// Processor runs one turn.
type Processor interface {
	Process(ctx context.Context, req types.TurnRequest) (*types.TurnResponse, error)
}

// entry is one live session. turnMu serializes turns; mu guards state and lastAccess.
type entry struct {
	turnMu sync.Mutex

	mu         sync.Mutex
	state      State
	lastAccess time.Time
}

func (e *entry) snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *entry) touch(now time.Time) {
	e.mu.Lock()
	e.lastAccess = now
	e.mu.Unlock()
}

// Manager holds live sessions. Nothing survives a restart.
type Manager struct {
	idleTTL    time.Duration
	maxHistory int
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates a manager evicting sessions idle longer than idleTTL.
// A zero idleTTL disables eviction.
func NewManager(idleTTL time.Duration, maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		idleTTL:    idleTTL,
		maxHistory: maxHistory,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*entry),
	}
}

// Create starts a new empty session.
func (m *Manager) Create() State {
	now := m.now()
	st := State{
		ID:            ulid.Make().String(),
		SelectedChips: []types.Chip{},
		History:       []types.Message{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	m.mu.Lock()
	m.sessions[st.ID] = &entry{state: st, lastAccess: now}
	m.mu.Unlock()

	slog.Info("session created",
		"component", "session",
		"action", "session_created",
		"session_id", st.ID,
	)
	return st.Clone()
}

// Get returns a copy of the session state.
func (m *Manager) Get(id string) (State, error) {
	e, err := m.lookup(id)
	if err != nil {
		return State{}, err
	}
	e.touch(m.now())
	return e.snapshot(), nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)

	slog.Info("session deleted",
		"component", "session",
		"action", "session_deleted",
		"session_id", id,
	)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RunTurn processes message against the session and commits the result.
// Turns on one session run one at a time. expectedVersion, when non-zero,
// must equal the current version or ErrVersionConflict is returned before
// any work is done. A fallback response from proc is still committed.
func (m *Manager) RunTurn(ctx context.Context, id, message string, expectedVersion int64, proc Processor) (*types.TurnResponse, State, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, State{}, err
	}

	e.turnMu.Lock()
	defer e.turnMu.Unlock()

	// The sweeper may have evicted the session while we waited.
	if _, err := m.lookup(id); err != nil {
		return nil, State{}, err
	}

	current := e.snapshot()
	if expectedVersion != 0 && expectedVersion != current.Version {
		return nil, current, fmt.Errorf("%w: expected %d, have %d", ErrVersionConflict, expectedVersion, current.Version)
	}

	resp, turnErr := proc.Process(ctx, current.Request(message))
	if resp == nil {
		if turnErr == nil {
			turnErr = fmt.Errorf("turn produced no response")
		}
		return nil, current, turnErr
	}

	now := m.now()
	next := current.Commit(message, resp, m.maxHistory, now)
	e.mu.Lock()
	e.state = next
	e.lastAccess = now
	e.mu.Unlock()

	return resp, next.Clone(), turnErr
}

// Sweep evicts sessions idle since before now-idleTTL. Sessions with a turn
// in progress are skipped.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, e := range m.sessions {
		if !e.turnMu.TryLock() {
			continue
		}
		e.mu.Lock()
		idle := e.lastAccess.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted++
		}
		e.turnMu.Unlock()
	}
	return evicted
}

func (m *Manager) lookup(id string) (*entry, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
