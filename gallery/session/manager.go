package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Opener loads the record store for a new session.
type Opener func() (*dataset.Store, error)

// Options configures a Manager.
type Options struct {
	Open Opener
	// Changes reports the data file watcher count; nil means no watcher.
	Changes func() uint64
	// Temperature draws the initial sampling temperature.
	Temperature func() float32
	// IdleTTL expires sessions unused for this long; zero keeps them forever.
	IdleTTL time.Duration
}

type entry struct {
	mu    sync.Mutex
	state *State
}

// Manager creates sessions and serializes requests within each one.
type Manager struct {
	sessions sync.Map // session ID → *entry
	opts     Options
	now      func() time.Time
	logger   zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

// Acquire returns the session for id locked for exclusive use. An unknown or
// empty id starts a new session with a fresh id. Callers must call release.
func (m *Manager) Acquire(id string) (state *State, release func(), err error) {
	if id != "" {
		if v, ok := m.sessions.Load(id); ok {
			e := v.(*entry)
			e.mu.Lock()
			// The entry may have been swept while we waited.
			if cur, ok := m.sessions.Load(id); ok && cur == e {
				e.state.LastSeen = m.now()
				return e.state, e.mu.Unlock, nil
			}
			e.mu.Unlock()
		}
	}

	state, err = m.create()
	if err != nil {
		return nil, nil, err
	}
	e := &entry{state: state}
	e.mu.Lock()
	m.sessions.Store(state.ID, e)
	return state, e.mu.Unlock, nil
}

func (m *Manager) create() (*State, error) {
	store, err := m.opts.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	now := m.now()
	s := &State{
		ID:        uuid.NewString(),
		Store:     store,
		CreatedAt: now,
		LastSeen:  now,
	}
	if m.opts.Changes != nil {
		s.SeenChanges = m.opts.Changes()
	}
	if m.opts.Temperature != nil {
		s.Temperature = m.opts.Temperature()
	}

	m.logger.Debug().Str("session", s.ID).Int("records", store.Len()).Msg("session started")
	return s, nil
}

// Changes returns the current watcher count, or zero without a watcher.
func (m *Manager) Changes() uint64 {
	if m.opts.Changes == nil {
		return 0
	}
	return m.opts.Changes()
}

// Delete ends a session.
func (m *Manager) Delete(id string) {
	m.sessions.Delete(id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	n := 0
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep removes sessions idle for longer than IdleTTL and returns how many
// were removed. Sessions busy with a request are skipped.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}

	cutoff := m.now().Add(-m.opts.IdleTTL)
	removed := 0
	m.sessions.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.mu.TryLock() {
			return true
		}
		if e.state.LastSeen.Before(cutoff) {
			m.sessions.Delete(k)
			removed++
		}
		e.mu.Unlock()
		return true
	})

	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("expired idle sessions")
	}
	return removed
}
