package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is the cadence of the expired-session sweep.
const DefaultSweepInterval = 5 * time.Minute

// Store is the process-wide mapping from session key to Session. All
// operations are safe under arbitrary goroutine parallelism.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewStore creates an empty session store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logger.With().Str("component", "session-store").Logger(),
	}
}

// GetOrCreate returns the session for key, creating it when absent.
// Concurrent callers with the same key receive the same instance.
func (st *Store) GetOrCreate(key string) *Session {
	st.mu.RLock()
	s := st.sessions[key]
	st.mu.RUnlock()
	if s != nil {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s = st.sessions[key]; s == nil {
		s = New(key)
		st.sessions[key] = s
		st.logger.Info().Str("session", key).Msg("created new session")
	}
	return s
}

// Get returns the session for key, or nil. Never creates.
func (st *Store) Get(key string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[key]
}

// Remove drops the session for key. Idempotent.
func (st *Store) Remove(key string) {
	st.mu.Lock()
	_, existed := st.sessions[key]
	delete(st.sessions, key)
	st.mu.Unlock()
	if existed {
		st.logger.Info().Str("session", key).Msg("removed session")
	}
}

// ActiveKeys returns a snapshot of the current session keys.
func (st *Store) ActiveKeys() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	keys := make([]string, 0, len(st.sessions))
	for k := range st.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions expired relative to now. It snapshots the entries
// first so it never blocks concurrent GetOrCreate; in-flight requests that
// hold a reference to a swept session complete against the detached object.
func (st *Store) Sweep(now time.Time) int {
	st.mu.RLock()
	snapshot := make(map[string]*Session, len(st.sessions))
	for k, s := range st.sessions {
		snapshot[k] = s
	}
	st.mu.RUnlock()

	removed := 0
	for key, s := range snapshot {
		if s.IsExpired(now) {
			st.Remove(key)
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info().Int("count", removed).Msg("swept expired sessions")
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (st *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.Sweep(time.Now())
			}
		}
	}()
}
