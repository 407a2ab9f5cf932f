// Package session implements the per-token isolated resource stores. Each
// access token maps to one Session holding versioned resources, tombstones,
// and id counters; Sessions live in a process-wide Store and are reclaimed
// when the token expires.
package session

import (
	"sync"
	"time"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Session is one user's isolated resource world, keyed by the session key
// derived from their access token.
type Session struct {
	key       string
	createdAt time.Time

	mu       sync.RWMutex
	expiry   time.Time // zero means no expiry
	hydrated bool

	// hydrateMu serializes first-use hydration so concurrent first
	// requests cannot run the loader twice.
	hydrateMu sync.Mutex

	typesMu sync.RWMutex
	types   map[string]*typeStore
}

// typeStore holds one resource type's state within a session. The mutex
// serializes writes on the same (type, id) pair; reads on distinct ids
// proceed concurrently.
type typeStore struct {
	mu       sync.RWMutex
	versions map[string]map[int64]fhir.Resource
	latest   map[string]int64
	deleted  map[string]struct{}
	nextID   int64
}

func newTypeStore() *typeStore {
	return &typeStore{
		versions: make(map[string]map[int64]fhir.Resource),
		latest:   make(map[string]int64),
		deleted:  make(map[string]struct{}),
	}
}

// New creates an empty session.
func New(key string) *Session {
	return &Session{
		key:       key,
		createdAt: time.Now(),
		types:     make(map[string]*typeStore),
	}
}

// Key returns the immutable session key.
func (s *Session) Key() string { return s.key }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetExpiry sets the session expiry, inherited from the token's exp claim.
// A zero time means the session never expires.
func (s *Session) SetExpiry(t time.Time) {
	s.mu.Lock()
	s.expiry = t
	s.mu.Unlock()
}

// Expiry returns the current expiry (zero when unset).
func (s *Session) Expiry() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiry
}

// IsExpired reports whether the session is eligible for reclamation at the
// given instant.
func (s *Session) IsExpired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.expiry.IsZero() && now.After(s.expiry)
}

// Hydrated reports whether first-use loading has completed.
func (s *Session) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// SetHydrated marks the hydration state.
func (s *Session) SetHydrated(v bool) {
	s.mu.Lock()
	s.hydrated = v
	s.mu.Unlock()
}

// RunHydration invokes fn at most once per hydration cycle: concurrent
// callers block until the first completes, and every caller after a
// successful run is a no-op. A failed run leaves the session un-hydrated so
// a later request retries.
func (s *Session) RunHydration(fn func() error) error {
	s.hydrateMu.Lock()
	defer s.hydrateMu.Unlock()
	if s.Hydrated() {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	s.SetHydrated(true)
	return nil
}

func (s *Session) typeStoreFor(resourceType string) *typeStore {
	s.typesMu.RLock()
	ts := s.types[resourceType]
	s.typesMu.RUnlock()
	if ts != nil {
		return ts
	}
	s.typesMu.Lock()
	defer s.typesMu.Unlock()
	if ts = s.types[resourceType]; ts == nil {
		ts = newTypeStore()
		s.types[resourceType] = ts
	}
	return ts
}

// Store inserts a resource version and clears any tombstone on the id, so a
// store after a delete un-deletes.
func (s *Session) Store(resourceType, id string, version int64, res fhir.Resource) {
	ts := s.typeStoreFor(resourceType)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	m := ts.versions[id]
	if m == nil {
		m = make(map[int64]fhir.Resource)
		ts.versions[id] = m
	}
	m[version] = res
	if version > ts.latest[id] {
		ts.latest[id] = version
	}
	delete(ts.deleted, id)
}

// Get returns the stored resource, or nil when absent. A nil version asks
// for the highest stored version. Tombstones are not consulted here; the
// provider layer distinguishes gone from not-found.
func (s *Session) Get(resourceType, id string, version *int64) fhir.Resource {
	ts := s.typeStoreFor(resourceType)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	m := ts.versions[id]
	if len(m) == 0 {
		return nil
	}
	if version != nil {
		return m[*version]
	}
	return m[ts.latest[id]]
}

// LatestVersion returns the highest stored version number for an id, or 0
// when the id has no versions.
func (s *Session) LatestVersion(resourceType, id string) int64 {
	ts := s.typeStoreFor(resourceType)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.latest[id]
}

// GetAll returns the latest version of every id that has stored versions
// and no tombstone.
func (s *Session) GetAll(resourceType string) []fhir.Resource {
	ts := s.typeStoreFor(resourceType)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]fhir.Resource, 0, len(ts.versions))
	for id, m := range ts.versions {
		if _, dead := ts.deleted[id]; dead || len(m) == 0 {
			continue
		}
		out = append(out, m[ts.latest[id]])
	}
	return out
}

// Delete marks an id as deleted. Stored versions are kept and Get still
// returns them; the provider layer reports the id as gone until a
// subsequent store clears the tombstone.
func (s *Session) Delete(resourceType, id string) {
	ts := s.typeStoreFor(resourceType)
	ts.mu.Lock()
	ts.deleted[id] = struct{}{}
	ts.mu.Unlock()
}

// IsDeleted reports whether the id carries a tombstone.
func (s *Session) IsDeleted(resourceType, id string) bool {
	ts := s.typeStoreFor(resourceType)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, dead := ts.deleted[id]
	return dead
}

// Exists reports whether the id has stored versions and no tombstone.
func (s *Session) Exists(resourceType, id string) bool {
	ts := s.typeStoreFor(resourceType)
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if _, dead := ts.deleted[id]; dead {
		return false
	}
	return len(ts.versions[id]) > 0
}

// NextID returns the next server-assigned id for the type, starting at 1
// and strictly monotonic per type within the session.
func (s *Session) NextID(resourceType string) int64 {
	ts := s.typeStoreFor(resourceType)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.nextID++
	return ts.nextID
}

// Clear drops all resource state and resets the hydration flag.
func (s *Session) Clear() {
	s.typesMu.Lock()
	s.types = make(map[string]*typeStore)
	s.typesMu.Unlock()
	s.SetHydrated(false)
}
