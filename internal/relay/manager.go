package relay

import (
	"sync"
)

// sessionKey is the registry's composite key (spec §4.3/§4.4: sessions are
// scoped per owner, never globally addressable by id alone).
type sessionKey struct {
	OwnerID string
	ID      string
}

// Manager is the process-wide session registry (spec §4.4), grounded on
// the teacher's internal/relay/sessions.go registry shape: a single mutex
// guarding a map, with no per-session locks held across the map lock.
type Manager struct {
	historyBytes int

	mu       sync.RWMutex
	sessions map[sessionKey]*Session
}

// NewManager constructs an empty registry. historyBytes bounds every
// session's scrollback buffer (spec §6.5's history_bytes config value).
func NewManager(historyBytes int) *Manager {
	return &Manager{
		historyBytes: historyBytes,
		sessions:     make(map[sessionKey]*Session),
	}
}

// GetOrCreate returns the existing session for (ownerID, id), creating one
// if absent. If an existing session has already ended, it is revived in
// place — preserving history, clearing ended_at, and detaching any stale
// upstream (spec §4.3's resurrection semantics) — rather than replaced.
func (m *Manager) GetOrCreate(ownerID, id string) (sess *Session, created bool) {
	key := sessionKey{OwnerID: ownerID, ID: id}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[key]; ok {
		if !existing.IsActive() {
			existing.Revive()
		}
		return existing, false
	}

	sess = NewSession(ownerID, id, m.historyBytes)
	m.sessions[key] = sess
	return sess, true
}

// Get looks up a session without creating it.
func (m *Manager) Get(ownerID, id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionKey{OwnerID: ownerID, ID: id}]
	return sess, ok
}

// SessionsFor returns every session belonging to ownerID, in no particular
// order.
func (m *Manager) SessionsFor(ownerID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for key, sess := range m.sessions {
		if key.OwnerID == ownerID {
			out = append(out, sess)
		}
	}
	return out
}

// All returns every session in the registry, in no particular order. Used
// by the reaper, which must sweep across owners.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Evict removes a session from the registry outright (the reaper's final
// step, once a session has been ended long enough to pass its retention
// window).
func (m *Manager) Evict(ownerID, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionKey{OwnerID: ownerID, ID: id})
}

// Count reports the number of sessions currently in the registry,
// regardless of active/ended state.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
