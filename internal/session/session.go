// Package session implements the Session Manager (spec.md §4.7): UUIDv4
// session IDs, TTL eviction, and per-session client capability storage.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// DefaultTTL is the idle duration after which a session is reaped on access
// (spec.md §4.7: "expired sessions are reaped on access").
const DefaultTTL = 30 * time.Minute

// MaxSessionIDLength bounds the length of a caller-supplied session id, a
// defense against unbounded header values reaching the session map.
const MaxSessionIDLength = 256

// Session is the runtime record described in spec.md §3.
type Session struct {
	ID                 string
	CreatedAt          time.Time
	LastTouchedAt      time.Time
	ClientCapabilities json.RawMessage
}

// Manager owns every live Session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// New builds a Manager with DefaultTTL. Pass ttl <= 0 to use the default.
func New(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{sessions: make(map[string]*Session), ttl: ttl}
}

// Create mints a fresh UUIDv4 session and stores it.
func (m *Manager) Create() *Session {
	s := &Session{ID: uuid.NewString(), CreatedAt: time.Now(), LastTouchedAt: time.Now()}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	logging.Debug("session", "created session %s", logging.TruncateSessionID(s.ID))
	return s
}

// Get returns the session for id, reaping it first if it has expired.
// Found is false both when id is unknown and when it has just expired.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" || len(id) > MaxSessionIDLength {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Since(s.LastTouchedAt) > m.ttl {
		delete(m.sessions, id)
		logging.Debug("session", "reaped expired session %s", logging.TruncateSessionID(id))
		return nil, false
	}
	s.LastTouchedAt = time.Now()
	return s, true
}

// GetOrCreate returns the session for id if live, or mints a fresh one
// (ignoring id) when absent or expired — this is the POST-without-header and
// expired-id-reuse behavior spec.md §4.7 and §8 scenario 6 describe.
func (m *Manager) GetOrCreate(id string) *Session {
	if id != "" {
		if s, ok := m.Get(id); ok {
			return s
		}
	}
	return m.Create()
}

// Touch updates lastTouchedAt and optionally records clientCapabilities from
// an initialize call.
func (m *Manager) Touch(id string, clientCapabilities json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.LastTouchedAt = time.Now()
	if len(clientCapabilities) > 0 {
		s.ClientCapabilities = clientCapabilities
	}
}

// Delete destroys a session, returning false if it did not exist.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Count reports the number of stored sessions; it does not reap, so expired
// sessions not yet reaped are included and the result is an upper bound on
// the live ones.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ErrSessionNotFound is a typed not-found signal for callers that need one
// distinct from the bool that Get and Delete return.
var ErrSessionNotFound = fmt.Errorf("session not found")
