package calc

import (
	"sync"

	"github.com/google/uuid"
)

// Manager tracks one Session per open editing context, keyed by document id.
// Sessions are created lazily through the Factory and discarded when the
// document closes.
type Manager struct {
	// Factory builds a configured session for a document. Required.
	Factory func(id uuid.UUID) *Session

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// Get returns the session for the given document, creating it on first use.
func (m *Manager) Get(id uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[uuid.UUID]*Session)
	}
	if sess, ok := m.sessions[id]; ok {
		return sess
	}
	sess := m.Factory(id)
	m.sessions[id] = sess
	return sess
}

// Peek returns the session for the document without creating one.
func (m *Manager) Peek(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Close discards the document's session, cancelling pending recomputations.
func (m *Manager) Close(id uuid.UUID) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		sess.Close()
	}
}
