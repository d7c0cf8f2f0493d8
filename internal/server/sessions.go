package server

import (
	"sync"
	"time"

	"github.com/soyeahso/chatkit-demo/internal/logging"
)

// Session tracks one AG-UI thread seen by the server.
type Session struct {
	ThreadID  string    `json:"threadId"`
	Runs      int       `json:"runs"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

// SessionManager records thread activity and evicts idle threads.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session // threadID → Session
	now      func() time.Time
	log      *logging.Logger
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(log *logging.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		now:      time.Now,
		log:      log,
	}
}

// Touch records a run on threadID, creating the session if needed.
func (m *SessionManager) Touch(threadID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[threadID]
	if !ok {
		s = &Session{ThreadID: threadID, CreatedAt: now}
		m.sessions[threadID] = s
		m.log.Debug().Str("thread", threadID).Msg("session created")
	}
	s.Runs++
	s.LastSeen = now
	return *s
}

// Get returns the session for threadID.
func (m *SessionManager) Get(threadID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[threadID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup removes sessions idle for longer than maxIdle and returns how many.
func (m *SessionManager) Cleanup(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.Info().Int("removed", removed).Int("remaining", len(m.sessions)).Msg("idle sessions cleaned up")
	}
	return removed
}
