package bot

import (
	"context"
	"sync"
	"time"
)

// Session tracks one user's active transfer. Each user may have at most one
// running operation; starting a new one cancels the previous.
type Session struct {
	UserID    int64
	StartedAt time.Time
	cancel    context.CancelFunc
}

// SessionManager owns the per-user session table. All per-user transfer
// state lives here instead of in package-level maps, so the pipeline stays
// testable without a live chat session.
type SessionManager struct {
	mu     sync.Mutex
	active map[int64]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{active: make(map[int64]*Session)}
}

// Begin registers a new session, cancelling the user's previous one if it is
// still running.
func (s *SessionManager) Begin(userID int64, cancel context.CancelFunc) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.active[userID]; ok {
		prev.cancel()
	}
	session := &Session{
		UserID:    userID,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	s.active[userID] = session
	return session
}

// End removes the session if it is still the registered one. A session that
// was already replaced by a newer transfer is left alone.
func (s *SessionManager) End(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.active[session.UserID]; ok && current == session {
		delete(s.active, session.UserID)
	}
}

// Cancel aborts the user's active transfer. Returns false when none is
// running.
func (s *SessionManager) Cancel(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.active[userID]
	if !ok {
		return false
	}
	session.cancel()
	delete(s.active, userID)
	return true
}

// ActiveCount reports how many transfers are currently running.
func (s *SessionManager) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
