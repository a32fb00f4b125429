package memory

import (
	"sync"

	"inclusion-quiz-service/internal/app"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *AttemptStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID()] = session
}

func (s *AttemptStore) Get(attemptID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[attemptID]
	return session, ok
}

func (s *AttemptStore) Delete(attemptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[attemptID]; !ok {
		return false
	}
	delete(s.sessions, attemptID)
	return true
}

// Len is the number of live attempts.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
