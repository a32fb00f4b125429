package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"inclusion-quiz-service/internal/app"
)

// AttemptStore is a Redis-aware implementation of app.AttemptRepository.
//   - Sessions stay in a local map; their timers and subscribers are in-process.
//   - Redis holds a liveness marker per attempt (learner id, TTL) so other
//     instances and operators can see which attempts are open. The marker
//     outlives the attempt's time limit by ttl, which leaves room for grading.
type AttemptStore struct {
	client   *redis.Client
	ttl      time.Duration
	log      zerolog.Logger
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewAttemptStore(client *redis.Client, ttl time.Duration, log zerolog.Logger) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		log:      log.With().Str("component", "redis-attempts").Logger(),
		sessions: make(map[string]*app.Session),
	}
}

func (s *AttemptStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ttl := session.TimeLimit() + s.ttl
	if err := s.client.Set(context.Background(), MarkerKey(session.ID()), session.LearnerID(), ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt", session.ID()).Msg("set attempt marker")
	}
}

func (s *AttemptStore) Get(attemptID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[attemptID]
	return session, ok
}

func (s *AttemptStore) Delete(attemptID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[attemptID]
	delete(s.sessions, attemptID)
	s.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.client.Del(context.Background(), MarkerKey(attemptID)).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt", attemptID).Msg("clear attempt marker")
	}
	return true
}

// MarkerKey is the Redis key marking a live attempt.
func MarkerKey(attemptID string) string {
	return "quiz:attempt:" + attemptID
}
