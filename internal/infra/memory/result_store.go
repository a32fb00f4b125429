package memory

import (
	"context"
	"sync"

	"inclusion-quiz-service/internal/domain"
)

// ResultStore keeps graded results in memory. Saving the same attempt twice
// keeps the first record, matching the Postgres store.
type ResultStore struct {
	mu      sync.RWMutex
	records map[string]domain.ResultRecord
}

func NewResultStore() *ResultStore {
	return &ResultStore{records: make(map[string]domain.ResultRecord)}
}

func (s *ResultStore) SaveResult(_ context.Context, record domain.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.AttemptID]; ok {
		return nil
	}
	record.Result = record.Result.Clone()
	s.records[record.AttemptID] = record
	return nil
}

func (s *ResultStore) Get(attemptID string) (domain.ResultRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[attemptID]
	if !ok {
		return domain.ResultRecord{}, false
	}
	record.Result = record.Result.Clone()
	return record, true
}
