package store

import (
	"context"
	"sync"
	"time"

	"faultline/internal/model"
)

// MemoryStore keeps the experiment log in process memory. It is the default
// backend for tests and for exploratory campaigns whose results do not need
// to survive the process.
type MemoryStore struct {
	mu   sync.RWMutex
	recs []model.Experiment
	next int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{next: 1}
}

func (s *MemoryStore) Init(ctx context.Context) error { return nil }

func (s *MemoryStore) Append(ctx context.Context, exp model.Experiment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp.ID = s.next
	s.next++
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = time.Now()
	}
	exp.Params = append([]float64(nil), exp.Params...)
	exp.Response = append([]byte(nil), exp.Response...)
	s.recs = append(s.recs, exp)
	return exp.ID, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]model.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Experiment, len(s.recs))
	copy(out, s.recs)
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.recs)), nil
}

func (s *MemoryStore) LastID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.recs) == 0 {
		return 0, nil
	}
	return s.recs[len(s.recs)-1].ID, nil
}
