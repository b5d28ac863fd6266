package store

import (
	"context"
	"sync"

	"github.com/dunamismax/webopt/internal/domain"
)

type MemoryResultStore struct {
	mu   sync.RWMutex
	runs map[string][]domain.FileResult
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{
		runs: make(map[string][]domain.FileResult),
	}
}

func (s *MemoryResultStore) SaveResult(_ context.Context, runID string, result domain.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[runID] = append(s.runs[runID], result)
	return nil
}

func (s *MemoryResultStore) ListResults(_ context.Context, runID string) ([]domain.FileResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := s.runs[runID]
	out := make([]domain.FileResult, len(results))
	copy(out, results)
	return out, nil
}
