package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// RunStore keeps run summaries for the status API.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]catalog.RunSummary
	order []string
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]catalog.RunSummary)}
}

// SaveRun inserts or replaces a summary by run id.
func (s *RunStore) SaveRun(_ context.Context, summary catalog.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[summary.RunID]; !exists {
		s.order = append(s.order, summary.RunID)
	}
	s.runs[summary.RunID] = summary
	return nil
}

// GetRun fetches a summary by id.
func (s *RunStore) GetRun(_ context.Context, runID string) (catalog.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.runs[runID]
	if !ok {
		return catalog.RunSummary{}, catalog.ErrRunNotFound
	}
	return summary, nil
}

// ListRuns returns up to limit summaries, newest first. limit <= 0 means all.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]catalog.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]catalog.RunSummary, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out, nil
}
