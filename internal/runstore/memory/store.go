// Package memory provides an in-memory run store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mediatechlab/trendwatch/internal/trends"
)

// Store keeps run records in process memory. Contents are lost on restart;
// use the postgres store when history must survive.
type Store struct {
	mu   sync.RWMutex
	runs map[string]trends.Run
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{runs: make(map[string]trends.Run)}
}

// CreateRun stores a new run record.
func (s *Store) CreateRun(_ context.Context, run trends.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRun replaces the stored record for run.ID.
func (s *Store) UpdateRun(_ context.Context, run trends.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return trends.ErrRunNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *Store) GetRun(_ context.Context, id string) (trends.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return trends.Run{}, trends.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first by submission time. A non-positive
// limit returns everything.
func (s *Store) ListRuns(_ context.Context, limit int) ([]trends.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]trends.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].Submitted.After(out[j].Submitted)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
