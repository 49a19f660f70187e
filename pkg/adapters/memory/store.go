package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/quillflow/quillflow/pkg/domain"
)

// Store implements ports.StatePersistence in memory.
// Safe for concurrent use. Intended for tests and single-process runs.
type Store struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionState
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]*domain.ExecutionState)}
}

// Save persists a deep copy of the state.
func (s *Store) Save(ctx context.Context, state *domain.ExecutionState) error {
	if state.ExecutionID == "" {
		return fmt.Errorf("execution id is empty")
	}
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state.ExecutionID] = copied
	return nil
}

// Load retrieves a copy of the state, so the caller cannot mutate the
// stored one through the pointer.
func (s *Store) Load(ctx context.Context, executionID string) (*domain.ExecutionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[executionID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", executionID, domain.ErrExecutionNotFound)
	}
	return state.Clone(), nil
}

// List returns all stored execution IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
