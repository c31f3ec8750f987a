// Package taxonomy provides persistence for channel definitions.
package taxonomy

import (
	"context"
	"sort"
	"sync"
	"time"

	"tidemark/internal/taxonomy/models"
	"tidemark/pkg/platform/sentinel"
)

// InMemory is a map-backed channel definition store. State updates are
// compare-and-swap on the current state, matching the PostgreSQL store's
// conditional UPDATE so concurrent transitions serialize identically.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string]*models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]*models.Entry)}
}

func (s *InMemory) Create(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.Code]; exists {
		return sentinel.ErrConflict
	}
	copied := *entry
	s.entries[entry.Code] = &copied
	return nil
}

func (s *InMemory) FindByCode(_ context.Context, code string) (*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		copied := *entry
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UpdateStateIf moves the channel from exactly fromState to toState.
// Returns sentinel.ErrConflict when the stored state no longer matches
// fromState, which means another transition won the race.
func (s *InMemory) UpdateStateIf(_ context.Context, code string, fromState, toState models.State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[code]
	if !ok {
		return sentinel.ErrNotFound
	}
	if entry.State != fromState {
		return sentinel.ErrConflict
	}
	entry.State = toState
	entry.UpdatedAt = now
	return nil
}
