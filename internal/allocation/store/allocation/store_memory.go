// Package allocation provides persistence for attribution allocations.
package allocation

import (
	"context"
	"sort"
	"sync"

	"tidemark/internal/allocation/models"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

// InMemory is a map-backed allocation store.
type InMemory struct {
	mu   sync.RWMutex
	rows map[id.AllocationID]*models.Allocation
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[id.AllocationID]*models.Allocation)}
}

func (s *InMemory) Insert(_ context.Context, a *models.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[a.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *a
	s.rows[a.ID] = &copied
	return nil
}

// FindByID is tenant-unscoped so the correction service can reject
// cross-tenant attempts explicitly.
func (s *InMemory) FindByID(_ context.Context, allocationID id.AllocationID) (*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[allocationID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *InMemory) ListByEvent(_ context.Context, eventID id.EventID) ([]*models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Allocation
	for _, a := range s.rows {
		if a.EventID == eventID {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateChannelIf is the correction write path, the only sanctioned
// mutation. sentinel.ErrConflict means the stored channel no longer equals
// fromChannel and a concurrent correction won.
func (s *InMemory) UpdateChannelIf(_ context.Context, allocationID id.AllocationID, fromChannel, toChannel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.rows[allocationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if a.Channel != fromChannel {
		return sentinel.ErrConflict
	}
	a.Channel = toChannel
	return nil
}
