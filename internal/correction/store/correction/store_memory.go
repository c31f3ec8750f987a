// Package correction provides the append-only audit store for channel
// assignment corrections.
package correction

import (
	"context"
	"sort"
	"sync"

	"tidemark/internal/correction/models"
	id "tidemark/pkg/domain"
)

// InMemory is a slice-backed correction audit store.
type InMemory struct {
	mu   sync.RWMutex
	rows []*models.Correction
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Insert(_ context.Context, c *models.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *c
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Correction
	for _, c := range s.rows {
		if c.TenantID == tenantID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}
