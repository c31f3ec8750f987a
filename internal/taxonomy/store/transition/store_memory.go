// Package transition provides the append-only audit store for channel
// lifecycle changes. Rows are only ever inserted; there is no update or
// delete surface.
package transition

import (
	"context"
	"sort"
	"sync"

	"tidemark/internal/taxonomy/models"
)

// InMemory is a slice-backed transition audit store.
type InMemory struct {
	mu   sync.RWMutex
	rows []*models.StateTransition
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Insert(_ context.Context, tr *models.StateTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *tr
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *InMemory) ListByChannel(_ context.Context, code string) ([]*models.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.StateTransition
	for _, tr := range s.rows {
		if tr.ChannelCode == code {
			copied := *tr
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
