package deadletter

import (
	"context"
	"sort"
	"sync"

	"tidemark/internal/ingest/models"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

// InMemory is a map-backed dead-letter store for tests and local development.
// Like the PostgreSQL store it runs the PII guardrail on every insert: a
// quarantine record is not an exemption from the no-PII-at-rest guarantee.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.DeadEventID]*models.DeadEvent
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.DeadEventID]*models.DeadEvent)}
}

func (s *InMemory) Insert(_ context.Context, de *models.DeadEvent) error {
	if err := pii.Inspect(de.RawPayload); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[de.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *de
	s.events[de.ID] = &copied
	return nil
}

func (s *InMemory) FindByID(_ context.Context, deadEventID id.DeadEventID) (*models.DeadEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	de, ok := s.events[deadEventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *de
	return &copied, nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.DeadEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DeadEvent
	for _, de := range s.events {
		if de.TenantID == tenantID {
			copied := *de
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.Before(out[j].IngestedAt) })
	return out, nil
}

// UpdateRemediation persists an operator-driven status change. Monotonicity
// is validated by the remediation service; the store only guards existence.
func (s *InMemory) UpdateRemediation(_ context.Context, de *models.DeadEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[de.ID]; !ok {
		return sentinel.ErrNotFound
	}
	copied := *de
	s.events[de.ID] = &copied
	return nil
}
