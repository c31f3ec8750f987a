package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a map-backed outbox for tests and local development.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[uuid.UUID]*Entry)}
}

func (s *InMemoryStore) Insert(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *e
	s.rows[e.ID] = &copied
	return nil
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.rows {
		if e.PublishedAt == nil {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entryID := range ids {
		if e, ok := s.rows[entryID]; ok {
			published := at
			e.PublishedAt = &published
		}
	}
	return nil
}
