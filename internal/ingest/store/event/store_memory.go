package event

import (
	"context"
	"sync"

	"tidemark/internal/ingest/models"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

type tenantKey struct {
	tenant id.TenantID
	key    string
}

// InMemory is a map-backed canonical event store. It enforces the same
// contract as the PostgreSQL store: (tenant, idempotency key) uniqueness is
// atomic under concurrency and the PII guardrail runs on every write.
type InMemory struct {
	mu     sync.RWMutex
	byKey  map[tenantKey]*models.CanonicalEvent
	byID   map[id.EventID]*models.CanonicalEvent
}

func NewInMemory() *InMemory {
	return &InMemory{
		byKey: make(map[tenantKey]*models.CanonicalEvent),
		byID:  make(map[id.EventID]*models.CanonicalEvent),
	}
}

// Insert admits the event unless the (tenant, key) pair already exists.
// Returns sentinel.ErrConflict on a duplicate; the caller interprets that as
// a success outcome. The guardrail check runs before any state changes.
func (s *InMemory) Insert(_ context.Context, ev *models.CanonicalEvent) error {
	if err := pii.Inspect(ev.RawPayload); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantKey{tenant: ev.TenantID, key: ev.IdempotencyKey}
	if _, exists := s.byKey[k]; exists {
		return sentinel.ErrConflict
	}

	copied := *ev
	s.byKey[k] = &copied
	s.byID[ev.ID] = &copied
	return nil
}

func (s *InMemory) FindByTenantAndKey(_ context.Context, tenantID id.TenantID, key string) (*models.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.byKey[tenantKey{tenant: tenantID, key: key}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *ev
	return &copied, nil
}

// FindByID is tenant-unscoped on purpose: the correction service needs the
// owning tenant to reject cross-tenant attempts explicitly rather than
// silently scoping them away.
func (s *InMemory) FindByID(_ context.Context, eventID id.EventID) (*models.CanonicalEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.byID[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *ev
	return &copied, nil
}

// UpdateChannelIf is the correction write path. It is deliberately the only
// mutation the store exposes; all other fields are immutable after insert.
// The write lands only while the stored channel still equals fromChannel;
// sentinel.ErrConflict means a concurrent correction got there first.
func (s *InMemory) UpdateChannelIf(_ context.Context, eventID id.EventID, fromChannel, toChannel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Channel != fromChannel {
		return sentinel.ErrConflict
	}
	ev.Channel = toChannel
	return nil
}

func (s *InMemory) CountByTenant(_ context.Context, tenantID id.TenantID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for k := range s.byKey {
		if k.tenant == tenantID {
			n++
		}
	}
	return n, nil
}
