package tenant

import (
	"context"
	"strings"
	"sync"

	"tidemark/internal/tenant/models"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

// InMemory is a map-backed tenant store for tests and local development.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[id.TenantID]*models.Tenant
	byDigest map[string]id.TenantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[id.TenantID]*models.Tenant),
		byDigest: make(map[string]id.TenantID),
	}
}

// CreateIfNameAvailable inserts the tenant unless the name (case-insensitive)
// or API key digest is already taken.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if strings.EqualFold(existing.Name, tenant.Name) {
			return sentinel.ErrConflict
		}
	}
	if _, taken := s.byDigest[tenant.APIKeyDigest]; taken {
		return sentinel.ErrConflict
	}

	copied := *tenant
	s.byID[tenant.ID] = &copied
	s.byDigest[tenant.APIKeyDigest] = tenant.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenant, ok := s.byID[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *InMemory) FindByAPIKeyDigest(_ context.Context, digest string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID, ok := s.byDigest[digest]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.byID[tenantID]
	return &copied, nil
}
