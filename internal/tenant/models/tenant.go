package models

import (
	"strings"
	"time"

	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
)

// TenantStatus is the lifecycle state of a tenant account.
type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

// Tenant is the aggregate root for a tenant organization.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - APIKeyDigest is non-empty (ingress resolution depends on it)
//   - Status transitions: active ↔ inactive only
//
// Tenant deactivation is an immediate ingestion boundary: admission fails
// closed for inactive tenants even though their rows remain queryable. This
// is enforced at resolution time (ResolveByAPIKey) rather than by cascading
// updates to the tenant's events.
type Tenant struct {
	ID           id.TenantID  `json:"id"`
	Name         string       `json:"name"`
	APIKeyDigest string       `json:"-"`
	Status       TenantStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewTenant validates and constructs a tenant.
func NewTenant(tenantID id.TenantID, name, apiKeyDigest string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant name is required")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant name must be at most 128 characters")
	}
	if apiKeyDigest == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant api key digest is required")
	}
	return &Tenant{
		ID:           tenantID,
		Name:         name,
		APIKeyDigest: apiKeyDigest,
		Status:       TenantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}
