package service

import (
	"context"
	"errors"
	"log/slog"

	"tidemark/internal/tenant/models"
	"tidemark/internal/tenant/secrets"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// TenantStore is the persistence surface the resolver needs.
type TenantStore interface {
	CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	FindByAPIKeyDigest(ctx context.Context, digest string) (*models.Tenant, error)
}

// Service resolves tenant context for ingress and manages tenant onboarding.
type Service struct {
	tenants TenantStore
	logger  *slog.Logger
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(tenants TenantStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTenant onboards a tenant and returns it with the plaintext API key.
// The key is shown exactly once; only its digest is stored.
func (s *Service) CreateTenant(ctx context.Context, name string) (*models.Tenant, string, error) {
	apiKey, err := secrets.Generate()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}

	tenant, err := models.NewTenant(id.NewTenantID(), name, secrets.Digest(apiKey), requestcontext.Now(ctx))
	if err != nil {
		return nil, "", err
	}

	if err := s.tenants.CreateIfNameAvailable(ctx, tenant); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, "", dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}
	return tenant, apiKey, nil
}

// ResolveByAPIKey resolves an ingress credential to an active tenant.
// Admission fails closed on any miss: unknown key and deactivated tenant are
// indistinguishable to the caller.
func (s *Service) ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	if apiKey == "" {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "missing api key")
	}

	tenant, err := s.tenants.FindByAPIKeyDigest(ctx, secrets.Digest(apiKey))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodePermissionDenied, "unknown api key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve tenant")
	}
	if !tenant.IsActive() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant is inactive")
	}
	return tenant, nil
}
