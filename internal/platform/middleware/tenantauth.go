package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"tidemark/internal/tenant/models"
	"tidemark/pkg/requestcontext"
)

// TenantResolver resolves an ingress credential to a tenant.
type TenantResolver interface {
	ResolveByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
}

// RequireTenant resolves the X-API-Key header to an active tenant and stores
// the tenant ID in context. Admission fails closed: no resolvable tenant, no
// data touched.
func RequireTenant(resolver TenantResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			tenant, err := resolver.ResolveByAPIKey(r.Context(), apiKey)
			if err != nil {
				logger.WarnContext(r.Context(), "tenant resolution failed",
					"request_id", requestcontext.RequestID(r.Context()),
				)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
				return
			}
			ctx := requestcontext.WithTenantID(r.Context(), tenant.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
