// Package handler exposes tenant onboarding endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidemark/internal/platform/middleware"
	"tidemark/internal/tenant/models"
	"tidemark/internal/transport/http/shared"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/requestcontext"
)

// Service defines the tenant operations the handler fronts.
type Service interface {
	CreateTenant(ctx context.Context, name string) (*models.Tenant, string, error)
}

// Handler handles tenant onboarding endpoints.
type Handler struct {
	logger    *slog.Logger
	tenants   Service
	validator *middleware.ActorValidator
}

// New creates a new tenant Handler.
func New(tenants Service, validator *middleware.ActorValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		tenants:   tenants,
		validator: validator,
	}
}

// Register registers the tenant routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireActor(h.validator, h.logger))
		gr.Post("/admin/tenants", h.handleCreate)
	})
}

type createRequest struct {
	Name string `json:"name"`
}

type createResponse struct {
	Tenant *models.Tenant `json:"tenant"`
	// APIKey is returned exactly once at onboarding; only a digest is stored.
	APIKey string `json:"api_key"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tenant, apiKey, err := h.tenants.CreateTenant(ctx, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "tenant create rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, createResponse{Tenant: tenant, APIKey: apiKey})
}
