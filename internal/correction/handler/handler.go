// Package handler exposes channel assignment correction endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidemark/internal/correction/models"
	correctionservice "tidemark/internal/correction/service"
	"tidemark/internal/platform/middleware"
	"tidemark/internal/transport/http/shared"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/requestcontext"
)

// Service defines the correction operations the handler fronts.
type Service interface {
	CorrectAssignment(ctx context.Context, tenantID id.TenantID, entityType models.EntityType, entityID string, toChannel, reason string) (*correctionservice.Result, error)
	ListCorrections(ctx context.Context, tenantID id.TenantID) ([]*models.Correction, error)
}

// Handler handles correction endpoints. Requests carry both the tenant
// credential and an operator bearer token: corrections are tenant-scoped
// mutations that must be attributable to a person.
type Handler struct {
	logger     *slog.Logger
	correction Service
	tenants    middleware.TenantResolver
	validator  *middleware.ActorValidator
}

// New creates a new correction Handler.
func New(correction Service, tenants middleware.TenantResolver, validator *middleware.ActorValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		correction: correction,
		tenants:    tenants,
		validator:  validator,
	}
}

// Register registers the correction routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireTenant(h.tenants, h.logger))
		gr.Use(middleware.RequireActor(h.validator, h.logger))
		gr.Post("/admin/corrections", h.handleCorrect)
		gr.Get("/admin/corrections", h.handleList)
	})
}

type correctRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	ToChannel  string `json:"to_channel"`
	Reason     string `json:"reason"`
}

func (h *Handler) handleCorrect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req correctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.correction.CorrectAssignment(ctx, requestcontext.TenantID(ctx),
		models.EntityType(req.EntityType), req.EntityID, req.ToChannel, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "correction rejected",
			"request_id", requestcontext.RequestID(ctx),
			"entity_type", req.EntityType,
			"entity_id", req.EntityID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	corrections, err := h.correction.ListCorrections(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"corrections": corrections})
}
