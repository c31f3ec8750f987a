package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidemark/internal/ingest/models"
	"tidemark/internal/platform/middleware"
	"tidemark/internal/transport/http/shared"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/requestcontext"
)

// RemediationService defines the dead-letter triage operations.
type RemediationService interface {
	ListQuarantined(ctx context.Context, tenantID id.TenantID) ([]*models.DeadEvent, error)
	GetQuarantined(ctx context.Context, tenantID id.TenantID, deadEventID id.DeadEventID) (*models.DeadEvent, error)
	UpdateStatus(ctx context.Context, tenantID id.TenantID, deadEventID id.DeadEventID, to models.RemediationStatus, notes string) (*models.DeadEvent, error)
}

// RemediationHandler handles dead-letter triage endpoints.
type RemediationHandler struct {
	logger      *slog.Logger
	remediation RemediationService
	tenants     middleware.TenantResolver
	validator   *middleware.ActorValidator
}

// NewRemediation creates a new dead-letter triage Handler.
func NewRemediation(remediation RemediationService, tenants middleware.TenantResolver, validator *middleware.ActorValidator, logger *slog.Logger) *RemediationHandler {
	return &RemediationHandler{
		logger:      logger,
		remediation: remediation,
		tenants:     tenants,
		validator:   validator,
	}
}

// Register registers the triage routes with the chi router.
func (h *RemediationHandler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireTenant(h.tenants, h.logger))
		gr.Use(middleware.RequireActor(h.validator, h.logger))
		gr.Get("/admin/dead-events", h.handleList)
		gr.Get("/admin/dead-events/{id}", h.handleGet)
		gr.Post("/admin/dead-events/{id}/remediation", h.handleUpdateStatus)
	})
}

func (h *RemediationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.remediation.ListQuarantined(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"dead_events": events})
}

func (h *RemediationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deadEventID, err := id.ParseDeadEventID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid dead event id"))
		return
	}
	de, err := h.remediation.GetQuarantined(ctx, requestcontext.TenantID(ctx), deadEventID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, de)
}

type remediationRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *RemediationHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deadEventID, err := id.ParseDeadEventID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid dead event id"))
		return
	}

	var req remediationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	de, err := h.remediation.UpdateStatus(ctx, requestcontext.TenantID(ctx), deadEventID,
		models.RemediationStatus(req.Status), req.Notes)
	if err != nil {
		h.logger.WarnContext(ctx, "remediation update rejected",
			"request_id", requestcontext.RequestID(ctx),
			"dead_event_id", deadEventID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, de)
}
