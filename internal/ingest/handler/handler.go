// Package handler exposes the event ingestion endpoint.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidemark/internal/ingest/models"
	"tidemark/internal/platform/middleware"
	"tidemark/internal/transport/http/shared"
	dErrors "tidemark/pkg/domain-errors"
	id "tidemark/pkg/domain"
	"tidemark/pkg/requestcontext"
)

// maxPayloadBytes caps an ingest delivery body. Vendor webhooks are small;
// anything past this is hostile or broken.
const maxPayloadBytes = 1 << 20

// Service defines the admission operation the handler fronts.
type Service interface {
	Admit(ctx context.Context, tenantID id.TenantID, source models.Source, rawPayload []byte) (*models.AdmissionOutcome, error)
}

// Handler handles event ingestion endpoints.
type Handler struct {
	logger  *slog.Logger
	ingest  Service
	tenants middleware.TenantResolver
}

// New creates a new ingest Handler.
func New(ingest Service, tenants middleware.TenantResolver, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		ingest:  ingest,
		tenants: tenants,
	}
}

// Register registers the ingest routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireTenant(h.tenants, h.logger))
		gr.Post("/ingest/{source}", h.handleIngest)
	})
}

// handleIngest admits one delivery. Every admission outcome is a
// success-class response: retries must never be punished with an error
// status, or at-least-once senders will retry forever.
//
//	accepted    -> 201 Created
//	duplicate   -> 200 OK
//	quarantined -> 202 Accepted (captured, not canonicalized)
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	source := models.Source(chi.URLParam(r, "source"))
	if !models.KnownSource(source) {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "unknown ingest source %q", source))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes+1))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read ingest body",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read request body"))
		return
	}
	if len(body) > maxPayloadBytes {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "payload exceeds size limit"))
		return
	}
	if len(body) == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "empty payload"))
		return
	}

	outcome, err := h.ingest.Admit(ctx, requestcontext.TenantID(ctx), source, body)
	if err != nil {
		h.logger.ErrorContext(ctx, "admission failed",
			"request_id", requestID,
			"source", string(source),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, statusFor(outcome.Status), outcome)
}

func statusFor(status models.AdmissionStatus) int {
	switch status {
	case models.AdmissionAccepted:
		return http.StatusCreated
	case models.AdmissionDuplicate:
		return http.StatusOK
	default:
		return http.StatusAccepted
	}
}
