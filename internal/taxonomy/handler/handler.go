// Package handler exposes channel taxonomy governance endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tidemark/internal/platform/middleware"
	"tidemark/internal/taxonomy/models"
	"tidemark/internal/transport/http/shared"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/requestcontext"
)

// Service defines the taxonomy operations the handler fronts.
type Service interface {
	CreateChannel(ctx context.Context, code, displayName, family string, paid bool) (*models.Entry, error)
	TransitionState(ctx context.Context, code string, toState models.State, reason string) (*models.Entry, error)
	GetChannel(ctx context.Context, code string) (*models.Entry, error)
	ListChannels(ctx context.Context) ([]*models.Entry, error)
	History(ctx context.Context, code string) ([]*models.StateTransition, error)
}

// Handler handles channel governance endpoints.
type Handler struct {
	logger    *slog.Logger
	taxonomy  Service
	validator *middleware.ActorValidator
}

// New creates a new taxonomy Handler.
func New(taxonomy Service, validator *middleware.ActorValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		taxonomy:  taxonomy,
		validator: validator,
	}
}

// Register registers the governance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(gr chi.Router) {
		gr.Use(middleware.RequireActor(h.validator, h.logger))
		gr.Post("/admin/channels", h.handleCreate)
		gr.Get("/admin/channels", h.handleList)
		gr.Get("/admin/channels/{code}", h.handleGet)
		gr.Post("/admin/channels/{code}/transition", h.handleTransition)
		gr.Get("/admin/channels/{code}/history", h.handleHistory)
	})
}

type createRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Family      string `json:"family"`
	Paid        bool   `json:"paid"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.taxonomy.CreateChannel(ctx, req.Code, req.DisplayName, req.Family, req.Paid)
	if err != nil {
		h.logger.WarnContext(ctx, "channel create rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, entry)
}

type transitionRequest struct {
	ToState string `json:"to_state"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	entry, err := h.taxonomy.TransitionState(ctx, code, models.State(req.ToState), req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "channel transition rejected",
			"request_id", requestcontext.RequestID(ctx),
			"channel_code", code,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.taxonomy.GetChannel(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.taxonomy.ListChannels(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"channels": entries})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.taxonomy.History(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"transitions": history})
}
