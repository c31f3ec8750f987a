package service

import (
	"context"
	"errors"
	"log/slog"

	"tidemark/internal/ingest/models"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// RemediationStore is the dead-letter surface the triage workflow uses.
type RemediationStore interface {
	FindByID(ctx context.Context, deadEventID id.DeadEventID) (*models.DeadEvent, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.DeadEvent, error)
	UpdateRemediation(ctx context.Context, de *models.DeadEvent) error
}

// Remediation is the operator-driven triage workflow over quarantined
// events. It lives off the ingestion hot path; status moves monotonically
// toward resolved or abandoned.
type Remediation struct {
	store  RemediationStore
	logger *slog.Logger
}

func NewRemediation(store RemediationStore, logger *slog.Logger) *Remediation {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Remediation{store: store, logger: logger}
}

// ListQuarantined returns a tenant's dead-letter records, oldest first.
func (r *Remediation) ListQuarantined(ctx context.Context, tenantID id.TenantID) ([]*models.DeadEvent, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant context is required")
	}
	out, err := r.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quarantine list failed")
	}
	return out, nil
}

// GetQuarantined returns one dead-letter record, tenant checked.
func (r *Remediation) GetQuarantined(ctx context.Context, tenantID id.TenantID, deadEventID id.DeadEventID) (*models.DeadEvent, error) {
	de, err := r.find(ctx, tenantID, deadEventID)
	if err != nil {
		return nil, err
	}
	return de, nil
}

// UpdateStatus moves a quarantined record through the remediation workflow.
// Transitions must be monotone toward a terminal status; reaching a
// terminal status stamps the resolution time.
func (r *Remediation) UpdateStatus(ctx context.Context, tenantID id.TenantID, deadEventID id.DeadEventID, to models.RemediationStatus, notes string) (*models.DeadEvent, error) {
	switch to {
	case models.RemediationPending, models.RemediationInProgress, models.RemediationResolved, models.RemediationAbandoned:
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown remediation status %q", to)
	}

	de, err := r.find(ctx, tenantID, deadEventID)
	if err != nil {
		return nil, err
	}

	if !de.RemediationStatus.CanTransitionTo(to) {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"remediation cannot move from %s to %s", de.RemediationStatus, to)
	}

	de.RemediationStatus = to
	if notes != "" {
		de.RemediationNotes = notes
	}
	if to.Terminal() {
		now := requestcontext.Now(ctx)
		de.ResolvedAt = &now
	}

	if err := r.store.UpdateRemediation(ctx, de); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "quarantined event %s not found", deadEventID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "remediation update failed")
	}

	r.logger.InfoContext(ctx, "remediation status updated",
		"dead_event_id", deadEventID.String(),
		"tenant_id", tenantID.String(),
		"status", string(to),
	)
	return de, nil
}

func (r *Remediation) find(ctx context.Context, tenantID id.TenantID, deadEventID id.DeadEventID) (*models.DeadEvent, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant context is required")
	}
	de, err := r.store.FindByID(ctx, deadEventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "quarantined event %s not found", deadEventID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quarantine lookup failed")
	}
	if de.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "quarantined event belongs to a different tenant")
	}
	return de, nil
}
