// Package service implements audited channel assignment corrections: the
// only sanctioned way to change the channel of an already-admitted event or
// allocation. A correction is explicit and reasoned, never a silent
// overwrite, and the entity mutation and its audit row commit as one unit.
package service

import (
	"context"
	"errors"
	"log/slog"

	allocationmodels "tidemark/internal/allocation/models"
	"tidemark/internal/correction/models"
	eventmodels "tidemark/internal/ingest/models"
	taxonomymetrics "tidemark/internal/taxonomy/metrics"
	taxonomymodels "tidemark/internal/taxonomy/models"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// EventStore is the slice of the canonical event store corrections need.
// FindByID is tenant-unscoped so cross-tenant attempts surface as a
// permission rejection instead of a silent not-found.
type EventStore interface {
	FindByID(ctx context.Context, eventID id.EventID) (*eventmodels.CanonicalEvent, error)
	UpdateChannelIf(ctx context.Context, eventID id.EventID, fromChannel, toChannel string) error
}

// AllocationStore is the slice of the allocation store corrections need.
type AllocationStore interface {
	FindByID(ctx context.Context, allocationID id.AllocationID) (*allocationmodels.Allocation, error)
	UpdateChannelIf(ctx context.Context, allocationID id.AllocationID, fromChannel, toChannel string) error
}

// ChannelStore resolves correction targets against the taxonomy.
type ChannelStore interface {
	FindByCode(ctx context.Context, code string) (*taxonomymodels.Entry, error)
}

// CorrectionStore is the append-only audit persistence surface.
type CorrectionStore interface {
	Insert(ctx context.Context, c *models.Correction) error
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Correction, error)
}

// TxRunner is the transactional boundary for the entity mutation plus its
// audit row.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	events      EventStore
	allocations AllocationStore
	channels    ChannelStore
	audit       CorrectionStore
	txRunner    TxRunner
	logger      *slog.Logger
	metrics     *taxonomymetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *taxonomymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(events EventStore, allocations AllocationStore, channels ChannelStore, audit CorrectionStore, txRunner TxRunner, opts ...Option) *Service {
	s := &Service{
		events:      events,
		allocations: allocations,
		channels:    channels,
		audit:       audit,
		txRunner:    txRunner,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result reports what a correction did. Changed is false for a no-op, which
// succeeds without writing anything.
type Result struct {
	Changed     bool   `json:"changed"`
	FromChannel string `json:"from_channel"`
	ToChannel   string `json:"to_channel"`
}

// CorrectAssignment reassigns the channel of one event or allocation.
//
// Rejections, checked in order before any write:
//   - missing tenant context or cross-tenant target: permission denied
//   - empty reason or unknown entity type: bad request
//   - target channel unknown or not active: bad request
//   - entity does not exist: not found
func (s *Service) CorrectAssignment(ctx context.Context, tenantID id.TenantID, entityType models.EntityType, entityID string, toChannel, reason string) (*Result, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant context is required")
	}
	if !models.ValidEntityType(entityType) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown entity type %q", entityType)
	}
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a correction reason is required")
	}

	channel, err := s.channels.FindByCode(ctx, toChannel)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "channel %q is not in the taxonomy", toChannel)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "channel lookup failed")
	}
	if !channel.Assignable() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest,
			"channel %q is %s; corrections may only target active channels", toChannel, channel.State)
	}

	switch entityType {
	case models.EntityEvent:
		return s.correctEvent(ctx, tenantID, entityID, toChannel, reason)
	default:
		return s.correctAllocation(ctx, tenantID, entityID, toChannel, reason)
	}
}

func (s *Service) correctEvent(ctx context.Context, tenantID id.TenantID, entityID, toChannel, reason string) (*Result, error) {
	eventID, err := id.ParseEventID(entityID)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid event id %q", entityID)
	}

	ev, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "event %s not found", entityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "event lookup failed")
	}
	if ev.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "event belongs to a different tenant")
	}
	if ev.Channel == toChannel {
		return &Result{Changed: false, FromChannel: ev.Channel, ToChannel: toChannel}, nil
	}

	result, err := s.apply(ctx, tenantID, models.EntityEvent, entityID, ev.Channel, toChannel, reason,
		func(ctx context.Context) error {
			return s.events.UpdateChannelIf(ctx, eventID, ev.Channel, toChannel)
		})
	if errors.Is(err, sentinel.ErrConflict) {
		current, findErr := s.events.FindByID(ctx, eventID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeUnavailable, "event lookup failed")
		}
		return s.resolveConflict(current.Channel, toChannel, entityID, models.EntityEvent)
	}
	return result, err
}

func (s *Service) correctAllocation(ctx context.Context, tenantID id.TenantID, entityID, toChannel, reason string) (*Result, error) {
	allocationID, err := id.ParseAllocationID(entityID)
	if err != nil {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid allocation id %q", entityID)
	}

	a, err := s.allocations.FindByID(ctx, allocationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "allocation %s not found", entityID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "allocation lookup failed")
	}
	if a.TenantID != tenantID {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "allocation belongs to a different tenant")
	}
	if a.Channel == toChannel {
		return &Result{Changed: false, FromChannel: a.Channel, ToChannel: toChannel}, nil
	}

	result, err := s.apply(ctx, tenantID, models.EntityAllocation, entityID, a.Channel, toChannel, reason,
		func(ctx context.Context) error {
			return s.allocations.UpdateChannelIf(ctx, allocationID, a.Channel, toChannel)
		})
	if errors.Is(err, sentinel.ErrConflict) {
		current, findErr := s.allocations.FindByID(ctx, allocationID)
		if findErr != nil {
			return nil, dErrors.Wrap(findErr, dErrors.CodeUnavailable, "allocation lookup failed")
		}
		return s.resolveConflict(current.Channel, toChannel, entityID, models.EntityAllocation)
	}
	return result, err
}

// resolveConflict decides what a lost correction race means. When the
// concurrent winner applied the same target the correction is a no-op and
// succeeds without a second audit row; any other target surfaces as a
// conflict the caller can retry against fresh state.
func (s *Service) resolveConflict(currentChannel, toChannel, entityID string, entityType models.EntityType) (*Result, error) {
	if currentChannel == toChannel {
		return &Result{Changed: false, FromChannel: toChannel, ToChannel: toChannel}, nil
	}
	return nil, dErrors.Newf(dErrors.CodeConflict, "%s %s was concurrently corrected", entityType, entityID)
}

// apply performs the entity mutation and the audit insert as one
// transactional unit. The mutation is conditional on the channel the caller
// read; losing that compare-and-swap aborts the transaction with
// sentinel.ErrConflict before any audit row is written.
func (s *Service) apply(ctx context.Context, tenantID id.TenantID, entityType models.EntityType, entityID, fromChannel, toChannel, reason string, mutate func(ctx context.Context) error) (*Result, error) {
	now := requestcontext.Now(ctx)
	actor := actorFrom(ctx)

	err := s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if err := mutate(ctx); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", entityType, entityID)
			}
			if errors.Is(err, sentinel.ErrConflict) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "correction write failed")
		}
		return s.audit.Insert(ctx, &models.Correction{
			ID:          id.NewCorrectionID(),
			TenantID:    tenantID,
			EntityType:  entityType,
			EntityID:    entityID,
			FromChannel: fromChannel,
			ToChannel:   toChannel,
			Actor:       actor,
			Reason:      reason,
			OccurredAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "channel assignment corrected",
		"tenant_id", tenantID.String(),
		"entity_type", string(entityType),
		"entity_id", entityID,
		"from_channel", fromChannel,
		"to_channel", toChannel,
		"actor", actor,
	)
	if s.metrics != nil {
		s.metrics.Corrections.WithLabelValues(string(entityType)).Inc()
	}
	return &Result{Changed: true, FromChannel: fromChannel, ToChannel: toChannel}, nil
}

// ListCorrections returns a tenant's correction audit trail, oldest first.
func (s *Service) ListCorrections(ctx context.Context, tenantID id.TenantID) ([]*models.Correction, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant context is required")
	}
	out, err := s.audit.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "correction list failed")
	}
	return out, nil
}

func actorFrom(ctx context.Context) string {
	if actor := requestcontext.Actor(ctx); actor != "" {
		return actor
	}
	return taxonomymodels.SystemActor
}
