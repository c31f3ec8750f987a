// Package service implements channel taxonomy governance: definition
// creation and the lifecycle state machine, with an audit row written
// atomically alongside every real state change.
//
// This service is the only sanctioned write path to the taxonomy tables.
// The audit write lives inside the same transactional unit as the state
// write, so no call site can perform one without the other.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	taxonomymetrics "tidemark/internal/taxonomy/metrics"
	"tidemark/internal/taxonomy/models"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// ChannelStore is the channel definition persistence surface.
type ChannelStore interface {
	Create(ctx context.Context, entry *models.Entry) error
	FindByCode(ctx context.Context, code string) (*models.Entry, error)
	List(ctx context.Context) ([]*models.Entry, error)
	UpdateStateIf(ctx context.Context, code string, fromState, toState models.State, now time.Time) error
}

// TransitionStore is the append-only audit persistence surface.
type TransitionStore interface {
	Insert(ctx context.Context, tr *models.StateTransition) error
	ListByChannel(ctx context.Context, code string) ([]*models.StateTransition, error)
}

// Notifier publishes committed state changes downstream. Notification
// failures never fail the transition.
type Notifier interface {
	ChannelTransition(ctx context.Context, tr *models.StateTransition) error
}

type Service struct {
	channels ChannelStore
	audit    TransitionStore
	txRunner TxRunner
	notifier Notifier
	logger   *slog.Logger
	metrics  *taxonomymetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *taxonomymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(channels ChannelStore, audit TransitionStore, txRunner TxRunner, opts ...Option) *Service {
	s := &Service{
		channels: channels,
		audit:    audit,
		txRunner: txRunner,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateChannel registers a new channel definition in draft state. The
// creation itself is audited as a transition with a nil from-state.
func (s *Service) CreateChannel(ctx context.Context, code, displayName, family string, paid bool) (*models.Entry, error) {
	now := requestcontext.Now(ctx)
	entry, err := models.NewEntry(code, displayName, family, paid, now)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.channels.Create(ctx, entry); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Newf(dErrors.CodeConflict, "channel %q already exists", code)
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "channel create failed")
		}
		return s.audit.Insert(ctx, &models.StateTransition{
			ID:          id.NewTransitionID(),
			ChannelCode: entry.Code,
			FromState:   nil,
			ToState:     entry.State,
			Actor:       actorFrom(ctx),
			OccurredAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "channel created",
		"channel_code", entry.Code,
		"actor", actorFrom(ctx),
	)
	return entry, nil
}

// TransitionState moves a channel to toState under the closed transition
// table.
//
// Outcomes:
//   - unknown code: not-found error
//   - toState outside the four valid states: bad-request error
//   - (from, to) outside the allowed table: invariant-violation error,
//     zero audit rows
//   - from == to: success with no state write and no audit row
//   - allowed transition: state write plus exactly one audit row, atomic
func (s *Service) TransitionState(ctx context.Context, code string, toState models.State, reason string) (*models.Entry, error) {
	if !models.ValidState(toState) {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "invalid state %q", toState)
	}

	entry, err := s.channels.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "channel %q not found", code)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "channel lookup failed")
	}

	fromState := entry.State
	if fromState == toState {
		// Explicit no-op: success, zero audit rows.
		return entry, nil
	}
	if !fromState.CanTransitionTo(toState) {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"transition %s to %s is not allowed", fromState, toState)
	}

	now := requestcontext.Now(ctx)
	actor := actorFrom(ctx)
	transition := &models.StateTransition{
		ID:          id.NewTransitionID(),
		ChannelCode: code,
		FromState:   &fromState,
		ToState:     toState,
		Actor:       actor,
		Reason:      reason,
		OccurredAt:  now,
	}

	err = s.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		// Conditional on fromState: a concurrent transition that got there
		// first makes this a conflict, never a second audit row.
		if err := s.channels.UpdateStateIf(ctx, code, fromState, toState, now); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrConflict):
				return dErrors.Newf(dErrors.CodeConflict, "channel %q was modified concurrently", code)
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.Newf(dErrors.CodeNotFound, "channel %q not found", code)
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "channel state update failed")
		}
		return s.audit.Insert(ctx, transition)
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.ChannelTransition(ctx, transition); err != nil {
			s.logger.WarnContext(ctx, "transition notification failed",
				"channel_code", code,
				"error", err.Error(),
			)
		}
	}

	entry.State = toState
	entry.UpdatedAt = now

	s.logger.InfoContext(ctx, "channel state changed",
		"channel_code", code,
		"from_state", string(fromState),
		"to_state", string(toState),
		"actor", actor,
	)
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(toState)).Inc()
	}
	return entry, nil
}

// GetChannel returns one channel definition by code.
func (s *Service) GetChannel(ctx context.Context, code string) (*models.Entry, error) {
	entry, err := s.channels.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "channel %q not found", code)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "channel lookup failed")
	}
	return entry, nil
}

// ListChannels returns all channel definitions ordered by code.
func (s *Service) ListChannels(ctx context.Context) ([]*models.Entry, error) {
	entries, err := s.channels.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "channel list failed")
	}
	return entries, nil
}

// History returns the transition audit trail for one channel, oldest first.
func (s *Service) History(ctx context.Context, code string) ([]*models.StateTransition, error) {
	if _, err := s.GetChannel(ctx, code); err != nil {
		return nil, err
	}
	history, err := s.audit.ListByChannel(ctx, code)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "transition history failed")
	}
	return history, nil
}

// actorFrom resolves the audit actor. Paths without actor context are
// attributed to the system sentinel, never left blank.
func actorFrom(ctx context.Context) string {
	if actor := requestcontext.Actor(ctx); actor != "" {
		return actor
	}
	return models.SystemActor
}
