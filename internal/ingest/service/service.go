// Package service implements the ingestion admission pipeline:
// normalize → PII check → validate → idempotent canonical insert, with
// dead-letter quarantine for anything that cannot be canonicalized.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ingestmetrics "tidemark/internal/ingest/metrics"
	"tidemark/internal/ingest/models"
	"tidemark/internal/ingest/normalize"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	dErrors "tidemark/pkg/domain-errors"
	"tidemark/pkg/platform/sentinel"
	"tidemark/pkg/requestcontext"
)

// EventStore is the canonical event persistence surface.
type EventStore interface {
	Insert(ctx context.Context, ev *models.CanonicalEvent) error
}

// DeadLetterStore is the quarantine persistence surface.
type DeadLetterStore interface {
	Insert(ctx context.Context, de *models.DeadEvent) error
}

// DedupeCache is the optional advisory duplicate hint (Redis-backed in
// production, nil in tests). Seen must only return true when a canonical
// row for the pair is known to exist.
type DedupeCache interface {
	Seen(ctx context.Context, tenantID id.TenantID, key string) bool
	MarkSeen(ctx context.Context, tenantID id.TenantID, key string)
}

// Notifier publishes admission results downstream (outbox → Kafka).
// Notification failures never fail admission.
type Notifier interface {
	AdmissionAccepted(ctx context.Context, ev *models.CanonicalEvent) error
	AdmissionQuarantined(ctx context.Context, de *models.DeadEvent) error
}

// Service is the admission pipeline. It is stateless: every attempt is
// independent and safe to retry in full, and no locks are held between the
// PII scan and the insert. The only mutual-exclusion primitive is the
// store's (tenant, key) uniqueness constraint.
type Service struct {
	events   EventStore
	dead     DeadLetterStore
	dedupe   DedupeCache
	notifier Notifier
	logger   *slog.Logger
	metrics  *ingestmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *ingestmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDedupeCache(cache DedupeCache) Option {
	return func(s *Service) { s.dedupe = cache }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func New(events EventStore, dead DeadLetterStore, opts ...Option) *Service {
	s := &Service{
		events: events,
		dead:   dead,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Admit runs one admission attempt for a raw delivery.
//
// Outcome contract:
//   - Accepted: a new canonical row exists.
//   - Duplicate: a canonical row for (tenant, key) already existed; this is
//     a success, never an error.
//   - Quarantined: the delivery was durably captured in the dead-letter
//     store with a closed-taxonomy error code.
//
// Only storage unavailability returns a non-nil error; the transport layer
// retries those. Validation and PII rejections are normal outcomes.
func (s *Service) Admit(ctx context.Context, tenantID id.TenantID, source models.Source, rawPayload []byte) (*models.AdmissionOutcome, error) {
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodePermissionDenied, "tenant context is required")
	}

	var doc any
	if err := json.Unmarshal(rawPayload, &doc); err != nil {
		// Not JSON at all: quarantine the body as an opaque string.
		return s.quarantine(ctx, tenantID, source, string(rawPayload),
			models.ErrorCodeMalformed, "payload is not valid JSON")
	}

	// PII wins over validation: fail toward the stricter, security-relevant
	// outcome, and never let the offending value travel further.
	if match, found := pii.FirstUnredacted(doc); found {
		redacted, _ := pii.Redact(doc)
		detail := fmt.Sprintf("pii key detected: %s (path %s)", match.Key, match.Path)
		return s.quarantine(ctx, tenantID, source, redacted, models.ErrorCodePII, detail)
	}

	normalized, err := normalize.Event(source, doc)
	if err != nil {
		return s.quarantine(ctx, tenantID, source, doc, models.ErrorCodeMalformed, err.Error())
	}

	if missing := missingFields(normalized); len(missing) > 0 {
		detail := "missing required fields: " + strings.Join(missing, ", ")
		return s.quarantine(ctx, tenantID, source, doc, models.ErrorCodeValidation, detail)
	}

	key := idempotencyKey(source, normalized)

	if s.dedupe != nil && s.dedupe.Seen(ctx, tenantID, key) {
		if s.metrics != nil {
			s.metrics.DedupeFastPath.Inc()
			s.metrics.EventsDuplicate.Inc()
		}
		return &models.AdmissionOutcome{Status: models.AdmissionDuplicate}, nil
	}

	ev := &models.CanonicalEvent{
		ID:             id.NewEventID(),
		TenantID:       tenantID,
		SessionID:      sessionID(normalized.SessionRef),
		IdempotencyKey: key,
		EventType:      normalized.EventType,
		Channel:        normalize.Channel(normalized.Hints),
		EventTimestamp: normalized.EventTimestamp,
		IngestedAt:     requestcontext.Now(ctx),
		RawPayload:     normalized.Payload,
	}

	err = s.events.Insert(ctx, ev)
	switch {
	case err == nil:
		if s.dedupe != nil {
			s.dedupe.MarkSeen(ctx, tenantID, key)
		}
		if s.metrics != nil {
			s.metrics.EventsAdmitted.Inc()
		}
		s.notifyAccepted(ctx, ev)
		return &models.AdmissionOutcome{Status: models.AdmissionAccepted, EventID: ev.ID}, nil

	case errors.Is(err, sentinel.ErrConflict):
		// The uniqueness constraint found an existing (tenant, key) row.
		// That is the exactly-once contract working, not a failure.
		if s.dedupe != nil {
			s.dedupe.MarkSeen(ctx, tenantID, key)
		}
		if s.metrics != nil {
			s.metrics.EventsDuplicate.Inc()
		}
		return &models.AdmissionOutcome{Status: models.AdmissionDuplicate}, nil

	default:
		var piiErr *pii.Error
		if errors.As(err, &piiErr) {
			// The guardrail caught something the pre-scan did not (second
			// layer firing means the first had a gap; still no PII at rest).
			redacted, _ := pii.Redact(ev.RawPayload)
			return s.quarantine(ctx, tenantID, source, redacted, models.ErrorCodePII, piiErr.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "canonical store insert failed")
	}
}

// quarantine durably captures a rejected delivery. It never silently drops:
// a failure to write the dead-letter row is a storage error surfaced to the
// transport layer for retry.
func (s *Service) quarantine(ctx context.Context, tenantID id.TenantID, source models.Source, payload any, code models.ErrorCode, detail string) (*models.AdmissionOutcome, error) {
	de := &models.DeadEvent{
		ID:                id.NewDeadEventID(),
		TenantID:          tenantID,
		IngestedAt:        requestcontext.Now(ctx),
		Source:            source,
		ErrorCode:         code,
		ErrorDetail:       detail,
		RawPayload:        payload,
		ClientIP:          requestcontext.ClientIP(ctx),
		UserAgent:         requestcontext.UserAgent(ctx),
		RemediationStatus: models.RemediationPending,
	}

	if err := s.dead.Insert(ctx, de); err != nil {
		var piiErr *pii.Error
		if errors.As(err, &piiErr) {
			// Guardrail tripped on the quarantine record itself; scrub and
			// retry once so the rejection is still captured.
			de.RawPayload, _ = pii.Redact(de.RawPayload)
			if err := s.dead.Insert(ctx, de); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quarantine insert failed")
			}
		} else {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "quarantine insert failed")
		}
	}

	s.logger.WarnContext(ctx, "event quarantined",
		"request_id", requestcontext.RequestID(ctx),
		"tenant_id", tenantID.String(),
		"source", string(source),
		"error_code", string(code),
	)
	if s.metrics != nil {
		s.metrics.EventsQuarantined.WithLabelValues(string(code)).Inc()
	}
	s.notifyQuarantined(ctx, de)

	return &models.AdmissionOutcome{Status: models.AdmissionQuarantined, ErrorCode: code, Detail: detail}, nil
}

func (s *Service) notifyAccepted(ctx context.Context, ev *models.CanonicalEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AdmissionAccepted(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "admission notification failed", "error", err.Error())
	}
}

func (s *Service) notifyQuarantined(ctx context.Context, de *models.DeadEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.AdmissionQuarantined(ctx, de); err != nil {
		s.logger.ErrorContext(ctx, "quarantine notification failed", "error", err.Error())
	}
}

func missingFields(n *normalize.Normalized) []string {
	var missing []string
	if strings.TrimSpace(n.EventType) == "" {
		missing = append(missing, "event_type")
	}
	if n.EventTimestamp.IsZero() {
		missing = append(missing, "event_timestamp")
	}
	if strings.TrimSpace(n.SessionRef) == "" {
		missing = append(missing, "session_reference")
	}
	return missing
}
