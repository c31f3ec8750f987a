// Package models defines the canonical and dead-letter event shapes used by
// the ingestion admission pipeline.
package models

import (
	"time"

	id "tidemark/pkg/domain"
)

// Source names the ingress path a delivery arrived through. The set is
// closed; an unknown source is quarantined as malformed.
type Source string

const (
	SourceShopify     Source = "shopify"
	SourceStripe      Source = "stripe"
	SourceWooCommerce Source = "woocommerce"
	SourceWebhook     Source = "webhook"
)

// KnownSource reports whether s is a recognized ingress source.
func KnownSource(s Source) bool {
	switch s {
	case SourceShopify, SourceStripe, SourceWooCommerce, SourceWebhook:
		return true
	}
	return false
}

// CanonicalEvent is one admitted external event.
//
// Invariants:
//   - unique on (TenantID, IdempotencyKey), enforced by the store
//   - never mutated after insert; the only sanctioned change is a channel
//     correction recorded through the correction service
//   - RawPayload is PII-scrubbed by construction (the store guardrail
//     refuses any write still carrying a live PII value)
type CanonicalEvent struct {
	ID             id.EventID   `json:"id"`
	TenantID       id.TenantID  `json:"tenant_id"`
	SessionID      id.SessionID `json:"session_id"`
	IdempotencyKey string       `json:"idempotency_key"`
	EventType      string       `json:"event_type"`
	// Channel is a taxonomy code; never empty ("unknown" is the fallback).
	Channel        string    `json:"channel"`
	EventTimestamp time.Time `json:"event_timestamp"`
	IngestedAt     time.Time `json:"ingested_at"`
	RawPayload     any       `json:"raw_payload"`
}

// ErrorCode is the closed taxonomy of quarantine reasons.
type ErrorCode string

const (
	ErrorCodeValidation ErrorCode = "validation_error"
	ErrorCodePII        ErrorCode = "pii_detected"
	ErrorCodeMalformed  ErrorCode = "malformed_payload"
)

// RemediationStatus tracks operator-driven triage of a dead-letter record.
type RemediationStatus string

const (
	RemediationPending    RemediationStatus = "pending"
	RemediationInProgress RemediationStatus = "in_progress"
	RemediationResolved   RemediationStatus = "resolved"
	RemediationAbandoned  RemediationStatus = "abandoned"
)

// Terminal reports whether no further remediation transition is allowed.
func (s RemediationStatus) Terminal() bool {
	return s == RemediationResolved || s == RemediationAbandoned
}

// CanTransitionTo enforces monotone progress toward a terminal status.
func (s RemediationStatus) CanTransitionTo(to RemediationStatus) bool {
	if s == to {
		return false
	}
	switch s {
	case RemediationPending:
		return to == RemediationInProgress || to == RemediationResolved || to == RemediationAbandoned
	case RemediationInProgress:
		return to == RemediationResolved || to == RemediationAbandoned
	default:
		return false
	}
}

// DeadEvent is one quarantined admission attempt, preserved for triage with
// enough context to diagnose and optionally replay.
type DeadEvent struct {
	ID          id.DeadEventID `json:"id"`
	TenantID    id.TenantID    `json:"tenant_id"`
	IngestedAt  time.Time      `json:"ingested_at"`
	Source      Source         `json:"source"`
	ErrorCode   ErrorCode      `json:"error_code"`
	ErrorDetail string         `json:"error_detail"`
	// RawPayload is the delivery as received, except that PII values are
	// redacted before quarantine so the record itself passes the guardrail.
	RawPayload        any               `json:"raw_payload"`
	ClientIP          string            `json:"client_ip,omitempty"`
	UserAgent         string            `json:"user_agent,omitempty"`
	RemediationStatus RemediationStatus `json:"remediation_status"`
	RemediationNotes  string            `json:"remediation_notes,omitempty"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
}

// AdmissionStatus classifies the outcome of one admission attempt.
type AdmissionStatus string

const (
	AdmissionAccepted    AdmissionStatus = "accepted"
	AdmissionDuplicate   AdmissionStatus = "duplicate"
	AdmissionQuarantined AdmissionStatus = "quarantined"
)

// AdmissionOutcome is the normal return value of Admit. Quarantined is a
// success-class outcome at the transport level: the delivery was durably
// captured, just not canonicalized.
type AdmissionOutcome struct {
	Status    AdmissionStatus `json:"status"`
	EventID   id.EventID      `json:"event_id,omitempty"`
	ErrorCode ErrorCode       `json:"error_code,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}
