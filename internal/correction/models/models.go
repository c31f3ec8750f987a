// Package models defines the channel assignment correction audit record.
package models

import (
	"time"

	id "tidemark/pkg/domain"
)

// EntityType names the kind of record a correction targets.
type EntityType string

const (
	EntityEvent      EntityType = "event"
	EntityAllocation EntityType = "allocation"
)

// ValidEntityType reports whether t is a correctable entity kind.
func ValidEntityType(t EntityType) bool {
	return t == EntityEvent || t == EntityAllocation
}

// Correction is one append-only audit row per post-admission channel
// reassignment. It is never produced for the initial assignment, only for a
// later change, and never for a no-op.
type Correction struct {
	ID          id.CorrectionID `json:"id"`
	TenantID    id.TenantID     `json:"tenant_id"`
	EntityType  EntityType      `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	FromChannel string          `json:"from_channel"`
	ToChannel   string          `json:"to_channel"`
	Actor       string          `json:"actor"`
	Reason      string          `json:"reason"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
