// Package models defines attribution allocation records: the downstream
// split of an admitted event's credit across channels.
package models

import (
	"time"

	id "tidemark/pkg/domain"
)

// Allocation is one slice of attribution credit carried by a canonical
// event. Like events, allocations are immutable after insert except for the
// audited channel correction path.
type Allocation struct {
	ID       id.AllocationID `json:"id"`
	TenantID id.TenantID     `json:"tenant_id"`
	EventID  id.EventID      `json:"event_id"`
	// Channel is a taxonomy code; corrections are the only post-insert change.
	Channel   string    `json:"channel"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}
