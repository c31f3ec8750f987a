// Package outbox implements transactional-outbox delivery of admission and
// governance notifications to Kafka. Rows are written alongside the domain
// write and drained by a background worker, so a broker outage never fails
// or reorders admissions.
package outbox

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an outbox entry.
type Kind string

const (
	KindEventAdmitted     Kind = "event.admitted"
	KindEventQuarantined  Kind = "event.quarantined"
	KindChannelTransition Kind = "channel.transition"
)

// Entry is one pending notification. Key becomes the Kafka record key so
// per-tenant ordering survives partitioning.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	Kind        Kind       `json:"kind"`
	Key         string     `json:"key"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
