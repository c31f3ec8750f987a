package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	ingestmodels "tidemark/internal/ingest/models"
	taxonomymodels "tidemark/internal/taxonomy/models"
	"tidemark/pkg/requestcontext"
)

// Store is the persistence surface the notifier and worker share.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	FetchUnpublished(ctx context.Context, limit int) ([]*Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Notifier translates admission results into outbox entries. It satisfies
// the ingest service's notifier interface.
type Notifier struct {
	store Store
}

func NewNotifier(store Store) *Notifier {
	return &Notifier{store: store}
}

func (n *Notifier) AdmissionAccepted(ctx context.Context, ev *ingestmodels.CanonicalEvent) error {
	payload, err := json.Marshal(map[string]any{
		"event_id":        ev.ID.String(),
		"tenant_id":       ev.TenantID.String(),
		"event_type":      ev.EventType,
		"channel":         ev.Channel,
		"event_timestamp": ev.EventTimestamp,
	})
	if err != nil {
		return fmt.Errorf("encode admission notification: %w", err)
	}
	return n.store.Insert(ctx, &Entry{
		ID:        uuid.New(),
		Kind:      KindEventAdmitted,
		Key:       ev.TenantID.String(),
		Payload:   payload,
		CreatedAt: requestcontext.Now(ctx),
	})
}

func (n *Notifier) AdmissionQuarantined(ctx context.Context, de *ingestmodels.DeadEvent) error {
	// Identifiers and the error code only; the payload itself stays in the
	// quarantine store.
	payload, err := json.Marshal(map[string]any{
		"dead_event_id": de.ID.String(),
		"tenant_id":     de.TenantID.String(),
		"source":        string(de.Source),
		"error_code":    string(de.ErrorCode),
	})
	if err != nil {
		return fmt.Errorf("encode quarantine notification: %w", err)
	}
	return n.store.Insert(ctx, &Entry{
		ID:        uuid.New(),
		Kind:      KindEventQuarantined,
		Key:       de.TenantID.String(),
		Payload:   payload,
		CreatedAt: requestcontext.Now(ctx),
	})
}

// ChannelTransition announces a taxonomy state change so downstream
// consumers can refresh cached channel sets. Keyed by channel code: the
// taxonomy is tenant-global.
func (n *Notifier) ChannelTransition(ctx context.Context, tr *taxonomymodels.StateTransition) error {
	body := map[string]any{
		"transition_id": tr.ID.String(),
		"channel_code":  tr.ChannelCode,
		"to_state":      string(tr.ToState),
		"actor":         tr.Actor,
		"occurred_at":   tr.OccurredAt,
	}
	if tr.FromState != nil {
		body["from_state"] = string(*tr.FromState)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode transition notification: %w", err)
	}
	return n.store.Insert(ctx, &Entry{
		ID:        uuid.New(),
		Kind:      KindChannelTransition,
		Key:       tr.ChannelCode,
		Payload:   payload,
		CreatedAt: requestcontext.Now(ctx),
	})
}
