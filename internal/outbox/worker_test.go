package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestmodels "tidemark/internal/ingest/models"
	taxonomymodels "tidemark/internal/taxonomy/models"
	id "tidemark/pkg/domain"
)

type capturingPublisher struct {
	mu        sync.Mutex
	published []*Entry
	fail      bool
}

func (p *capturingPublisher) Publish(_ context.Context, entries []*Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.published = append(p.published, entries...)
	return nil
}

func (p *capturingPublisher) Close() {}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func seedEntries(t *testing.T, store Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Insert(context.Background(), &Entry{
			ID:        uuid.New(),
			Kind:      KindEventAdmitted,
			Key:       "tenant-1",
			Payload:   []byte(`{}`),
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
}

func TestWorker_DrainPublishesAndMarks(t *testing.T) {
	store := NewInMemoryStore()
	publisher := &capturingPublisher{}
	worker := NewWorker(store, publisher, nil, WithBatchSize(10))
	seedEntries(t, store, 3)

	require.NoError(t, worker.drainOnce(context.Background()))
	assert.Equal(t, 3, publisher.count())

	pending, err := store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestWorker_PublishFailureLeavesBatchPending(t *testing.T) {
	store := NewInMemoryStore()
	publisher := &capturingPublisher{fail: true}
	worker := NewWorker(store, publisher, nil)
	seedEntries(t, store, 2)

	require.Error(t, worker.drainOnce(context.Background()))

	pending, err := store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// Recovery on the next poll.
	publisher.fail = false
	require.NoError(t, worker.drainOnce(context.Background()))
	assert.Equal(t, 2, publisher.count())
}

func TestWorker_BatchSizeBoundsDrain(t *testing.T) {
	store := NewInMemoryStore()
	publisher := &capturingPublisher{}
	worker := NewWorker(store, publisher, nil, WithBatchSize(5))
	seedEntries(t, store, 8)

	require.NoError(t, worker.drainOnce(context.Background()))
	assert.Equal(t, 5, publisher.count())

	require.NoError(t, worker.drainOnce(context.Background()))
	assert.Equal(t, 8, publisher.count())
}

func TestNotifier_BuildsEntries(t *testing.T) {
	store := NewInMemoryStore()
	notifier := NewNotifier(store)
	ctx := context.Background()

	ev := &ingestmodels.CanonicalEvent{
		ID:        id.NewEventID(),
		TenantID:  id.NewTenantID(),
		EventType: "purchase",
		Channel:   "direct",
	}
	require.NoError(t, notifier.AdmissionAccepted(ctx, ev))

	de := &ingestmodels.DeadEvent{
		ID:        id.NewDeadEventID(),
		TenantID:  ev.TenantID,
		Source:    ingestmodels.SourceWebhook,
		ErrorCode: ingestmodels.ErrorCodeValidation,
	}
	require.NoError(t, notifier.AdmissionQuarantined(ctx, de))

	pending, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, KindEventAdmitted, pending[0].Kind)
	assert.Equal(t, KindEventQuarantined, pending[1].Kind)
	assert.Equal(t, ev.TenantID.String(), pending[0].Key)
}

func TestNotifier_ChannelTransition(t *testing.T) {
	store := NewInMemoryStore()
	notifier := NewNotifier(store)
	ctx := context.Background()

	from := taxonomymodels.StateDraft
	tr := &taxonomymodels.StateTransition{
		ID:          id.NewTransitionID(),
		ChannelCode: "google_search_paid",
		FromState:   &from,
		ToState:     taxonomymodels.StateActive,
		Actor:       "ops@example.com",
		OccurredAt:  time.Now().UTC(),
	}
	require.NoError(t, notifier.ChannelTransition(ctx, tr))

	pending, err := store.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, KindChannelTransition, pending[0].Kind)
	assert.Equal(t, "google_search_paid", pending[0].Key)
	assert.Contains(t, string(pending[0].Payload), `"from_state":"draft"`)
	assert.Contains(t, string(pending[0].Payload), `"to_state":"active"`)
}
