package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidemark/internal/ingest/models"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

func canonicalEvent(tenantID id.TenantID, key string) *models.CanonicalEvent {
	return &models.CanonicalEvent{
		ID:             id.NewEventID(),
		TenantID:       tenantID,
		SessionID:      id.NewSessionID(),
		IdempotencyKey: key,
		EventType:      "purchase",
		Channel:        "direct",
		EventTimestamp: time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC),
		IngestedAt:     time.Now().UTC(),
		RawPayload:     map[string]any{"event_type": "purchase"},
	}
}

func TestInMemory_InsertEnforcesTenantScopedUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	require.NoError(t, store.Insert(ctx, canonicalEvent(tenantA, "k1")))

	err := store.Insert(ctx, canonicalEvent(tenantA, "k1"))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// Same key under a different tenant is a distinct row.
	require.NoError(t, store.Insert(ctx, canonicalEvent(tenantB, "k1")))

	countA, err := store.CountByTenant(ctx, tenantA)
	require.NoError(t, err)
	assert.Equal(t, 1, countA)
}

func TestInMemory_InsertGuardrailRefusesLivePII(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	ev := canonicalEvent(id.NewTenantID(), "k1")
	ev.RawPayload = map[string]any{
		"customer": map[string]any{"email": "jane@example.com"},
	}

	err := store.Insert(ctx, ev)
	var piiErr *pii.Error
	require.True(t, errors.As(err, &piiErr))
	assert.Equal(t, "email", piiErr.Key)

	// Redacted values pass: the guardrail blocks live values only.
	ev.RawPayload = map[string]any{
		"customer": map[string]any{"email": pii.Marker},
	}
	assert.NoError(t, store.Insert(ctx, ev))
}

func TestInMemory_UpdateChannelIf(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	ev := canonicalEvent(id.NewTenantID(), "k1")
	require.NoError(t, store.Insert(ctx, ev))

	require.NoError(t, store.UpdateChannelIf(ctx, ev.ID, "direct", "google_search_paid"))

	got, err := store.FindByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "google_search_paid", got.Channel)

	// A stale expected channel loses the compare-and-swap.
	err = store.UpdateChannelIf(ctx, ev.ID, "direct", "email")
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	got, err = store.FindByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "google_search_paid", got.Channel)

	err = store.UpdateChannelIf(ctx, id.NewEventID(), "direct", "email")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemory_FindByTenantAndKey(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	tenantID := id.NewTenantID()
	ev := canonicalEvent(tenantID, "k1")
	require.NoError(t, store.Insert(ctx, ev))

	got, err := store.FindByTenantAndKey(ctx, tenantID, "k1")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	_, err = store.FindByTenantAndKey(ctx, id.NewTenantID(), "k1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
