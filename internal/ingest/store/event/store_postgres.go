package event

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tidemark/internal/ingest/models"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
	txcontext "tidemark/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists canonical events in the attribution_events table.
//
// Uniqueness on (tenant_id, idempotency_key) is enforced by the table
// constraint, not an application-level check-then-insert, so concurrent
// redeliveries race safely: the storage engine picks exactly one winner and
// every loser sees sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, ev *models.CanonicalEvent) error {
	// Guardrail: refuse the write while any live PII value is present,
	// regardless of which code path is inserting.
	if err := pii.Inspect(ev.RawPayload); err != nil {
		return err
	}

	payload, err := json.Marshal(ev.RawPayload)
	if err != nil {
		return fmt.Errorf("marshal raw payload: %w", err)
	}

	query := `
		INSERT INTO attribution_events (
			id, tenant_id, session_id, idempotency_key, event_type,
			channel, event_timestamp, ingested_at, raw_payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(ev.ID),
		uuid.UUID(ev.TenantID),
		uuid.UUID(ev.SessionID),
		ev.IdempotencyKey,
		ev.EventType,
		ev.Channel,
		ev.EventTimestamp,
		ev.IngestedAt,
		payload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert canonical event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByTenantAndKey(ctx context.Context, tenantID id.TenantID, key string) (*models.CanonicalEvent, error) {
	query := `
		SELECT id, tenant_id, session_id, idempotency_key, event_type,
		       channel, event_timestamp, ingested_at, raw_payload
		FROM attribution_events
		WHERE tenant_id = $1 AND idempotency_key = $2
	`
	return s.scanEvent(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), key))
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID id.EventID) (*models.CanonicalEvent, error) {
	query := `
		SELECT id, tenant_id, session_id, idempotency_key, event_type,
		       channel, event_timestamp, ingested_at, raw_payload
		FROM attribution_events
		WHERE id = $1
	`
	return s.scanEvent(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(eventID)))
}

// UpdateChannelIf is a conditional correction write: the UPDATE only matches
// while the stored channel still equals fromChannel, so concurrent
// corrections serialize on the row the same way taxonomy state writes do.
func (s *PostgresStore) UpdateChannelIf(ctx context.Context, eventID id.EventID, fromChannel, toChannel string) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE attribution_events SET channel = $1 WHERE id = $2 AND channel = $3`,
		toChannel, uuid.UUID(eventID), fromChannel,
	)
	if err != nil {
		return fmt.Errorf("update event channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event channel: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, eventID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) CountByTenant(ctx context.Context, tenantID id.TenantID) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attribution_events WHERE tenant_id = $1`,
		uuid.UUID(tenantID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) scanEvent(row *sql.Row) (*models.CanonicalEvent, error) {
	var (
		ev       models.CanonicalEvent
		eventID  uuid.UUID
		tenantID uuid.UUID
		session  uuid.UUID
		payload  []byte
	)
	err := row.Scan(&eventID, &tenantID, &session, &ev.IdempotencyKey, &ev.EventType,
		&ev.Channel, &ev.EventTimestamp, &ev.IngestedAt, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan canonical event: %w", err)
	}
	ev.ID = id.EventID(eventID)
	ev.TenantID = id.TenantID(tenantID)
	ev.SessionID = id.SessionID(session)
	if err := json.Unmarshal(payload, &ev.RawPayload); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return &ev, nil
}
