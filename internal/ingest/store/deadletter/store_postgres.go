package deadletter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"tidemark/internal/ingest/models"
	"tidemark/internal/pii"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
	txcontext "tidemark/pkg/platform/tx"
)

// PostgresStore persists quarantined events in the dead_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, de *models.DeadEvent) error {
	if err := pii.Inspect(de.RawPayload); err != nil {
		return err
	}

	payload, err := json.Marshal(de.RawPayload)
	if err != nil {
		return fmt.Errorf("marshal quarantined payload: %w", err)
	}

	query := `
		INSERT INTO dead_events (
			id, tenant_id, ingested_at, source, error_code, error_detail,
			raw_payload, client_ip, user_agent, remediation_status,
			remediation_notes, resolved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(de.ID),
		uuid.UUID(de.TenantID),
		de.IngestedAt,
		string(de.Source),
		string(de.ErrorCode),
		de.ErrorDetail,
		payload,
		de.ClientIP,
		de.UserAgent,
		string(de.RemediationStatus),
		de.RemediationNotes,
		de.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, deadEventID id.DeadEventID) (*models.DeadEvent, error) {
	query := selectDeadEvents + ` WHERE id = $1`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(deadEventID))
	if err != nil {
		return nil, fmt.Errorf("query dead event: %w", err)
	}
	defer rows.Close()

	events, err := scanDeadEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return events[0], nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.DeadEvent, error) {
	query := selectDeadEvents + ` WHERE tenant_id = $1 ORDER BY ingested_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query dead events: %w", err)
	}
	defer rows.Close()
	return scanDeadEvents(rows)
}

func (s *PostgresStore) UpdateRemediation(ctx context.Context, de *models.DeadEvent) error {
	query := `
		UPDATE dead_events
		SET remediation_status = $1, remediation_notes = $2, resolved_at = $3
		WHERE id = $4
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		string(de.RemediationStatus),
		de.RemediationNotes,
		de.ResolvedAt,
		uuid.UUID(de.ID),
	)
	if err != nil {
		return fmt.Errorf("update remediation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update remediation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectDeadEvents = `
	SELECT id, tenant_id, ingested_at, source, error_code, error_detail,
	       raw_payload, client_ip, user_agent, remediation_status,
	       remediation_notes, resolved_at
	FROM dead_events`

func scanDeadEvents(rows *sql.Rows) ([]*models.DeadEvent, error) {
	var events []*models.DeadEvent
	for rows.Next() {
		var (
			de        models.DeadEvent
			deID      uuid.UUID
			tenantID  uuid.UUID
			source    string
			errorCode string
			status    string
			payload   []byte
		)
		err := rows.Scan(&deID, &tenantID, &de.IngestedAt, &source, &errorCode, &de.ErrorDetail,
			&payload, &de.ClientIP, &de.UserAgent, &status, &de.RemediationNotes, &de.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan dead event: %w", err)
		}
		de.ID = id.DeadEventID(deID)
		de.TenantID = id.TenantID(tenantID)
		de.Source = models.Source(source)
		de.ErrorCode = models.ErrorCode(errorCode)
		de.RemediationStatus = models.RemediationStatus(status)
		if err := json.Unmarshal(payload, &de.RawPayload); err != nil {
			return nil, fmt.Errorf("decode quarantined payload: %w", err)
		}
		events = append(events, &de)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead events: %w", err)
	}
	return events, nil
}
