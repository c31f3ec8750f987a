package correction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"tidemark/internal/correction/models"
	id "tidemark/pkg/domain"
	txcontext "tidemark/pkg/platform/tx"
)

// PostgresStore persists correction audit rows in
// channel_assignment_corrections. The table grants INSERT and SELECT only.
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

func (s *PostgresStore) Insert(ctx context.Context, c *models.Correction) error {
	query := `
		INSERT INTO channel_assignment_corrections (
			id, tenant_id, entity_type, entity_id, from_channel, to_channel,
			actor, reason, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID),
		uuid.UUID(c.TenantID),
		string(c.EntityType),
		c.EntityID,
		c.FromChannel,
		c.ToChannel,
		c.Actor,
		c.Reason,
		c.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert correction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Correction, error) {
	query := `
		SELECT id, tenant_id, entity_type, entity_id, from_channel, to_channel,
		       actor, reason, occurred_at
		FROM channel_assignment_corrections
		WHERE tenant_id = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	var out []*models.Correction
	for rows.Next() {
		var (
			c            models.Correction
			correctionID uuid.UUID
			tenant       uuid.UUID
			entityType   string
		)
		err := rows.Scan(&correctionID, &tenant, &entityType, &c.EntityID,
			&c.FromChannel, &c.ToChannel, &c.Actor, &c.Reason, &c.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		c.ID = id.CorrectionID(correctionID)
		c.TenantID = id.TenantID(tenant)
		c.EntityType = models.EntityType(entityType)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrections: %w", err)
	}
	return out, nil
}
