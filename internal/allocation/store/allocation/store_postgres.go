package allocation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"tidemark/internal/allocation/models"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
	txcontext "tidemark/pkg/platform/tx"
)

// PostgresStore persists allocations in the attribution_allocations table.
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

func (s *PostgresStore) Insert(ctx context.Context, a *models.Allocation) error {
	query := `
		INSERT INTO attribution_allocations (id, tenant_id, event_id, channel, weight, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(a.ID),
		uuid.UUID(a.TenantID),
		uuid.UUID(a.EventID),
		a.Channel,
		a.Weight,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert allocation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, allocationID id.AllocationID) (*models.Allocation, error) {
	query := selectAllocations + ` WHERE id = $1`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(allocationID))
	if err != nil {
		return nil, fmt.Errorf("query allocation: %w", err)
	}
	defer rows.Close()

	allocations, err := scanAllocations(rows)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return allocations[0], nil
}

func (s *PostgresStore) ListByEvent(ctx context.Context, eventID id.EventID) ([]*models.Allocation, error) {
	query := selectAllocations + ` WHERE event_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()
	return scanAllocations(rows)
}

// UpdateChannelIf is a conditional correction write: the UPDATE only matches
// while the stored channel still equals fromChannel.
func (s *PostgresStore) UpdateChannelIf(ctx context.Context, allocationID id.AllocationID, fromChannel, toChannel string) error {
	query := `UPDATE attribution_allocations SET channel = $1 WHERE id = $2 AND channel = $3`
	result, err := s.execer(ctx).ExecContext(ctx, query, toChannel, uuid.UUID(allocationID), fromChannel)
	if err != nil {
		return fmt.Errorf("update allocation channel: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update allocation channel: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, allocationID); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

const selectAllocations = `
	SELECT id, tenant_id, event_id, channel, weight, created_at
	FROM attribution_allocations`

func scanAllocations(rows *sql.Rows) ([]*models.Allocation, error) {
	var allocations []*models.Allocation
	for rows.Next() {
		var (
			a            models.Allocation
			allocationID uuid.UUID
			tenantID     uuid.UUID
			eventID      uuid.UUID
		)
		err := rows.Scan(&allocationID, &tenantID, &eventID, &a.Channel, &a.Weight, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		a.ID = id.AllocationID(allocationID)
		a.TenantID = id.TenantID(tenantID)
		a.EventID = id.EventID(eventID)
		allocations = append(allocations, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return allocations, nil
}
