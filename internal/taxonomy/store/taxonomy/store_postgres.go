package taxonomy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tidemark/internal/taxonomy/models"
	"tidemark/pkg/platform/sentinel"
	txcontext "tidemark/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists channel definitions in the channel_taxonomy table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO channel_taxonomy (code, display_name, family, paid, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		entry.Code,
		entry.DisplayName,
		entry.Family,
		entry.Paid,
		string(entry.State),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Entry, error) {
	query := selectChannels + ` WHERE code = $1`
	rows, err := s.execer(ctx).QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	defer rows.Close()

	entries, err := scanChannels(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return entries[0], nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Entry, error) {
	query := selectChannels + ` ORDER BY code`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()
	return scanChannels(rows)
}

// UpdateStateIf is a conditional state write: the UPDATE only matches when
// the stored state still equals fromState, so concurrent transitions
// serialize on the row without application-level locking.
func (s *PostgresStore) UpdateStateIf(ctx context.Context, code string, fromState, toState models.State, now time.Time) error {
	query := `
		UPDATE channel_taxonomy
		SET state = $1, updated_at = $2
		WHERE code = $3 AND state = $4
	`
	result, err := s.execer(ctx).ExecContext(ctx, query, string(toState), now, code, string(fromState))
	if err != nil {
		return fmt.Errorf("update channel state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update channel state: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByCode(ctx, code); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

const selectChannels = `
	SELECT code, display_name, family, paid, state, created_at, updated_at
	FROM channel_taxonomy`

func scanChannels(rows *sql.Rows) ([]*models.Entry, error) {
	var entries []*models.Entry
	for rows.Next() {
		var (
			entry models.Entry
			state string
		)
		err := rows.Scan(&entry.Code, &entry.DisplayName, &entry.Family, &entry.Paid,
			&state, &entry.CreatedAt, &entry.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		entry.State = models.State(state)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return entries, nil
}
