package transition

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"tidemark/internal/taxonomy/models"
	id "tidemark/pkg/domain"
	txcontext "tidemark/pkg/platform/tx"
)

// PostgresStore persists transition audit rows in channel_state_transitions.
// The table grants INSERT and SELECT only; append-only is enforced by the
// schema, not by this code.
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

func (s *PostgresStore) Insert(ctx context.Context, tr *models.StateTransition) error {
	var fromState *string
	if tr.FromState != nil {
		v := string(*tr.FromState)
		fromState = &v
	}

	query := `
		INSERT INTO channel_state_transitions (id, channel_code, from_state, to_state, actor, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(tr.ID),
		tr.ChannelCode,
		fromState,
		string(tr.ToState),
		tr.Actor,
		tr.Reason,
		tr.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert state transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByChannel(ctx context.Context, code string) ([]*models.StateTransition, error) {
	query := `
		SELECT id, channel_code, from_state, to_state, actor, reason, occurred_at
		FROM channel_state_transitions
		WHERE channel_code = $1
		ORDER BY occurred_at
	`
	rows, err := s.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("query state transitions: %w", err)
	}
	defer rows.Close()

	var out []*models.StateTransition
	for rows.Next() {
		var (
			tr        models.StateTransition
			trID      uuid.UUID
			fromState sql.NullString
			toState   string
		)
		err := rows.Scan(&trID, &tr.ChannelCode, &fromState, &toState, &tr.Actor, &tr.Reason, &tr.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan state transition: %w", err)
		}
		tr.ID = id.TransitionID(trID)
		tr.ToState = models.State(toState)
		if fromState.Valid {
			from := models.State(fromState.String)
			tr.FromState = &from
		}
		out = append(out, &tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state transitions: %w", err)
	}
	return out, nil
}
