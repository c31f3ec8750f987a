package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tidemark/internal/tenant/models"
	id "tidemark/pkg/domain"
	"tidemark/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfNameAvailable(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, api_key_digest, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(tenant.ID),
		tenant.Name,
		tenant.APIKeyDigest,
		string(tenant.Status),
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `
		SELECT id, name, api_key_digest, status, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, uuid.UUID(tenantID)))
}

func (s *PostgresStore) FindByAPIKeyDigest(ctx context.Context, digest string) (*models.Tenant, error) {
	query := `
		SELECT id, name, api_key_digest, status, created_at, updated_at
		FROM tenants
		WHERE api_key_digest = $1
	`
	return s.scanTenant(s.db.QueryRowContext(ctx, query, digest))
}

func (s *PostgresStore) scanTenant(row *sql.Row) (*models.Tenant, error) {
	var (
		tenant   models.Tenant
		tenantID uuid.UUID
		status   string
	)
	err := row.Scan(&tenantID, &tenant.Name, &tenant.APIKeyDigest, &status, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	tenant.ID = id.TenantID(tenantID)
	tenant.Status = models.TenantStatus(status)
	return &tenant, nil
}
