package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full DDL, applied idempotently at startup. The append-only
// audit tables (channel_state_transitions, channel_assignment_corrections)
// additionally rely on the application never issuing UPDATE or DELETE.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL UNIQUE,
		api_key_digest TEXT NOT NULL UNIQUE,
		status         TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attribution_events (
		id              UUID PRIMARY KEY,
		tenant_id       UUID NOT NULL REFERENCES tenants (id),
		session_id      UUID NOT NULL,
		idempotency_key TEXT NOT NULL,
		event_type      TEXT NOT NULL,
		channel         TEXT NOT NULL,
		event_timestamp TIMESTAMPTZ NOT NULL,
		ingested_at     TIMESTAMPTZ NOT NULL,
		raw_payload     JSONB NOT NULL,
		UNIQUE (tenant_id, idempotency_key)
	)`,

	`CREATE TABLE IF NOT EXISTS dead_events (
		id                 UUID PRIMARY KEY,
		tenant_id          UUID NOT NULL REFERENCES tenants (id),
		ingested_at        TIMESTAMPTZ NOT NULL,
		source             TEXT NOT NULL,
		error_code         TEXT NOT NULL
			CHECK (error_code IN ('validation_error', 'pii_detected', 'malformed_payload')),
		error_detail       TEXT NOT NULL,
		raw_payload        JSONB NOT NULL,
		client_ip          TEXT NOT NULL DEFAULT '',
		user_agent         TEXT NOT NULL DEFAULT '',
		remediation_status TEXT NOT NULL
			CHECK (remediation_status IN ('pending', 'in_progress', 'resolved', 'abandoned')),
		remediation_notes  TEXT NOT NULL DEFAULT '',
		resolved_at        TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS dead_events_tenant_idx
		ON dead_events (tenant_id, ingested_at)`,

	`CREATE TABLE IF NOT EXISTS channel_taxonomy (
		code         TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		family       TEXT NOT NULL,
		paid         BOOLEAN NOT NULL,
		state        TEXT NOT NULL
			CHECK (state IN ('draft', 'active', 'deprecated', 'archived')),
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS channel_state_transitions (
		id           UUID PRIMARY KEY,
		channel_code TEXT NOT NULL REFERENCES channel_taxonomy (code),
		from_state   TEXT,
		to_state     TEXT NOT NULL,
		actor        TEXT NOT NULL,
		reason       TEXT NOT NULL DEFAULT '',
		occurred_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS channel_state_transitions_code_idx
		ON channel_state_transitions (channel_code, occurred_at)`,

	`CREATE TABLE IF NOT EXISTS attribution_allocations (
		id         UUID PRIMARY KEY,
		tenant_id  UUID NOT NULL REFERENCES tenants (id),
		event_id   UUID NOT NULL REFERENCES attribution_events (id),
		channel    TEXT NOT NULL,
		weight     DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS attribution_allocations_event_idx
		ON attribution_allocations (event_id)`,

	`CREATE TABLE IF NOT EXISTS channel_assignment_corrections (
		id           UUID PRIMARY KEY,
		tenant_id    UUID NOT NULL REFERENCES tenants (id),
		entity_type  TEXT NOT NULL CHECK (entity_type IN ('event', 'allocation')),
		entity_id    TEXT NOT NULL,
		from_channel TEXT NOT NULL,
		to_channel   TEXT NOT NULL,
		actor        TEXT NOT NULL,
		reason       TEXT NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS channel_assignment_corrections_tenant_idx
		ON channel_assignment_corrections (tenant_id, occurred_at)`,

	`CREATE TABLE IF NOT EXISTS notification_outbox (
		id           UUID PRIMARY KEY,
		kind         TEXT NOT NULL,
		key          TEXT NOT NULL,
		payload      JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		published_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS notification_outbox_pending_idx
		ON notification_outbox (created_at) WHERE published_at IS NULL`,
}

// EnsureSchema applies the DDL. Every statement is idempotent, so running it
// on every startup is safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
