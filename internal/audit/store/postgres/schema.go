package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_entries (
		id                     UUID PRIMARY KEY,
		sequence               BIGINT NOT NULL UNIQUE,
		previous_hash          TEXT NOT NULL UNIQUE,
		data_hash              TEXT NOT NULL UNIQUE,
		"timestamp"            TIMESTAMPTZ NOT NULL,
		event_type             TEXT NOT NULL,
		entity_type            TEXT NOT NULL,
		entity_id              TEXT NOT NULL,
		user_id                TEXT NOT NULL,
		user_name              TEXT NOT NULL,
		user_role              TEXT NOT NULL,
		old_value              BYTEA,
		new_value              BYTEA,
		change_reason          TEXT NOT NULL DEFAULT '',
		user_comment           TEXT NOT NULL DEFAULT '',
		source                 TEXT NOT NULL,
		ip_address             TEXT NOT NULL DEFAULT '',
		user_agent             TEXT NOT NULL DEFAULT '',
		session_id             TEXT NOT NULL DEFAULT '',
		request_id             TEXT NOT NULL DEFAULT '',
		api_endpoint           TEXT NOT NULL DEFAULT '',
		is_critical            BOOLEAN NOT NULL,
		is_security_relevant   BOOLEAN NOT NULL,
		is_compliance_relevant BOOLEAN NOT NULL,
		legal_basis            TEXT NOT NULL DEFAULT '',
		retention_until        TIMESTAMPTZ NOT NULL,
		schema_version         INT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries (entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_user ON audit_entries (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_event_type ON audit_entries (event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries ("timestamp")`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_retention ON audit_entries (retention_until)`,
	`CREATE TABLE IF NOT EXISTS audit_tombstones (
		id            UUID PRIMARY KEY,
		sequence      BIGINT NOT NULL UNIQUE,
		"timestamp"   TIMESTAMPTZ NOT NULL,
		event_type    TEXT NOT NULL,
		previous_hash TEXT NOT NULL UNIQUE,
		data_hash     TEXT NOT NULL UNIQUE,
		purged_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_tombstones_timestamp ON audit_tombstones ("timestamp")`,
	`CREATE TABLE IF NOT EXISTS audit_chain_tail (
		id        SMALLINT PRIMARY KEY CHECK (id = 1),
		sequence  BIGINT NOT NULL,
		last_hash TEXT NOT NULL
	)`,
	`INSERT INTO audit_chain_tail (id, sequence, last_hash) VALUES (1, 0, '') ON CONFLICT (id) DO NOTHING`,
	`CREATE OR REPLACE FUNCTION audit_entries_reject_update() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'audit_entries is append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_entries_append_only ON audit_entries`,
	`CREATE TRIGGER audit_entries_append_only BEFORE UPDATE ON audit_entries
		FOR EACH ROW EXECUTE FUNCTION audit_entries_reject_update()`,
}

// Migrate creates the audit tables, the chain tail row and the trigger that
// rejects updates of stored entries. Concurrent callers are serialized on an
// advisory lock.
func Migrate(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrateLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	for i, stmt := range schema {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}
