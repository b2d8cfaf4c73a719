package db

import (
	"context"
	"database/sql"
	"fmt"
)

// currentSchemaVersion is the schema version written by initializeSchema
const currentSchemaVersion = 1

// RunMigrations executes all database migrations
func RunMigrations(ctx context.Context, db *DB) error {
	// Check if schema_version table exists
	var tableExists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		// First time initialization
		if err := initializeSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	// Get current version
	var version int
	err = db.QueryRowContext(ctx, `
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if version < 1 || version > currentSchemaVersion {
		return fmt.Errorf("invalid schema version: %d", version)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(ctx context.Context, db *DB) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		schemaVersionTable,
		institutionsTable,
		certificatesTable,
		certificatesIndexes,
		auditLogsTable,
		auditLogsIndexes,
	}
	for _, stmt := range statements {
		if err := execSQL(ctx, tx, stmt); err != nil {
			return err
		}
	}

	// Insert initial schema version
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(ctx context.Context, tx *sql.Tx, query string) error {
	_, err := tx.ExecContext(ctx, query)
	return err
}

// Schema definitions
const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	institutionsTable = `
CREATE TABLE institutions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    address    TEXT NOT NULL,
    email      TEXT NOT NULL DEFAULT 'admin@example.com',
    website    TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	certificatesTable = `
CREATE TABLE certificates (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    certificate_id TEXT NOT NULL UNIQUE,
    institution_id INTEGER NOT NULL,
    student_name   TEXT NOT NULL,
    student_id     TEXT NOT NULL,
    student_email  TEXT,
    course         TEXT NOT NULL,
    grade          TEXT NOT NULL DEFAULT '',
    issue_date     TEXT NOT NULL,
    expiry_date    TEXT,
    ledger_tx      TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'DRAFT'
                   CHECK (status IN ('DRAFT', 'ISSUED', 'REVOKED')),
    metadata       TEXT NOT NULL DEFAULT '{}',
    created_at     DATETIME NOT NULL,
    updated_at     DATETIME NOT NULL,

    CHECK (status = 'DRAFT' OR ledger_tx <> ''),
    FOREIGN KEY (institution_id) REFERENCES institutions(id) ON DELETE CASCADE
)`

	certificatesIndexes = `
CREATE INDEX idx_certs_institution_id ON certificates(institution_id);
CREATE INDEX idx_certs_status ON certificates(status);
CREATE INDEX idx_certs_student_id ON certificates(student_id)`

	auditLogsTable = `
CREATE TABLE audit_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    action         TEXT NOT NULL,
    actor          TEXT,
    certificate_id TEXT,
    client_ip      TEXT NOT NULL,
    user_agent     TEXT,
    success        INTEGER NOT NULL,
    error_msg      TEXT,
    details        TEXT
)`

	auditLogsIndexes = `
CREATE INDEX idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX idx_audit_action ON audit_logs(action);
CREATE INDEX idx_audit_actor ON audit_logs(actor);
CREATE INDEX idx_audit_certificate_id ON audit_logs(certificate_id);
CREATE INDEX idx_audit_success ON audit_logs(success)`
)
