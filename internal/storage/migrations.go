package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- Payers table
CREATE TABLE IF NOT EXISTS payers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    ticker_symbol TEXT,
    base_domain TEXT,
    provider_portal_url TEXT,
    priority TEXT,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_payers_name ON payers(name);

-- Versioned payer rules
CREATE TABLE IF NOT EXISTS payer_rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payer_id INTEGER NOT NULL,
    rule_type TEXT NOT NULL,
    rule_identifier TEXT,
    title TEXT,
    content TEXT NOT NULL,
    summary TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    is_current BOOLEAN NOT NULL DEFAULT 1,
    supersedes_id INTEGER,
    effective_date TIMESTAMP,
    expiration_date TIMESTAMP,
    source_url TEXT,
    source_document_id INTEGER,
    source_page_number INTEGER,
    embedding BLOB,
    embedding_model TEXT,
    confidence_score REAL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (payer_id) REFERENCES payers(id) ON DELETE CASCADE,
    FOREIGN KEY (supersedes_id) REFERENCES payer_rules(id),
    FOREIGN KEY (source_document_id) REFERENCES payer_documents(id)
);

CREATE INDEX IF NOT EXISTS idx_rules_payer_type_current ON payer_rules(payer_id, rule_type, is_current);
CREATE INDEX IF NOT EXISTS idx_rules_identifier_version ON payer_rules(rule_identifier, version);
CREATE INDEX IF NOT EXISTS idx_rules_effective_date ON payer_rules(effective_date);

-- Source documents
CREATE TABLE IF NOT EXISTS payer_documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payer_id INTEGER NOT NULL,
    document_type TEXT NOT NULL,
    title TEXT,
    filename TEXT,
    source_url TEXT NOT NULL,
    local_file_path TEXT,
    raw_content TEXT,
    content_hash TEXT,
    downloaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_checked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    is_current BOOLEAN NOT NULL DEFAULT 1,
    processing_status TEXT NOT NULL DEFAULT 'pending',
    FOREIGN KEY (payer_id) REFERENCES payers(id) ON DELETE CASCADE,
    UNIQUE(payer_id, source_url)
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON payer_documents(content_hash);

-- Audit trail for rule changes
CREATE TABLE IF NOT EXISTS change_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    rule_id INTEGER NOT NULL,
    change_type TEXT NOT NULL,
    old_value TEXT,
    new_value TEXT,
    diff TEXT,
    detected_by TEXT,
    changed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    alert_sent BOOLEAN NOT NULL DEFAULT 0,
    alert_sent_at TIMESTAMP,
    FOREIGN KEY (rule_id) REFERENCES payer_rules(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_changes_type_date ON change_logs(change_type, changed_at);
CREATE INDEX IF NOT EXISTS idx_changes_alert_status ON change_logs(alert_sent, changed_at);

-- Batch-level alerts
CREATE TABLE IF NOT EXISTS alerts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    payer_id INTEGER,
    rule_id INTEGER,
    change_log_id INTEGER,
    is_read BOOLEAN NOT NULL DEFAULT 0,
    is_resolved BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    read_at TIMESTAMP,
    resolved_at TIMESTAMP,
    FOREIGN KEY (payer_id) REFERENCES payers(id),
    FOREIGN KEY (rule_id) REFERENCES payer_rules(id),
    FOREIGN KEY (change_log_id) REFERENCES change_logs(id)
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(is_read, is_resolved, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity, created_at);

-- Ingestion batch bookkeeping
CREATE TABLE IF NOT EXISTS ingest_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id TEXT NOT NULL UNIQUE,
    payer_id INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'running',
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    rules_created INTEGER DEFAULT 0,
    rules_updated INTEGER DEFAULT 0,
    rules_unchanged INTEGER DEFAULT 0,
    rules_skipped INTEGER DEFAULT 0,
    documents_created INTEGER DEFAULT 0,
    documents_updated INTEGER DEFAULT 0,
    changes_detected INTEGER DEFAULT 0,
    errors INTEGER DEFAULT 0,
    error_message TEXT,
    FOREIGN KEY (payer_id) REFERENCES payers(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_jobs_payer_status ON ingest_jobs(payer_id, status);
`

const migrationV1Down = `
DROP TABLE IF EXISTS ingest_jobs;
DROP TABLE IF EXISTS alerts;
DROP TABLE IF EXISTS change_logs;
DROP TABLE IF EXISTS payer_documents;
DROP TABLE IF EXISTS payer_rules;
DROP TABLE IF EXISTS payers;
DROP TABLE IF EXISTS schema_version;
`

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	// Check if schema_version table exists
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	// Parse current version (default to 0.0.0 if no migrations applied or table doesn't exist)
	var currentVersion *semver.Version
	if err == sql.ErrNoRows {
		currentVersion = semver.MustParse("0.0.0")
	} else if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	} else {
		var currentVersionStr string
		err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&currentVersionStr)
		if err == sql.ErrNoRows || currentVersionStr == "" {
			currentVersion = semver.MustParse("0.0.0")
		} else if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		} else {
			currentVersion, err = semver.NewVersion(currentVersionStr)
			if err != nil {
				return fmt.Errorf("invalid current schema version %s: %w", currentVersionStr, err)
			}
		}
	}

	// Run migrations in order
	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
	}

	return nil
}
