package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotCurrent is returned when superseding a rule that is no longer current
	ErrNotCurrent = errors.New("rule is not current")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Payer operations

func (s *SQLiteStorage) CreatePayer(ctx context.Context, payer *Payer) error {
	query := `
		INSERT INTO payers (name, ticker_symbol, base_domain, provider_portal_url, priority, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if !payer.IsActive {
		payer.IsActive = true
	}
	result, err := s.db.ExecContext(ctx, query,
		payer.Name, nullString(payer.TickerSymbol), nullString(payer.BaseDomain),
		nullString(payer.ProviderPortal), nullString(payer.Priority), payer.IsActive, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("payer %q: %w", payer.Name, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create payer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payer.ID = id
	payer.CreatedAt = now
	payer.UpdatedAt = now
	return nil
}

const payerColumns = `id, name, ticker_symbol, base_domain, provider_portal_url, priority, is_active, created_at, updated_at`

func scanPayer(row interface{ Scan(...any) error }) (*Payer, error) {
	var p Payer
	var ticker, domain, portal, priority sql.NullString
	err := row.Scan(&p.ID, &p.Name, &ticker, &domain, &portal, &priority,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TickerSymbol = ticker.String
	p.BaseDomain = domain.String
	p.ProviderPortal = portal.String
	p.Priority = priority.String
	return &p, nil
}

func (s *SQLiteStorage) GetPayer(ctx context.Context, payerID int64) (*Payer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+payerColumns+` FROM payers WHERE id = ?`, payerID)
	payer, err := scanPayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return payer, err
}

func (s *SQLiteStorage) GetPayerByName(ctx context.Context, name string) (*Payer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+payerColumns+` FROM payers WHERE lower(name) = lower(?)`, name)
	payer, err := scanPayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return payer, err
}

func (s *SQLiteStorage) ListPayers(ctx context.Context, activeOnly bool) ([]*Payer, error) {
	query := `SELECT ` + payerColumns + ` FROM payers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list payers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payers []*Payer
	for rows.Next() {
		p, err := scanPayer(rows)
		if err != nil {
			return nil, err
		}
		payers = append(payers, p)
	}
	return payers, rows.Err()
}

// Rule operations

const ruleColumns = `id, payer_id, rule_type, rule_identifier, title, content, summary,
	version, is_current, supersedes_id, effective_date, expiration_date,
	source_url, source_document_id, source_page_number,
	embedding, embedding_model, confidence_score, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var r Rule
	var identifier, title, summary, sourceURL, embModel sql.NullString
	var supersedes, sourceDoc, sourcePage sql.NullInt64
	var effective, expiration sql.NullTime
	var embedding []byte
	var confidence sql.NullFloat64
	err := row.Scan(&r.ID, &r.PayerID, &r.RuleType, &identifier, &title, &r.Content, &summary,
		&r.Version, &r.IsCurrent, &supersedes, &effective, &expiration,
		&sourceURL, &sourceDoc, &sourcePage,
		&embedding, &embModel, &confidence, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.RuleIdentifier = identifier.String
	r.Title = title.String
	r.Summary = summary.String
	r.SourceURL = sourceURL.String
	r.EmbeddingModel = embModel.String
	if supersedes.Valid {
		r.SupersedesID = &supersedes.Int64
	}
	if sourceDoc.Valid {
		r.SourceDocumentID = &sourceDoc.Int64
	}
	if sourcePage.Valid {
		page := int(sourcePage.Int64)
		r.SourcePage = &page
	}
	if effective.Valid {
		r.EffectiveDate = &effective.Time
	}
	if expiration.Valid {
		r.ExpirationDate = &expiration.Time
	}
	if confidence.Valid {
		r.Confidence = &confidence.Float64
	}
	if len(embedding) > 0 {
		r.Embedding = deserializeVector(embedding)
	}
	return &r, nil
}

// insertRule is shared by CreateRule and SupersedeRule so both write the same
// column set, against either the DB or an open transaction.
func insertRule(ctx context.Context, q interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, rule *Rule) error {
	query := `
		INSERT INTO payer_rules (payer_id, rule_type, rule_identifier, title, content, summary,
			version, is_current, supersedes_id, effective_date, expiration_date,
			source_url, source_document_id, source_page_number,
			embedding, embedding_model, confidence_score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if rule.Version <= 0 {
		rule.Version = 1
	}
	var embBlob []byte
	if len(rule.Embedding) > 0 {
		embBlob = serializeVector(rule.Embedding)
	}
	var sourcePage any
	if rule.SourcePage != nil {
		sourcePage = *rule.SourcePage
	}
	result, err := q.ExecContext(ctx, query,
		rule.PayerID, string(rule.RuleType), nullString(rule.RuleIdentifier),
		nullString(rule.Title), rule.Content, nullString(rule.Summary),
		rule.Version, rule.IsCurrent, rule.SupersedesID,
		rule.EffectiveDate, rule.ExpirationDate,
		nullString(rule.SourceURL), rule.SourceDocumentID, sourcePage,
		embBlob, nullString(rule.EmbeddingModel), rule.Confidence, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *Rule) error {
	rule.IsCurrent = true
	return insertRule(ctx, s.db, rule)
}

func (s *SQLiteStorage) GetRule(ctx context.Context, ruleID int64) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM payer_rules WHERE id = ?`, ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

func (s *SQLiteStorage) CurrentRules(ctx context.Context, payerID int64, ruleType types.RuleType) ([]*Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM payer_rules
		WHERE payer_id = ? AND rule_type = ? AND is_current = 1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, payerID, string(ruleType))
	if err != nil {
		return nil, fmt.Errorf("failed to query current rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRules(rows)
}

// SupersedeRule atomically flips the old version to not-current and inserts
// the new version in a single transaction. The new rule inherits the payer,
// type and identifier of the old one and gets version old+1.
func (s *SQLiteStorage) SupersedeRule(ctx context.Context, oldRuleID int64, newRule *Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM payer_rules WHERE id = ?`, oldRuleID)
	oldRule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE payer_rules SET is_current = 0, updated_at = ? WHERE id = ? AND is_current = 1`,
		time.Now(), oldRuleID)
	if err != nil {
		return fmt.Errorf("failed to retire rule %d: %w", oldRuleID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("rule %d: %w", oldRuleID, ErrNotCurrent)
	}

	newRule.PayerID = oldRule.PayerID
	newRule.RuleType = oldRule.RuleType
	newRule.RuleIdentifier = oldRule.RuleIdentifier
	newRule.Version = oldRule.Version + 1
	newRule.IsCurrent = true
	newRule.SupersedesID = &oldRule.ID

	if err := insertRule(ctx, tx, newRule); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStorage) CurrentRulesWithEmbeddings(ctx context.Context, payerID *int64, ruleType *types.RuleType) ([]*Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM payer_rules
		WHERE is_current = 1 AND embedding IS NOT NULL
	`
	var args []any
	if payerID != nil {
		query += ` AND payer_id = ?`
		args = append(args, *payerID)
	}
	if ruleType != nil {
		query += ` AND rule_type = ?`
		args = append(args, string(*ruleType))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRules(rows)
}

// SearchRulesKeyword selects current rules whose content or title contains
// any of the given terms, case-insensitively.
func (s *SQLiteStorage) SearchRulesKeyword(ctx context.Context, terms []string, payerID *int64, ruleType *types.RuleType, limit int) ([]*Rule, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + ruleColumns + `
		FROM payer_rules
		WHERE is_current = 1
	`
	var args []any
	if payerID != nil {
		query += ` AND payer_id = ?`
		args = append(args, *payerID)
	}
	if ruleType != nil {
		query += ` AND rule_type = ?`
		args = append(args, string(*ruleType))
	}

	conditions := make([]string, 0, len(terms)*2)
	for _, term := range terms {
		conditions = append(conditions,
			`instr(lower(content), lower(?)) > 0`,
			`instr(lower(coalesce(title, '')), lower(?)) > 0`)
		args = append(args, term, term)
	}
	query += ` AND (` + strings.Join(conditions, " OR ") + `)`
	query += ` ORDER BY id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRules(rows)
}

func (s *SQLiteStorage) RulesNeedingEmbedding(ctx context.Context, force bool, limit int) ([]*Rule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM payer_rules
		WHERE is_current = 1
	`
	if !force {
		query += ` AND embedding IS NULL`
	}
	query += ` ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules needing embedding: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRules(rows)
}

func (s *SQLiteStorage) UpdateRuleEmbedding(ctx context.Context, ruleID int64, vector []float32, model string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payer_rules SET embedding = ?, embedding_model = ?, updated_at = ? WHERE id = ?`,
		serializeVector(vector), model, time.Now(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to update embedding for rule %d: %w", ruleID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func collectRules(rows *sql.Rows) ([]*Rule, error) {
	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Document operations

const documentColumns = `id, payer_id, document_type, title, filename, source_url, local_file_path,
	raw_content, content_hash, downloaded_at, last_checked_at, is_current, processing_status`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	var title, filename, localPath, rawContent, hash sql.NullString
	err := row.Scan(&d.ID, &d.PayerID, &d.DocumentType, &title, &filename, &d.SourceURL, &localPath,
		&rawContent, &hash, &d.DownloadedAt, &d.LastCheckedAt, &d.IsCurrent, &d.ProcessingStatus)
	if err != nil {
		return nil, err
	}
	d.Title = title.String
	d.Filename = filename.String
	d.LocalFilePath = localPath.String
	d.RawContent = rawContent.String
	d.ContentHash = hash.String
	return &d, nil
}

func (s *SQLiteStorage) GetDocumentByURL(ctx context.Context, payerID int64, sourceURL string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM payer_documents WHERE payer_id = ? AND source_url = ?`,
		payerID, sourceURL)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO payer_documents (payer_id, document_type, title, filename, source_url, local_file_path,
			raw_content, content_hash, downloaded_at, last_checked_at, is_current, processing_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = "completed"
	}
	doc.IsCurrent = true
	result, err := s.db.ExecContext(ctx, query,
		doc.PayerID, doc.DocumentType, nullString(doc.Title), nullString(doc.Filename),
		doc.SourceURL, nullString(doc.LocalFilePath), nullString(doc.RawContent),
		nullString(doc.ContentHash), now, now, doc.IsCurrent, doc.ProcessingStatus)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("document %q: %w", doc.SourceURL, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.DownloadedAt = now
	doc.LastCheckedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateDocumentContent(ctx context.Context, doc *Document) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE payer_documents SET raw_content = ?, content_hash = ?, last_checked_at = ? WHERE id = ?`,
		doc.RawContent, doc.ContentHash, now, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document %d: %w", doc.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	doc.LastCheckedAt = now
	return nil
}

func (s *SQLiteStorage) TouchDocument(ctx context.Context, documentID int64, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE payer_documents SET last_checked_at = ? WHERE id = ?`, checkedAt, documentID)
	if err != nil {
		return fmt.Errorf("failed to touch document %d: %w", documentID, err)
	}
	return nil
}

// Change log operations

const changeLogColumns = `id, rule_id, change_type, old_value, new_value, diff, detected_by, changed_at, alert_sent, alert_sent_at`

func scanChangeLog(row interface{ Scan(...any) error }) (*ChangeLogEntry, error) {
	var e ChangeLogEntry
	var oldVal, newVal, diff, detectedBy sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(&e.ID, &e.RuleID, &e.ChangeType, &oldVal, &newVal, &diff,
		&detectedBy, &e.ChangedAt, &e.AlertSent, &sentAt)
	if err != nil {
		return nil, err
	}
	e.DetectedBy = detectedBy.String
	if sentAt.Valid {
		e.AlertSentAt = &sentAt.Time
	}
	if oldVal.Valid {
		if err := json.Unmarshal([]byte(oldVal.String), &e.OldValue); err != nil {
			return nil, fmt.Errorf("corrupt old_value on change log %d: %w", e.ID, err)
		}
	}
	if newVal.Valid {
		if err := json.Unmarshal([]byte(newVal.String), &e.NewValue); err != nil {
			return nil, fmt.Errorf("corrupt new_value on change log %d: %w", e.ID, err)
		}
	}
	if diff.Valid {
		var d types.DiffResult
		if err := json.Unmarshal([]byte(diff.String), &d); err != nil {
			return nil, fmt.Errorf("corrupt diff on change log %d: %w", e.ID, err)
		}
		e.Diff = &d
	}
	return &e, nil
}

func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SQLiteStorage) AppendChangeLog(ctx context.Context, entry *ChangeLogEntry) error {
	var oldVal, newVal, diff any
	var err error
	if entry.OldValue != nil {
		if oldVal, err = marshalNullable(entry.OldValue); err != nil {
			return fmt.Errorf("failed to encode old value: %w", err)
		}
	}
	if entry.NewValue != nil {
		if newVal, err = marshalNullable(entry.NewValue); err != nil {
			return fmt.Errorf("failed to encode new value: %w", err)
		}
	}
	if entry.Diff != nil {
		if diff, err = marshalNullable(entry.Diff); err != nil {
			return fmt.Errorf("failed to encode diff: %w", err)
		}
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO change_logs (rule_id, change_type, old_value, new_value, diff, detected_by, changed_at, alert_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, entry.RuleID, string(entry.ChangeType), oldVal, newVal, diff, nullString(entry.DetectedBy), now)
	if err != nil {
		return fmt.Errorf("failed to append change log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = id
	entry.ChangedAt = now
	return nil
}

func (s *SQLiteStorage) RecentChanges(ctx context.Context, payerID *int64, since time.Time, limit int) ([]*ChangeLogEntry, error) {
	query := `
		SELECT c.id, c.rule_id, c.change_type, c.old_value, c.new_value, c.diff,
		       c.detected_by, c.changed_at, c.alert_sent, c.alert_sent_at
		FROM change_logs c
	`
	var args []any
	if payerID != nil {
		query += ` INNER JOIN payer_rules r ON c.rule_id = r.id WHERE c.changed_at >= ? AND r.payer_id = ?`
		args = append(args, since, *payerID)
	} else {
		query += ` WHERE c.changed_at >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY c.changed_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent changes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChangeLogs(rows)
}

func (s *SQLiteStorage) UnalertedChanges(ctx context.Context, limit int) ([]*ChangeLogEntry, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_logs WHERE alert_sent = 0 ORDER BY changed_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unalerted changes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectChangeLogs(rows)
}

func (s *SQLiteStorage) MarkChangesAlerted(ctx context.Context, entryIDs []int64, sentAt time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(entryIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(entryIDs)+1)
	args = append(args, sentAt)
	for _, id := range entryIDs {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE change_logs SET alert_sent = 1, alert_sent_at = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark changes alerted: %w", err)
	}
	return nil
}

func collectChangeLogs(rows *sql.Rows) ([]*ChangeLogEntry, error) {
	var entries []*ChangeLogEntry
	for rows.Next() {
		e, err := scanChangeLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Alert operations

func (s *SQLiteStorage) CreateAlert(ctx context.Context, alert *Alert) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_type, severity, title, message, payer_id, rule_id, change_log_id, is_read, is_resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?)
	`, alert.AlertType, string(alert.Severity), alert.Title, alert.Message,
		alert.PayerID, alert.RuleID, alert.ChangeLogID, now)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	alert.ID = id
	alert.CreatedAt = now
	return nil
}

const alertColumns = `id, alert_type, severity, title, message, payer_id, rule_id, change_log_id,
	is_read, is_resolved, created_at, read_at, resolved_at`

func scanAlert(row interface{ Scan(...any) error }) (*Alert, error) {
	var a Alert
	var payerID, ruleID, changeLogID sql.NullInt64
	var readAt, resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.AlertType, &a.Severity, &a.Title, &a.Message,
		&payerID, &ruleID, &changeLogID, &a.IsRead, &a.IsResolved,
		&a.CreatedAt, &readAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if payerID.Valid {
		a.PayerID = &payerID.Int64
	}
	if ruleID.Valid {
		a.RuleID = &ruleID.Int64
	}
	if changeLogID.Valid {
		a.ChangeLogID = &changeLogID.Int64
	}
	if readAt.Valid {
		a.ReadAt = &readAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return &a, nil
}

func (s *SQLiteStorage) ListAlerts(ctx context.Context, unreadOnly bool, limit int) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if unreadOnly {
		query += ` WHERE is_read = 0`
	}
	query += ` ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStorage) MarkAlertRead(ctx context.Context, alertID int64, readAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET is_read = 1, read_at = ? WHERE id = ?`, readAt, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ingest job operations

func (s *SQLiteStorage) CreateIngestJob(ctx context.Context, job *IngestJob) error {
	now := time.Now()
	if job.Status == "" {
		job.Status = "running"
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_jobs (job_id, payer_id, status, started_at)
		VALUES (?, ?, ?, ?)
	`, job.JobID, job.PayerID, job.Status, now)
	if err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	job.ID = id
	job.StartedAt = now
	return nil
}

func (s *SQLiteStorage) FinishIngestJob(ctx context.Context, job *IngestJob) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE ingest_jobs
		SET status = ?, completed_at = ?,
		    rules_created = ?, rules_updated = ?, rules_unchanged = ?, rules_skipped = ?,
		    documents_created = ?, documents_updated = ?, changes_detected = ?,
		    errors = ?, error_message = ?
		WHERE id = ?
	`, job.Status, now,
		job.RulesCreated, job.RulesUpdated, job.RulesUnchanged, job.RulesSkipped,
		job.DocumentsCreated, job.DocumentsUpdated, job.ChangesDetected,
		job.Errors, nullString(job.ErrorMessage), job.ID)
	if err != nil {
		return fmt.Errorf("failed to finish ingest job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	job.CompletedAt = &now
	return nil
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM payers`, &status.PayersCount},
		{`SELECT COUNT(*) FROM payer_rules WHERE is_current = 1`, &status.CurrentRulesCount},
		{`SELECT COUNT(*) FROM payer_rules`, &status.TotalRuleVersions},
		{`SELECT COUNT(*) FROM payer_rules WHERE is_current = 1 AND embedding IS NOT NULL`, &status.EmbeddedRulesCount},
		{`SELECT COUNT(*) FROM payer_documents`, &status.DocumentsCount},
		{`SELECT COUNT(*) FROM change_logs`, &status.ChangeLogsCount},
		{`SELECT COUNT(*) FROM alerts`, &status.AlertsCount},
		{`SELECT COUNT(*) FROM alerts WHERE is_read = 0`, &status.UnreadAlertsCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to collect status: %w", err)
		}
	}
	return &status, nil
}

// nullString converts empty strings to NULL for nullable columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
