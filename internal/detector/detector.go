package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/payerwatch/payerwatch-mcp/internal/similarity"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

const (
	// MinContentLength filters out extraction noise: fragments shorter than
	// this are never stored as rules.
	MinContentLength = 20

	// UnchangedThreshold and above means the incoming content is the same
	// rule text, modulo whitespace-level drift. No new version is written.
	UnchangedThreshold = 0.99

	// UpdateThreshold and above (but below UnchangedThreshold) means the
	// incoming content is a revision of an existing rule. Below it the
	// content is a new rule.
	UpdateThreshold = 0.85

	// identifierPrefixLen bounds how much content feeds the rule identifier
	identifierPrefixLen = 100

	detectedBy = "change_detector"
)

// ErrIngestInProgress is returned when an ingest for the same payer is
// already running.
var ErrIngestInProgress = errors.New("ingest already in progress for payer")

// Detector is the change engine: it turns raw crawl batches into versioned
// rules, change-log entries and a batch alert.
type Detector struct {
	storage storage.Storage
	locks   *lockRegistry
}

// Stats reports what one ingestion batch did.
type Stats struct {
	JobID string

	RulesCreated     int
	RulesUpdated     int
	RulesUnchanged   int
	RulesSkipped     int
	DocumentsCreated int
	DocumentsUpdated int
	ChangesDetected  int
	Errors           int
}

// New creates a new Detector instance
func New(st storage.Storage) *Detector {
	return &Detector{
		storage: st,
		locks:   newLockRegistry(),
	}
}

// ProcessCrawlResults ingests one crawl batch for one payer. The payer must
// already exist; a missing payer fails the whole batch before any write.
// Per-item extraction problems are logged and counted, never fatal.
//
// Only one ingest per payer runs at a time; a concurrent call returns
// ErrIngestInProgress.
func (d *Detector) ProcessCrawlResults(ctx context.Context, payerID int64, results *types.CrawlResults) (*Stats, error) {
	payer, err := d.storage.GetPayer(ctx, payerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("payer %d does not exist: %w", payerID, err)
		}
		return nil, fmt.Errorf("failed to load payer %d: %w", payerID, err)
	}

	lock := d.locks.forPayer(payerID)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("payer %d: %w", payerID, ErrIngestInProgress)
	}
	defer lock.Release()

	job := &storage.IngestJob{
		JobID:   uuid.NewString(),
		PayerID: payerID,
	}
	if err := d.storage.CreateIngestJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create ingest job: %w", err)
	}

	stats := &Stats{JobID: job.JobID}
	changeLogIDs := d.processBatch(ctx, payer, results, stats)

	if stats.ChangesDetected > 0 {
		if err := d.createBatchAlert(ctx, payer, stats, changeLogIDs); err != nil {
			log.Printf("failed to create alert for ingest %s: %v", job.JobID, err)
			stats.Errors++
		}
	}

	job.Status = "completed"
	job.RulesCreated = stats.RulesCreated
	job.RulesUpdated = stats.RulesUpdated
	job.RulesUnchanged = stats.RulesUnchanged
	job.RulesSkipped = stats.RulesSkipped
	job.DocumentsCreated = stats.DocumentsCreated
	job.DocumentsUpdated = stats.DocumentsUpdated
	job.ChangesDetected = stats.ChangesDetected
	job.Errors = stats.Errors
	if err := d.storage.FinishIngestJob(ctx, job); err != nil {
		return stats, fmt.Errorf("failed to finish ingest job %s: %w", job.JobID, err)
	}

	return stats, nil
}

// processBatch runs the document pass and the rule pass, returning the ids
// of the change-log entries the batch produced.
func (d *Detector) processBatch(ctx context.Context, payer *storage.Payer, results *types.CrawlResults, stats *Stats) []int64 {
	var changeLogIDs []int64

	docIDs := make(map[string]int64, len(results.Documents))
	for i := range results.Documents {
		doc := &results.Documents[i]
		docID, err := d.processDocument(ctx, payer.ID, doc, stats)
		if err != nil {
			log.Printf("document %s: %v", doc.URL, err)
			stats.Errors++
			continue
		}
		docIDs[doc.URL] = docID
	}

	// Rules grouped by payload type
	for source, group := range results.ExtractedContent {
		for _, rd := range group.Rules {
			ids, err := d.processRule(ctx, payer.ID, rd, source, nil, stats)
			if err != nil {
				log.Printf("rule from %s: %v", source, err)
				stats.Errors++
				continue
			}
			changeLogIDs = append(changeLogIDs, ids...)
		}
	}

	// Rules attached to individual documents carry the document id
	for i := range results.Documents {
		doc := &results.Documents[i]
		var docID *int64
		if id, ok := docIDs[doc.URL]; ok {
			docID = &id
		}
		for _, rd := range doc.ExtractedContent.ExtractedRules {
			ids, err := d.processRule(ctx, payer.ID, rd, doc.URL, docID, stats)
			if err != nil {
				log.Printf("rule from document %s: %v", doc.URL, err)
				stats.Errors++
				continue
			}
			changeLogIDs = append(changeLogIDs, ids...)
		}
	}

	return changeLogIDs
}

// processDocument dedupes a crawled document by (payer, URL) and SHA-256 of
// its extracted text.
func (d *Detector) processDocument(ctx context.Context, payerID int64, doc *types.DocumentData, stats *Stats) (int64, error) {
	if doc.URL == "" {
		return 0, errors.New("document has no URL")
	}

	hash := sha256.Sum256([]byte(doc.ExtractedContent.Text))
	contentHash := hex.EncodeToString(hash[:])

	existing, err := d.storage.GetDocumentByURL(ctx, payerID, doc.URL)
	if errors.Is(err, storage.ErrNotFound) {
		created := &storage.Document{
			PayerID:      payerID,
			DocumentType: "pdf",
			Title:        doc.Title,
			Filename:     doc.Filename,
			SourceURL:    doc.URL,

			LocalFilePath: doc.LocalFile,
			RawContent:    doc.ExtractedContent.Text,
			ContentHash:   contentHash,
		}
		if err := d.storage.CreateDocument(ctx, created); err != nil {
			return 0, err
		}
		stats.DocumentsCreated++
		return created.ID, nil
	}
	if err != nil {
		return 0, err
	}

	if existing.ContentHash != contentHash {
		existing.RawContent = doc.ExtractedContent.Text
		existing.ContentHash = contentHash
		if err := d.storage.UpdateDocumentContent(ctx, existing); err != nil {
			return 0, err
		}
		stats.DocumentsUpdated++
		return existing.ID, nil
	}

	return existing.ID, d.storage.TouchDocument(ctx, existing.ID, time.Now())
}

// processRule classifies one extracted rule as created, updated or unchanged
// against the payer's current rules of the same type.
func (d *Detector) processRule(ctx context.Context, payerID int64, rd types.RuleData, source string, sourceDocID *int64, stats *Stats) ([]int64, error) {
	if len(rd.Content) < MinContentLength {
		stats.RulesSkipped++
		return nil, nil
	}

	ruleType := types.ParseRuleType(rd.Type)
	identifier := RuleIdentifier(payerID, ruleType, rd.Content)

	candidates, err := d.storage.CurrentRules(ctx, payerID, ruleType)
	if err != nil {
		return nil, fmt.Errorf("failed to load current rules: %w", err)
	}

	best, score := similarity.BestMatch(candidates, rd.Content)

	switch {
	case best != nil && score >= UnchangedThreshold:
		stats.RulesUnchanged++
		return nil, nil

	case best != nil && score >= UpdateThreshold:
		newRule := &storage.Rule{
			Content:          rd.Content,
			Title:            best.Title,
			SourceURL:        source,
			SourceDocumentID: sourceDocID,
			Confidence:       rd.Confidence,
		}
		if err := d.storage.SupersedeRule(ctx, best.ID, newRule); err != nil {
			return nil, fmt.Errorf("failed to supersede rule %d: %w", best.ID, err)
		}

		diff := similarity.Diff(best.Content, rd.Content)
		entry := &storage.ChangeLogEntry{
			RuleID:     newRule.ID,
			ChangeType: types.ChangeContentModified,
			OldValue:   ruleSnapshot(best),
			NewValue:   ruleSnapshot(newRule),
			Diff:       &diff,
			DetectedBy: detectedBy,
		}
		if err := d.storage.AppendChangeLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to append change log: %w", err)
		}

		stats.RulesUpdated++
		stats.ChangesDetected++
		return []int64{entry.ID}, nil

	default:
		rule := &storage.Rule{
			PayerID:          payerID,
			RuleType:         ruleType,
			RuleIdentifier:   identifier,
			Content:          rd.Content,
			SourceURL:        source,
			SourceDocumentID: sourceDocID,
			Confidence:       rd.Confidence,
			Version:          1,
		}
		if err := d.storage.CreateRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("failed to create rule: %w", err)
		}

		entry := &storage.ChangeLogEntry{
			RuleID:     rule.ID,
			ChangeType: types.ChangeCreated,
			NewValue:   ruleSnapshot(rule),
			DetectedBy: detectedBy,
		}
		if err := d.storage.AppendChangeLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to append change log: %w", err)
		}

		stats.RulesCreated++
		stats.ChangesDetected++
		return []int64{entry.ID}, nil
	}
}

// createBatchAlert writes the one alert that summarizes the batch and marks
// its change-log entries as dispatched.
func (d *Detector) createBatchAlert(ctx context.Context, payer *storage.Payer, stats *Stats, changeLogIDs []int64) error {
	severity := types.SeverityForChanges(stats.ChangesDetected)

	alert := &storage.Alert{
		AlertType: "rule_changes",
		Severity:  severity,
		Title:     fmt.Sprintf("Rule changes detected for %s", payer.Name),
		Message: fmt.Sprintf("%d rule change(s) detected for %s: %d new rule(s), %d updated rule(s)",
			stats.ChangesDetected, payer.Name, stats.RulesCreated, stats.RulesUpdated),
		PayerID: &payer.ID,
	}
	if err := d.storage.CreateAlert(ctx, alert); err != nil {
		return err
	}

	return d.storage.MarkChangesAlerted(ctx, changeLogIDs, time.Now())
}

// RuleIdentifier derives the stable identifier grouping versions of one
// logical rule: a SHA-256 over payer, type and a content prefix.
func RuleIdentifier(payerID int64, ruleType types.RuleType, content string) string {
	prefix := content
	if runes := []rune(prefix); len(runes) > identifierPrefixLen {
		prefix = string(runes[:identifierPrefixLen])
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", payerID, ruleType, prefix)))
	return hex.EncodeToString(h[:])
}

// ruleSnapshot captures the fields worth auditing on a change log.
func ruleSnapshot(rule *storage.Rule) storage.Snapshot {
	return storage.Snapshot{
		"content": rule.Content,
		"version": rule.Version,
	}
}
