package storage

import (
	"context"
	"time"

	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying the rule
// knowledge base. It is the single owner of all persisted rows; the change
// engine and the retriever are stateless services over it.
type Storage interface {
	// Payer operations
	CreatePayer(ctx context.Context, payer *Payer) error
	GetPayer(ctx context.Context, payerID int64) (*Payer, error)
	GetPayerByName(ctx context.Context, name string) (*Payer, error)
	ListPayers(ctx context.Context, activeOnly bool) ([]*Payer, error)

	// Rule operations
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, ruleID int64) (*Rule, error)
	CurrentRules(ctx context.Context, payerID int64, ruleType types.RuleType) ([]*Rule, error)

	// SupersedeRule atomically marks the old rule as not current and inserts
	// the new version (version = old.version + 1, supersedes = old id). A
	// reader never observes one side of the flip without the other.
	SupersedeRule(ctx context.Context, oldRuleID int64, newRule *Rule) error

	// Retrieval reads
	CurrentRulesWithEmbeddings(ctx context.Context, payerID *int64, ruleType *types.RuleType) ([]*Rule, error)
	SearchRulesKeyword(ctx context.Context, terms []string, payerID *int64, ruleType *types.RuleType, limit int) ([]*Rule, error)

	// Embedding backfill
	RulesNeedingEmbedding(ctx context.Context, force bool, limit int) ([]*Rule, error)
	UpdateRuleEmbedding(ctx context.Context, ruleID int64, vector []float32, model string) error

	// Document operations
	GetDocumentByURL(ctx context.Context, payerID int64, sourceURL string) (*Document, error)
	CreateDocument(ctx context.Context, doc *Document) error
	UpdateDocumentContent(ctx context.Context, doc *Document) error
	TouchDocument(ctx context.Context, documentID int64, checkedAt time.Time) error

	// Change log operations
	AppendChangeLog(ctx context.Context, entry *ChangeLogEntry) error
	RecentChanges(ctx context.Context, payerID *int64, since time.Time, limit int) ([]*ChangeLogEntry, error)
	UnalertedChanges(ctx context.Context, limit int) ([]*ChangeLogEntry, error)
	MarkChangesAlerted(ctx context.Context, entryIDs []int64, sentAt time.Time) error

	// Alert operations
	CreateAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, unreadOnly bool, limit int) ([]*Alert, error)
	MarkAlertRead(ctx context.Context, alertID int64, readAt time.Time) error

	// Ingest job operations
	CreateIngestJob(ctx context.Context, job *IngestJob) error
	FinishIngestJob(ctx context.Context, job *IngestJob) error

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
}

// Payer is an insurer/administrator whose rules are tracked.
type Payer struct {
	ID              int64
	Name            string
	TickerSymbol    string
	BaseDomain      string
	ProviderPortal  string
	Priority        string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Rule is one versioned unit of extracted policy text. Rows are never
// mutated in place; a content change inserts a new version and flips the old
// row's IsCurrent flag.
type Rule struct {
	ID             int64
	PayerID        int64
	RuleType       types.RuleType
	RuleIdentifier string // stable key grouping versions of one logical rule

	Title   string
	Content string
	Summary string

	Version      int
	IsCurrent    bool
	SupersedesID *int64 // previous version's id, nil for version 1

	EffectiveDate  *time.Time
	ExpirationDate *time.Time

	SourceURL        string
	SourceDocumentID *int64
	SourcePage       *int

	Embedding      []float32 // nil until the backfill runs
	EmbeddingModel string    // "<provider>:<model>" tag

	Confidence *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the JSON-encoded old/new state captured on a change log.
type Snapshot map[string]any

// ChangeLogEntry is the immutable audit record of one non-unchanged ingest
// decision. Only the alert-dispatched fields may change after creation.
type ChangeLogEntry struct {
	ID         int64
	RuleID     int64
	ChangeType types.ChangeType

	OldValue Snapshot
	NewValue Snapshot
	Diff     *types.DiffResult

	DetectedBy string
	ChangedAt  time.Time

	AlertSent   bool
	AlertSentAt *time.Time
}

// Alert summarizes the changes one ingestion batch produced. Dispatch to a
// notification channel is an external collaborator's responsibility.
type Alert struct {
	ID        int64
	AlertType string
	Severity  types.Severity
	Title     string
	Message   string

	PayerID     *int64
	RuleID      *int64
	ChangeLogID *int64

	IsRead     bool
	IsResolved bool

	CreatedAt  time.Time
	ReadAt     *time.Time
	ResolvedAt *time.Time
}

// Document is a source document observed during ingestion, deduplicated by
// (payer, source URL) with a SHA-256 content hash for change detection.
type Document struct {
	ID            int64
	PayerID       int64
	DocumentType  string
	Title         string
	Filename      string
	SourceURL     string
	LocalFilePath string

	RawContent  string
	ContentHash string // hex-encoded SHA-256 of the extracted text

	DownloadedAt  time.Time
	LastCheckedAt time.Time

	IsCurrent        bool
	ProcessingStatus string
}

// IngestJob records one ingestion batch run and its result counters.
type IngestJob struct {
	ID      int64
	JobID   string // external UUID
	PayerID int64
	Status  string // running, completed, failed

	StartedAt   time.Time
	CompletedAt *time.Time

	RulesCreated     int
	RulesUpdated     int
	RulesUnchanged   int
	RulesSkipped     int
	DocumentsCreated int
	DocumentsUpdated int
	ChangesDetected  int
	Errors           int
	ErrorMessage     string
}

// Status contains statistics about the knowledge base.
type Status struct {
	PayersCount        int
	CurrentRulesCount  int
	TotalRuleVersions  int
	EmbeddedRulesCount int
	DocumentsCount     int
	ChangeLogsCount    int
	AlertsCount        int
	UnreadAlertsCount  int
}
