package index

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/payerwatch/payerwatch-mcp/internal/embedder"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
)

// DefaultWorkers is the number of embedding batches processed concurrently
const DefaultWorkers = 4

// Backfill embeds current rules that have no vector yet (or all of them when
// forced, e.g. after a provider switch).
type Backfill struct {
	storage   storage.Storage
	embedder  embedder.Embedder
	batchSize int
	workers   int
}

// Config contains configuration for the backfill
type Config struct {
	BatchSize int // Texts per provider call (default: embedder.DefaultBatchSize)
	Workers   int // Concurrent batches in flight (default: DefaultWorkers)
}

// Stats contains statistics about one backfill run
type Stats struct {
	RulesScanned  int
	RulesEmbedded int
	RulesFailed   int
	Duration      time.Duration
}

// New creates a new Backfill instance
func New(st storage.Storage, emb embedder.Embedder) *Backfill {
	return &Backfill{
		storage:   st,
		embedder:  emb,
		batchSize: embedder.DefaultBatchSize,
		workers:   DefaultWorkers,
	}
}

// Run embeds all current rules missing a vector. With force set, every
// current rule is re-embedded regardless of its existing vector.
//
// A provider failure on a batch does not abort the run: the affected rules
// get a zero vector (which scores 0 against every query) so the batch stays
// retrievable through the keyword path, and the failure is counted.
func (b *Backfill) Run(ctx context.Context, force bool, config *Config) (*Stats, error) {
	if config == nil {
		config = &Config{}
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = b.batchSize
	}
	if batchSize > embedder.MaxBatchSize {
		batchSize = embedder.MaxBatchSize
	}
	workers := config.Workers
	if workers <= 0 {
		workers = b.workers
	}

	startTime := time.Now()

	rules, err := b.storage.RulesNeedingEmbedding(ctx, force, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules needing embedding: %w", err)
	}

	stats := &Stats{RulesScanned: len(rules)}
	if len(rules) == 0 {
		stats.Duration = time.Since(startTime)
		return stats, nil
	}

	modelTag := embedder.ModelTag(b.embedder)

	type batchResult struct {
		embedded int
		failed   int
	}
	results := make([]batchResult, (len(rules)+batchSize-1)/batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for start := 0; start < len(rules); start += batchSize {
		end := start + batchSize
		if end > len(rules) {
			end = len(rules)
		}
		batch := rules[start:end]
		slot := &results[start/batchSize]

		g.Go(func() error {
			embedded, failed, err := b.embedBatch(gctx, batch, modelTag)
			if err != nil {
				return err
			}
			slot.embedded = embedded
			slot.failed = failed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		stats.RulesEmbedded += r.embedded
		stats.RulesFailed += r.failed
	}
	stats.Duration = time.Since(startTime)
	return stats, nil
}

// embedBatch embeds one batch of rules and persists the vectors. Returns a
// non-nil error only for storage failures; provider failures degrade to zero
// vectors.
func (b *Backfill) embedBatch(ctx context.Context, batch []*storage.Rule, modelTag string) (embedded, failed int, err error) {
	texts := make([]string, len(batch))
	for i, rule := range batch {
		texts[i] = EmbeddingText(rule)
	}

	resp, embErr := b.embedder.EmbedBatch(ctx, texts)
	if embErr != nil {
		log.Printf("embedding batch of %d rules failed, substituting zero vectors: %v", len(batch), embErr)
		zero := make([]float32, b.embedder.Dimension())
		for _, rule := range batch {
			if err := b.storage.UpdateRuleEmbedding(ctx, rule.ID, zero, modelTag); err != nil {
				return embedded, failed, fmt.Errorf("failed to store zero vector for rule %d: %w", rule.ID, err)
			}
			failed++
		}
		return embedded, failed, nil
	}

	if len(resp.Embeddings) != len(batch) {
		return 0, 0, fmt.Errorf("provider returned %d embeddings for %d rules", len(resp.Embeddings), len(batch))
	}

	for i, rule := range batch {
		if err := b.storage.UpdateRuleEmbedding(ctx, rule.ID, resp.Embeddings[i].Vector, modelTag); err != nil {
			return embedded, failed, fmt.Errorf("failed to store embedding for rule %d: %w", rule.ID, err)
		}
		embedded++
	}
	return embedded, failed, nil
}

// EmbeddingText builds the text embedded for a rule: the title (when set)
// concatenated with the content, so short titles still influence the vector.
func EmbeddingText(rule *storage.Rule) string {
	if rule.Title == "" {
		return rule.Content
	}
	return rule.Title + "\n\n" + rule.Content
}
