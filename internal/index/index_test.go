package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payerwatch/payerwatch-mcp/internal/embedder"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

// failingEmbedder always errors, to exercise the zero-vector degradation
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) (*embedder.Embedding, error) {
	return nil, errors.New("provider down")
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedder.BatchResponse, error) {
	return nil, errors.New("provider down")
}

func (f *failingEmbedder) Dimension() int   { return 4 }
func (f *failingEmbedder) Provider() string { return "failing" }
func (f *failingEmbedder) Model() string    { return "none" }
func (f *failingEmbedder) Close() error     { return nil }

func setupBackfill(t *testing.T, emb embedder.Embedder) (*Backfill, *storage.SQLiteStorage, *storage.Payer) {
	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	payer := &storage.Payer{Name: "Aetna", IsActive: true}
	require.NoError(t, st.CreatePayer(context.Background(), payer))

	return New(st, emb), st, payer
}

func seedRules(t *testing.T, st *storage.SQLiteStorage, payerID int64, n int) []*storage.Rule {
	rules := make([]*storage.Rule, n)
	for i := range rules {
		rules[i] = &storage.Rule{
			PayerID:  payerID,
			RuleType: types.RuleOther,
			Content:  "Distinct benefit rule content entry number " + string(rune('a'+i)) + " for embedding.",
		}
		require.NoError(t, st.CreateRule(context.Background(), rules[i]))
	}
	return rules
}

func TestBackfill_EmbedsPendingRules(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	b, st, payer := setupBackfill(t, local)
	ctx := context.Background()
	rules := seedRules(t, st, payer.ID, 3)

	stats, err := b.Run(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RulesScanned)
	assert.Equal(t, 3, stats.RulesEmbedded)
	assert.Equal(t, 0, stats.RulesFailed)

	for _, rule := range rules {
		got, err := st.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Len(t, got.Embedding, embedder.LocalDimension)
		assert.Equal(t, "local:hash-embeddings", got.EmbeddingModel)
	}

	// Nothing left to do on the second run
	stats, err = b.Run(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RulesScanned)
	assert.Equal(t, 0, stats.RulesEmbedded)
}

func TestBackfill_Force(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	b, st, payer := setupBackfill(t, local)
	ctx := context.Background()
	seedRules(t, st, payer.ID, 2)

	_, err = b.Run(ctx, false, nil)
	require.NoError(t, err)

	stats, err := b.Run(ctx, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RulesScanned)
	assert.Equal(t, 2, stats.RulesEmbedded)
}

func TestBackfill_ProviderFailureSubstitutesZeroVectors(t *testing.T) {
	b, st, payer := setupBackfill(t, &failingEmbedder{})
	ctx := context.Background()
	rules := seedRules(t, st, payer.ID, 2)

	stats, err := b.Run(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RulesScanned)
	assert.Equal(t, 0, stats.RulesEmbedded)
	assert.Equal(t, 2, stats.RulesFailed)

	for _, rule := range rules {
		got, err := st.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 0, 0}, got.Embedding)
		assert.Equal(t, "failing:none", got.EmbeddingModel)
	}
}

func TestBackfill_RetiredRulesIgnored(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	b, st, payer := setupBackfill(t, local)
	ctx := context.Background()
	rules := seedRules(t, st, payer.ID, 1)

	replacement := &storage.Rule{Content: "Revised benefit rule content for embedding coverage checks."}
	require.NoError(t, st.SupersedeRule(ctx, rules[0].ID, replacement))

	stats, err := b.Run(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RulesScanned)

	// Only the current version got a vector
	old, err := st.GetRule(ctx, rules[0].ID)
	require.NoError(t, err)
	assert.Nil(t, old.Embedding)

	current, err := st.GetRule(ctx, replacement.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, current.Embedding)
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "just content",
		EmbeddingText(&storage.Rule{Content: "just content"}))
	assert.Equal(t, "A title\n\nand content",
		EmbeddingText(&storage.Rule{Title: "A title", Content: "and content"}))
}

func TestBackfill_BatchSizeConfig(t *testing.T) {
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	b, st, payer := setupBackfill(t, local)
	seedRules(t, st, payer.ID, 7)

	stats, err := b.Run(context.Background(), false, &Config{BatchSize: 2, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.RulesEmbedded)
}
