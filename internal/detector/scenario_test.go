package detector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payerwatch/payerwatch-mcp/internal/detector"
	"github.com/payerwatch/payerwatch-mcp/internal/embedder"
	"github.com/payerwatch/payerwatch-mcp/internal/index"
	"github.com/payerwatch/payerwatch-mcp/internal/retriever"
	"github.com/payerwatch/payerwatch-mcp/internal/storage"
	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

// TestIngestEmbedSearchLifecycle walks the full pipeline: ingest a rule,
// re-ingest it unchanged, ingest a revision, backfill embeddings, and query.
func TestIngestEmbedSearchLifecycle(t *testing.T) {
	ctx := context.Background()

	st, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer st.Close()

	payer := &storage.Payer{Name: "UnitedHealthcare", IsActive: true}
	require.NoError(t, st.CreatePayer(ctx, payer))

	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)

	det := detector.New(st)
	backfill := index.New(st, local)
	ret := retriever.New(st, local)

	batch := func(content string) *types.CrawlResults {
		return &types.CrawlResults{
			ExtractedContent: map[string]types.RuleGroup{
				"https://example.com/manual": {Rules: []types.RuleData{
					{Type: "timely_filing", Content: content},
				}},
			},
		}
	}

	// First crawl creates the rule
	stats, err := det.ProcessCrawlResults(ctx, payer.ID, batch(
		"Claims must be submitted within 90 days of the date of service."))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RulesCreated)

	// Identical crawl is a no-op
	stats, err = det.ProcessCrawlResults(ctx, payer.ID, batch(
		"Claims must be submitted within 90 days of the date of service."))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RulesUnchanged)
	assert.Equal(t, 0, stats.ChangesDetected)

	// Revised deadline supersedes version 1
	stats, err = det.ProcessCrawlResults(ctx, payer.ID, batch(
		"Claims must be submitted within 120 days of the date of service."))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RulesUpdated)

	// Backfill vectors for the current rule
	embStats, err := backfill.Run(ctx, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, embStats.RulesEmbedded)

	// Retrieval surfaces only the current version. The query lands on the
	// keyword path: no payer token or trigger phrase matches, so the whole
	// query is the search term and it is a substring of the rule content.
	resp, err := ret.Search(ctx, retriever.SearchRequest{
		Query: "claims must be submitted",
		TopK:  5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Contains(t, top.Content, "120 days")
	assert.Equal(t, 2, top.Version)
	assert.Equal(t, "UnitedHealthcare", top.PayerName)

	// The change history survives alongside
	status, err := st.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentRulesCount)
	assert.Equal(t, 2, status.TotalRuleVersions)
	assert.Equal(t, 2, status.ChangeLogsCount) // created + content_modified
}
