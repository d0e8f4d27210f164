package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	st, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func createTestPayer(t *testing.T, st *SQLiteStorage, name string) *Payer {
	payer := &Payer{Name: name, IsActive: true}
	require.NoError(t, st.CreatePayer(context.Background(), payer))
	return payer
}

func TestNewSQLiteStorage(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	assert.NotNil(t, st)
	assert.NotNil(t, st.db)
}

func TestCreatePayer(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := &Payer{
		Name:         "UnitedHealthcare",
		TickerSymbol: "UNH",
		BaseDomain:   "uhcprovider.com",
		IsActive:     true,
	}

	err := st.CreatePayer(ctx, payer)
	require.NoError(t, err)
	assert.Greater(t, payer.ID, int64(0))

	// Duplicate name should fail
	duplicate := &Payer{Name: "UnitedHealthcare"}
	err = st.CreatePayer(ctx, duplicate)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetPayerByName(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	retrieved, err := st.GetPayerByName(ctx, "Aetna")
	require.NoError(t, err)
	assert.Equal(t, payer.ID, retrieved.ID)

	// Lookup is case-insensitive
	retrieved, err = st.GetPayerByName(ctx, "aetna")
	require.NoError(t, err)
	assert.Equal(t, payer.ID, retrieved.ID)

	_, err = st.GetPayerByName(ctx, "Cigna")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPayers(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	createTestPayer(t, st, "Cigna")
	createTestPayer(t, st, "Aetna")

	inactive := &Payer{Name: "Humana", IsActive: true}
	require.NoError(t, st.CreatePayer(ctx, inactive))
	_, err := st.db.ExecContext(ctx, `UPDATE payers SET is_active = 0 WHERE id = ?`, inactive.ID)
	require.NoError(t, err)

	all, err := st.ListPayers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	// Ordered by name
	assert.Equal(t, "Aetna", all[0].Name)

	active, err := st.ListPayers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestCreateAndGetRule(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	confidence := 0.92
	rule := &Rule{
		PayerID:        payer.ID,
		RuleType:       types.RuleTimelyFiling,
		RuleIdentifier: "abc123",
		Title:          "Timely filing",
		Content:        "Claims must be submitted within 90 days of the date of service.",
		SourceURL:      "https://example.com/manual.pdf",
		Confidence:     &confidence,
	}

	err := st.CreateRule(ctx, rule)
	require.NoError(t, err)
	assert.Greater(t, rule.ID, int64(0))
	assert.Equal(t, 1, rule.Version)
	assert.True(t, rule.IsCurrent)

	retrieved, err := st.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.Content, retrieved.Content)
	assert.Equal(t, types.RuleTimelyFiling, retrieved.RuleType)
	assert.Equal(t, "abc123", retrieved.RuleIdentifier)
	assert.Nil(t, retrieved.SupersedesID)
	require.NotNil(t, retrieved.Confidence)
	assert.InDelta(t, 0.92, *retrieved.Confidence, 0.0001)

	_, err = st.GetRule(ctx, 99999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSupersedeRule(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	original := &Rule{
		PayerID:        payer.ID,
		RuleType:       types.RuleTimelyFiling,
		RuleIdentifier: "abc123",
		Content:        "Claims must be submitted within 90 days of the date of service.",
	}
	require.NoError(t, st.CreateRule(ctx, original))

	newVersion := &Rule{
		Content: "Claims must be submitted within 120 days of the date of service.",
	}
	require.NoError(t, st.SupersedeRule(ctx, original.ID, newVersion))

	// New version inherits identity and increments version
	assert.Equal(t, payer.ID, newVersion.PayerID)
	assert.Equal(t, types.RuleTimelyFiling, newVersion.RuleType)
	assert.Equal(t, "abc123", newVersion.RuleIdentifier)
	assert.Equal(t, 2, newVersion.Version)
	require.NotNil(t, newVersion.SupersedesID)
	assert.Equal(t, original.ID, *newVersion.SupersedesID)

	// Old version is retired, new one is current
	old, err := st.GetRule(ctx, original.ID)
	require.NoError(t, err)
	assert.False(t, old.IsCurrent)

	current, err := st.CurrentRules(ctx, payer.ID, types.RuleTimelyFiling)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, newVersion.ID, current[0].ID)

	// Superseding an already-retired rule fails
	another := &Rule{Content: "Claims must be submitted within 180 days of the date of service."}
	err = st.SupersedeRule(ctx, original.ID, another)
	assert.ErrorIs(t, err, ErrNotCurrent)
}

func TestSupersedeRule_Chain(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	rule := &Rule{
		PayerID:        payer.ID,
		RuleType:       types.RuleAppeals,
		RuleIdentifier: "chain",
		Content:        "Appeals must be filed within 60 days of the denial notice.",
	}
	require.NoError(t, st.CreateRule(ctx, rule))

	prevID := rule.ID
	for v := 2; v <= 5; v++ {
		next := &Rule{Content: "Appeals must be filed within 60 days of the denial notice. Revision."}
		require.NoError(t, st.SupersedeRule(ctx, prevID, next))
		assert.Equal(t, v, next.Version)
		prevID = next.ID
	}

	// Exactly one current rule, version 5
	current, err := st.CurrentRules(ctx, payer.ID, types.RuleAppeals)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 5, current[0].Version)

	// Walking supersedes pointers reaches version 1
	var versions []int
	id := current[0].ID
	for {
		r, err := st.GetRule(ctx, id)
		require.NoError(t, err)
		versions = append(versions, r.Version)
		if r.SupersedesID == nil {
			break
		}
		id = *r.SupersedesID
	}
	assert.Equal(t, []int{5, 4, 3, 2, 1}, versions)
}

func TestSupersedeRule_NotFound(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	err := st.SupersedeRule(context.Background(), 404, &Rule{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchRulesKeyword(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	rules := []*Rule{
		{PayerID: payer.ID, RuleType: types.RuleTimelyFiling, Content: "Claims must be submitted within 90 days. Timely filing applies."},
		{PayerID: payer.ID, RuleType: types.RulePriorAuthorization, Content: "Prior authorization is required for MRI scans."},
		{PayerID: payer.ID, RuleType: types.RuleAppeals, Title: "Appeal process", Content: "Submit a written request to the appeals department."},
	}
	for _, r := range rules {
		require.NoError(t, st.CreateRule(ctx, r))
	}

	// Match on content, case-insensitive
	found, err := st.SearchRulesKeyword(ctx, []string{"TIMELY FILING"}, nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, rules[0].ID, found[0].ID)

	// Match on title too
	found, err = st.SearchRulesKeyword(ctx, []string{"appeal"}, nil, nil, 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	// Multiple terms OR together
	found, err = st.SearchRulesKeyword(ctx, []string{"authorization", "timely filing"}, nil, nil, 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	// Rule type filter
	rt := types.RulePriorAuthorization
	found, err = st.SearchRulesKeyword(ctx, []string{"authorization", "timely filing"}, nil, &rt, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, types.RulePriorAuthorization, found[0].RuleType)

	// Retired rules are invisible
	replacement := &Rule{Content: "Claims must be submitted within 120 days. Timely filing applies."}
	require.NoError(t, st.SupersedeRule(ctx, rules[0].ID, replacement))
	found, err = st.SearchRulesKeyword(ctx, []string{"90 days"}, nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)

	// No terms, no results
	found, err = st.SearchRulesKeyword(ctx, nil, nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestUpdateRuleEmbedding(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	rule := &Rule{
		PayerID:  payer.ID,
		RuleType: types.RuleCoveragePolicy,
		Content:  "Coverage for physical therapy is limited to 30 visits per year.",
	}
	require.NoError(t, st.CreateRule(ctx, rule))

	vector := []float32{0.1, -0.5, 0.25, 1.0}
	require.NoError(t, st.UpdateRuleEmbedding(ctx, rule.ID, vector, "local:hash-embeddings"))

	retrieved, err := st.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, vector, retrieved.Embedding)
	assert.Equal(t, "local:hash-embeddings", retrieved.EmbeddingModel)

	err = st.UpdateRuleEmbedding(ctx, 99999, vector, "local:hash-embeddings")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRulesNeedingEmbedding(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	embedded := &Rule{PayerID: payer.ID, RuleType: types.RuleOther, Content: "Rule with a vector already."}
	bare := &Rule{PayerID: payer.ID, RuleType: types.RuleOther, Content: "Rule still waiting for one."}
	require.NoError(t, st.CreateRule(ctx, embedded))
	require.NoError(t, st.CreateRule(ctx, bare))
	require.NoError(t, st.UpdateRuleEmbedding(ctx, embedded.ID, []float32{1, 0}, "local:hash-embeddings"))

	pending, err := st.RulesNeedingEmbedding(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bare.ID, pending[0].ID)

	all, err := st.RulesNeedingEmbedding(ctx, true, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCurrentRulesWithEmbeddings(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payerA := createTestPayer(t, st, "Aetna")
	payerB := createTestPayer(t, st, "Cigna")

	r1 := &Rule{PayerID: payerA.ID, RuleType: types.RuleTimelyFiling, Content: "Aetna filing rule content here."}
	r2 := &Rule{PayerID: payerB.ID, RuleType: types.RuleTimelyFiling, Content: "Cigna filing rule content here."}
	require.NoError(t, st.CreateRule(ctx, r1))
	require.NoError(t, st.CreateRule(ctx, r2))
	require.NoError(t, st.UpdateRuleEmbedding(ctx, r1.ID, []float32{1, 0}, "local:hash-embeddings"))

	// Only embedded rules come back
	rules, err := st.CurrentRulesWithEmbeddings(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, r1.ID, rules[0].ID)

	// Payer filter
	rules, err = st.CurrentRulesWithEmbeddings(ctx, &payerB.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestDocuments(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	doc := &Document{
		PayerID:      payer.ID,
		DocumentType: "pdf",
		Title:        "Provider Manual",
		SourceURL:    "https://example.com/manual.pdf",
		RawContent:   "manual text",
		ContentHash:  "deadbeef",
	}
	require.NoError(t, st.CreateDocument(ctx, doc))
	assert.Greater(t, doc.ID, int64(0))

	// Duplicate (payer, url) fails
	dup := &Document{PayerID: payer.ID, DocumentType: "pdf", SourceURL: doc.SourceURL}
	assert.ErrorIs(t, st.CreateDocument(ctx, dup), ErrAlreadyExists)

	retrieved, err := st.GetDocumentByURL(ctx, payer.ID, doc.SourceURL)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", retrieved.ContentHash)

	retrieved.RawContent = "updated text"
	retrieved.ContentHash = "cafebabe"
	require.NoError(t, st.UpdateDocumentContent(ctx, retrieved))

	retrieved, err = st.GetDocumentByURL(ctx, payer.ID, doc.SourceURL)
	require.NoError(t, err)
	assert.Equal(t, "cafebabe", retrieved.ContentHash)
	assert.Equal(t, "updated text", retrieved.RawContent)

	require.NoError(t, st.TouchDocument(ctx, retrieved.ID, time.Now()))

	_, err = st.GetDocumentByURL(ctx, payer.ID, "https://example.com/missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangeLogs(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	rule := &Rule{PayerID: payer.ID, RuleType: types.RuleTimelyFiling, Content: "Claims must be submitted within 90 days."}
	require.NoError(t, st.CreateRule(ctx, rule))

	entry := &ChangeLogEntry{
		RuleID:     rule.ID,
		ChangeType: types.ChangeContentModified,
		OldValue:   Snapshot{"content": "old", "version": 1},
		NewValue:   Snapshot{"content": "new", "version": 2},
		Diff: &types.DiffResult{
			AddedLines:   []string{"new"},
			RemovedLines: []string{"old"},
			TotalChanges: 2,
			Similarity:   0.4,
		},
		DetectedBy: "change_detector",
	}
	require.NoError(t, st.AppendChangeLog(ctx, entry))
	assert.Greater(t, entry.ID, int64(0))

	recent, err := st.RecentChanges(ctx, nil, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	got := recent[0]
	assert.Equal(t, types.ChangeContentModified, got.ChangeType)
	assert.Equal(t, "old", got.OldValue["content"])
	assert.Equal(t, "new", got.NewValue["content"])
	require.NotNil(t, got.Diff)
	assert.Equal(t, []string{"new"}, got.Diff.AddedLines)
	assert.Equal(t, 2, got.Diff.TotalChanges)
	assert.InDelta(t, 0.4, got.Diff.Similarity, 0.0001)
	assert.False(t, got.AlertSent)

	// Payer filter via the rule join
	other := createTestPayer(t, st, "Cigna")
	recent, err = st.RecentChanges(ctx, &other.ID, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	// Mark alerted
	unalerted, err := st.UnalertedChanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unalerted, 1)

	require.NoError(t, st.MarkChangesAlerted(ctx, []int64{entry.ID}, time.Now()))
	unalerted, err = st.UnalertedChanges(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unalerted)
}

func TestAlerts(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	alert := &Alert{
		AlertType: "rule_changes",
		Severity:  types.SeverityMedium,
		Title:     "Rule changes detected for Aetna",
		Message:   "6 rule change(s) detected",
		PayerID:   &payer.ID,
	}
	require.NoError(t, st.CreateAlert(ctx, alert))
	assert.Greater(t, alert.ID, int64(0))

	alerts, err := st.ListAlerts(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, types.SeverityMedium, alerts[0].Severity)
	assert.False(t, alerts[0].IsRead)

	require.NoError(t, st.MarkAlertRead(ctx, alert.ID, time.Now()))

	alerts, err = st.ListAlerts(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = st.ListAlerts(ctx, false, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].IsRead)
	assert.NotNil(t, alerts[0].ReadAt)

	assert.ErrorIs(t, st.MarkAlertRead(ctx, 99999, time.Now()), ErrNotFound)
}

func TestIngestJobs(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	job := &IngestJob{JobID: "job-001", PayerID: payer.ID}
	require.NoError(t, st.CreateIngestJob(ctx, job))
	assert.Equal(t, "running", job.Status)

	job.Status = "completed"
	job.RulesCreated = 3
	job.RulesUnchanged = 7
	job.ChangesDetected = 3
	require.NoError(t, st.FinishIngestJob(ctx, job))
	assert.NotNil(t, job.CompletedAt)
}

func TestGetStatus(t *testing.T) {
	st := setupTestDB(t)
	defer st.Close()

	ctx := context.Background()
	payer := createTestPayer(t, st, "Aetna")

	rule := &Rule{PayerID: payer.ID, RuleType: types.RuleOther, Content: "Some rule content for status."}
	require.NoError(t, st.CreateRule(ctx, rule))
	replacement := &Rule{Content: "Some revised rule content for status."}
	require.NoError(t, st.SupersedeRule(ctx, rule.ID, replacement))
	require.NoError(t, st.UpdateRuleEmbedding(ctx, replacement.ID, []float32{1}, "local:hash-embeddings"))

	status, err := st.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PayersCount)
	assert.Equal(t, 1, status.CurrentRulesCount)
	assert.Equal(t, 2, status.TotalRuleVersions)
	assert.Equal(t, 1, status.EmbeddedRulesCount)
}

func TestVectorRoundTrip(t *testing.T) {
	vector := []float32{0.5, -1.25, 3.75, 0}
	blob := SerializeVector(vector)
	assert.Len(t, blob, 16)
	assert.Equal(t, vector, DeserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 0.0001)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 0.0001)

	// Zero vectors and dimension mismatches score 0
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
}
