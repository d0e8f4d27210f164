package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/payerwatch/payerwatch-mcp/internal/storage"
)

func TestRatio_Identical(t *testing.T) {
	text := "Claims must be submitted within 90 days of the date of service."
	assert.Equal(t, 1.0, Ratio(text, text))
}

func TestRatio_BothEmpty(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
}

func TestRatio_OneEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("", "some content"))
	assert.Equal(t, 0.0, Ratio("some content", ""))
}

func TestRatio_Disjoint(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("aaaa", "bbbb"))
}

func TestRatio_Symmetric(t *testing.T) {
	a := "Prior authorization is required for all inpatient admissions."
	b := "Prior authorization is required for elective inpatient admissions."
	assert.Equal(t, Ratio(a, b), Ratio(b, a))
}

func TestRatio_SmallEdit(t *testing.T) {
	a := "Claims must be submitted within 90 days of the date of service."
	b := "Claims must be submitted within 120 days of the date of service."

	// 62 matched characters out of 63+64
	assert.InDelta(t, 0.976, Ratio(a, b), 0.005)
}

func TestRatio_Range(t *testing.T) {
	pairs := [][2]string{
		{"appeal within 60 days", "appeal within 180 days"},
		{"timely filing", "prior authorization"},
		{"a", "ab"},
	}
	for _, p := range pairs {
		r := Ratio(p[0], p[1])
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
	}
}

func TestBestMatch_PicksHighestScore(t *testing.T) {
	content := "Claims must be submitted within 120 days of the date of service."
	candidates := []*storage.Rule{
		{ID: 1, Content: "Appeals must be filed within 180 days of the denial."},
		{ID: 2, Content: "Claims must be submitted within 90 days of the date of service."},
		{ID: 3, Content: "Prior authorization is required for MRI scans."},
	}

	best, score := BestMatch(candidates, content)
	assert.NotNil(t, best)
	assert.Equal(t, int64(2), best.ID)
	assert.Greater(t, score, 0.9)
}

func TestBestMatch_NoCandidates(t *testing.T) {
	best, score := BestMatch(nil, "anything")
	assert.Nil(t, best)
	assert.Equal(t, 0.0, score)
}

func TestBestMatch_TieBreaksToLowestID(t *testing.T) {
	content := "Members may appeal any adverse determination in writing."
	candidates := []*storage.Rule{
		{ID: 7, Content: content},
		{ID: 3, Content: content},
		{ID: 5, Content: content},
	}

	best, score := BestMatch(candidates, content)
	assert.Equal(t, int64(3), best.ID)
	assert.Equal(t, 1.0, score)
}

func TestDiff_Identical(t *testing.T) {
	text := "line one\nline two\nline three"
	d := Diff(text, text)

	assert.Empty(t, d.AddedLines)
	assert.Empty(t, d.RemovedLines)
	assert.Equal(t, 0, d.TotalChanges)
	assert.Equal(t, 1.0, d.Similarity)
}

func TestDiff_LineChanged(t *testing.T) {
	oldText := "Claims filing deadline:\n90 days from date of service\nSubmit via portal"
	newText := "Claims filing deadline:\n120 days from date of service\nSubmit via portal"

	d := Diff(oldText, newText)

	assert.Equal(t, []string{"90 days from date of service"}, d.RemovedLines)
	assert.Equal(t, []string{"120 days from date of service"}, d.AddedLines)
	assert.Equal(t, 2, d.TotalChanges)
	assert.Greater(t, d.Similarity, 0.9)
}

func TestDiff_LineAdded(t *testing.T) {
	oldText := "Prior authorization required.\nCall the provider line."
	newText := "Prior authorization required.\nSubmit clinical notes.\nCall the provider line."

	d := Diff(oldText, newText)

	assert.Empty(t, d.RemovedLines)
	assert.Equal(t, []string{"Submit clinical notes."}, d.AddedLines)
	assert.Equal(t, 1, d.TotalChanges)
}

func TestDiff_LineRemoved(t *testing.T) {
	oldText := "Step one\nStep two\nStep three"
	newText := "Step one\nStep three"

	d := Diff(oldText, newText)

	assert.Equal(t, []string{"Step two"}, d.RemovedLines)
	assert.Empty(t, d.AddedLines)
	assert.Equal(t, 1, d.TotalChanges)
}

func TestDiff_Empty(t *testing.T) {
	d := Diff("", "")
	assert.Equal(t, 0, d.TotalChanges)
	assert.Equal(t, 1.0, d.Similarity)
}

func TestDiff_PartitionCoversAllLines(t *testing.T) {
	oldText := "alpha\nbravo\ncharlie\ndelta"
	newText := "alpha\nzulu\ndelta\necho"

	d := Diff(oldText, newText)

	// Every removed line comes from old, every added line from new
	for _, line := range d.RemovedLines {
		assert.Contains(t, oldText, line)
	}
	for _, line := range d.AddedLines {
		assert.Contains(t, newText, line)
	}
	assert.Equal(t, len(d.AddedLines)+len(d.RemovedLines), d.TotalChanges)
}
