package types

import "time"

// SearchResult is one ranked rule returned by the hybrid retriever.
type SearchResult struct {
	// Identification
	RuleID    int64
	PayerID   int64
	PayerName string
	RuleType  RuleType
	Version   int

	// Content
	Title     string
	Content   string
	SourceURL string

	// EffectiveDate is nil when the rule has no known effective date.
	EffectiveDate *time.Time

	// Scoring. CombinedScore is the weighted fusion of the other two.
	SemanticScore float64
	KeywordScore  float64
	CombinedScore float64
}

// Validate checks structural invariants of a search result.
func (r *SearchResult) Validate() error {
	if r.RuleID <= 0 {
		return ErrInvalidRuleID
	}
	if r.CombinedScore < 0 || r.CombinedScore > 1 {
		return ErrInvalidScore
	}
	if r.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
