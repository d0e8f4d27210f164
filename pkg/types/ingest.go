package types

// CrawlResults is the batch shape the change engine consumes, regardless of
// which crawler produced it. One batch targets one payer.
type CrawlResults struct {
	Documents        []DocumentData       `json:"pdf_documents"`
	ExtractedContent map[string]RuleGroup `json:"extracted_content"`
}

// RuleGroup holds the rules extracted for one payload rule type.
type RuleGroup struct {
	Rules []RuleData `json:"rules"`
}

// RuleData is one extracted rule candidate.
type RuleData struct {
	Type       string   `json:"type,omitempty"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// DocumentData describes one source document observed during a crawl.
type DocumentData struct {
	URL              string          `json:"url"`
	Title            string          `json:"text,omitempty"`
	Filename         string          `json:"filename,omitempty"`
	LocalFile        string          `json:"local_file,omitempty"`
	ExtractedContent DocumentContent `json:"extracted_content"`
}

// DocumentContent is the extraction result attached to a crawled document.
type DocumentContent struct {
	Text           string     `json:"text"`
	ExtractedRules []RuleData `json:"extracted_rules,omitempty"`
}
