package types

// DiffResult is the structured diff attached to content-modified change-log
// entries: the line-level added/removed partition plus the character-level
// similarity ratio of the two versions.
type DiffResult struct {
	AddedLines   []string `json:"added_lines"`
	RemovedLines []string `json:"removed_lines"`
	TotalChanges int      `json:"total_changes"`
	Similarity   float64  `json:"similarity"`
}
