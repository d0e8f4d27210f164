package similarity

import (
	"sort"
	"strings"

	"github.com/payerwatch/payerwatch-mcp/pkg/types"
)

// Diff compares old and new text at line granularity using the same matching
// process as Ratio. Removed lines are lines of old outside any matching
// block; added lines are lines of new outside any matching block. Similarity
// is the character-level ratio of the full texts.
func Diff(oldText, newText string) types.DiffResult {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	m := newMatcher(oldLines, newLines)
	blocks := m.matchingBlocks()
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].APos < blocks[j].APos })

	removed := unmatched(oldLines, blocks, func(b match) (int, int) { return b.APos, b.Size })

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].BPos < blocks[j].BPos })
	added := unmatched(newLines, blocks, func(b match) (int, int) { return b.BPos, b.Size })

	return types.DiffResult{
		AddedLines:   added,
		RemovedLines: removed,
		TotalChanges: len(added) + len(removed),
		Similarity:   Ratio(oldText, newText),
	}
}

// unmatched collects the lines not covered by any matching block.
func unmatched(lines []string, blocks []match, pos func(match) (int, int)) []string {
	out := make([]string, 0)
	next := 0
	for _, b := range blocks {
		start, size := pos(b)
		for i := next; i < start && i < len(lines); i++ {
			out = append(out, lines[i])
		}
		if start+size > next {
			next = start + size
		}
	}
	for i := next; i < len(lines); i++ {
		out = append(out, lines[i])
	}
	return out
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
