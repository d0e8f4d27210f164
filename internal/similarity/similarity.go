// Package similarity implements the content-similarity measure used for rule
// deduplication and version detection: a Ratcliff/Obershelp matching process
// that recursively finds longest matching blocks and scores two texts by the
// fraction of characters participating in matches.
package similarity

import "github.com/payerwatch/payerwatch-mcp/internal/storage"

// match describes one matching block: a[APos:APos+Size] == b[BPos:BPos+Size].
type match struct {
	APos int
	BPos int
	Size int
}

// matcher finds matching blocks between two sequences of comparable elements.
// Text similarity runs it over runes; the line differ runs it over lines.
type matcher[T comparable] struct {
	a, b []T
	b2j  map[T][]int
}

func newMatcher[T comparable](a, b []T) *matcher[T] {
	m := &matcher[T]{a: a, b: b, b2j: make(map[T][]int, len(b))}
	for j, el := range b {
		m.b2j[el] = append(m.b2j[el], j)
	}
	return m
}

// longestMatch finds the longest block matching a[alo:ahi] against b[blo:bhi].
// Among equally long blocks it prefers the one starting earliest in a, then
// earliest in b, matching the deterministic behavior the ratio depends on.
func (m *matcher[T]) longestMatch(alo, ahi, blo, bhi int) match {
	best := match{APos: alo, BPos: blo, Size: 0}

	// j2len[j] = length of longest match ending at a[i-1], b[j-1]
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newJ2len := make(map[int]int)
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			newJ2len[j] = k
			if k > best.Size {
				best = match{APos: i - k + 1, BPos: j - k + 1, Size: k}
			}
		}
		j2len = newJ2len
	}
	return best
}

// matchingBlocks returns all matching blocks in order of position in a.
func (m *matcher[T]) matchingBlocks() []match {
	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	var blocks []match

	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		mb := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if mb.Size == 0 {
			continue
		}
		blocks = append(blocks, mb)
		if s.alo < mb.APos && s.blo < mb.BPos {
			queue = append(queue, span{s.alo, mb.APos, s.blo, mb.BPos})
		}
		if mb.APos+mb.Size < s.ahi && mb.BPos+mb.Size < s.bhi {
			queue = append(queue, span{mb.APos + mb.Size, s.ahi, mb.BPos + mb.Size, s.bhi})
		}
	}
	return blocks
}

// ratio computes 2*M / (len(a)+len(b)) where M is the total size of all
// matching blocks. Two empty sequences are identical by convention.
func (m *matcher[T]) ratio() float64 {
	total := len(m.a) + len(m.b)
	if total == 0 {
		return 1.0
	}
	matched := 0
	for _, b := range m.matchingBlocks() {
		matched += b.Size
	}
	return 2.0 * float64(matched) / float64(total)
}

// Ratio returns the symmetric content-similarity of a and b in [0,1].
// Ratio(x, x) == 1 for any x, and the result is 0 when the strings share no
// characters.
func Ratio(a, b string) float64 {
	return newMatcher([]rune(a), []rune(b)).ratio()
}

// BestMatch scores content against every candidate's content and returns the
// candidate with the maximum similarity along with that score. Ties break
// toward the lowest rule ID. Returns (nil, 0) when candidates is empty.
func BestMatch(candidates []*storage.Rule, content string) (*storage.Rule, float64) {
	var best *storage.Rule
	bestScore := 0.0

	for _, c := range candidates {
		score := Ratio(content, c.Content)
		switch {
		case best == nil, score > bestScore:
			best, bestScore = c, score
		case score == bestScore && c.ID < best.ID:
			best = c
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestScore
}
