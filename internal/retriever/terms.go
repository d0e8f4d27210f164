package retriever

import "strings"

// phraseTriggers maps substrings of the query to the canonical term searched
// for in rule text. Payer documents phrase these concepts consistently even
// when providers don't.
var phraseTriggers = []struct {
	trigger string
	term    string
}{
	{"filing", "timely filing"},
	{"prior auth", "authorization"},
	{"authorization", "authorization"},
	{"appeal", "appeal"},
}

// DeriveTerms extracts the lexical search terms for a query: tokens of known
// payer names that appear in the query, plus canonical terms for recognized
// phrases. When nothing matches, the whole query is the single term so the
// keyword phase always has something to run with.
func DeriveTerms(query string, payerNames []string) []string {
	lowerQuery := strings.ToLower(query)

	var terms []string
	seen := make(map[string]bool)
	add := func(term string) {
		if term == "" || seen[term] {
			return
		}
		seen[term] = true
		terms = append(terms, term)
	}

	for _, name := range payerNames {
		for _, token := range strings.Fields(strings.ToLower(name)) {
			// Short tokens ("of", "inc") match everything
			if len(token) < 3 {
				continue
			}
			if strings.Contains(lowerQuery, token) {
				add(token)
			}
		}
	}

	for _, pt := range phraseTriggers {
		if strings.Contains(lowerQuery, pt.trigger) {
			add(pt.term)
		}
	}

	if len(terms) == 0 {
		add(lowerQuery)
	}

	return terms
}
