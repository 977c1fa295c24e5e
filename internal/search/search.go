// Package search ranks workspace symbols against a query string. The
// query is tokenized into lowercase terms; every term must match the
// candidate name, and the weakest term match decides the match class.
// Classes order exact before prefix before substring before
// subsequence, with shorter names winning ties.
package search

import (
	"sort"
	"strings"
)

// Match classes, best first.
const (
	MatchExact = iota
	MatchPrefix
	MatchSubstring
	MatchSubsequence
)

// Result is one ranked workspace symbol.
type Result struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Path string `json:"path"`

	// Start and End are byte offsets of the declaration.
	Start int `json:"start"`
	End   int `json:"end"`

	score int
}

// Tokenize splits a query or identifier into lowercase alphanumeric
// terms. Unlike a relevance vocabulary there is no minimum term
// length; a one-letter query still has to find one-letter names.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

// Matcher scores candidate names against one tokenized query.
type Matcher struct {
	terms []string
}

// NewMatcher tokenizes the query. An empty query matches every name.
func NewMatcher(query string) *Matcher {
	return &Matcher{terms: Tokenize(query)}
}

// Score classifies name against the query and reports whether it
// matches at all. With several query terms the weakest class wins.
func (m *Matcher) Score(name string) (int, bool) {
	if len(m.terms) == 0 {
		return MatchSubsequence, true
	}
	lower := strings.ToLower(name)
	worst := MatchExact
	for _, term := range m.terms {
		var class int
		switch {
		case lower == term:
			class = MatchExact
		case strings.HasPrefix(lower, term):
			class = MatchPrefix
		case strings.Contains(lower, term):
			class = MatchSubstring
		case subsequence(lower, term):
			class = MatchSubsequence
		default:
			return 0, false
		}
		if class > worst {
			worst = class
		}
	}
	return worst, true
}

// subsequence reports whether every byte of term appears in name in
// order. Terms are pure lowercase alphanumerics after tokenization, so
// byte comparison is exact.
func subsequence(name, term string) bool {
	j := 0
	for i := 0; i < len(name) && j < len(term); i++ {
		if name[i] == term[j] {
			j++
		}
	}
	return j == len(term)
}

// Rank filters candidates against the query and sorts them by match
// class, then name length, then name, then path. limit truncates the
// ranked list when positive. The input slice is left alone.
func Rank(query string, candidates []Result, limit int) []Result {
	m := NewMatcher(query)
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score, ok := m.Score(c.Name)
		if !ok {
			continue
		}
		c.score = score
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if len(a.Name) != len(b.Name) {
			return len(a.Name) < len(b.Name)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Path < b.Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
