// Package search provides the client-side search predicate used when list
// reads are served from the local store instead of the remote API.
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with Unicode case folding
//   - Optional stop-word removal (Option pattern)
//   - Deterministic ranking (stable order for ties)
//
// A record matches when every query term occurs in one of its searchable
// fields. Ranking uses Jaccard similarity between the query term set and the
// record's token set: score = |Q ∩ R| / |Q ∪ R|.
package search

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
}

func defaultConfig() config {
	return config{stopwords: nil}
}

// WithStopwords drops the given words from queries and records.
func WithStopwords(words []string) Option {
	return func(c *config) {
		fold := cases.Fold()
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold.String(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Matcher

// Matcher evaluates one search query against records. It is not safe for
// concurrent use; build one per read.
type Matcher struct {
	cfg   config
	fold  cases.Caser
	terms []string
	set   map[string]struct{}
}

// NewMatcher compiles query. An empty or all-stopword query matches
// everything.
func NewMatcher(query string, opts ...Option) *Matcher {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	m := &Matcher{cfg: cfg, fold: cases.Fold()}
	m.set = m.tokenize(query)
	m.terms = make([]string, 0, len(m.set))
	for t := range m.set {
		m.terms = append(m.terms, t)
	}
	sort.Strings(m.terms)
	return m
}

// Empty reports whether the query has no terms.
func (m *Matcher) Empty() bool { return len(m.terms) == 0 }

// Match reports whether every query term occurs in at least one field.
// Terms match on substrings, so "bol" finds "Bolts".
func (m *Matcher) Match(fields ...string) bool {
	if m.Empty() {
		return true
	}
	folded := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			folded = append(folded, m.fold.String(f))
		}
	}
	for _, t := range m.terms {
		found := false
		for _, f := range folded {
			if strings.Contains(f, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Score returns the Jaccard similarity of the query and the fields' tokens.
func (m *Matcher) Score(fields ...string) float64 {
	if m.Empty() {
		return 0
	}
	toks := m.tokenize(strings.Join(fields, " "))
	over := overlap(m.set, toks)
	if over == 0 {
		return 0
	}
	union := float64(len(m.set) + len(toks) - over)
	if union <= 0 {
		return 0
	}
	return float64(over) / union
}

// Filter keeps the records matching m, preserving their order.
func Filter[T any](recs []T, m *Matcher, fields func(T) []string) []T {
	if m == nil || m.Empty() {
		return recs
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		if m.Match(fields(r)...) {
			out = append(out, r)
		}
	}
	return out
}

// Rank orders recs by descending score. Ties keep their input order.
func Rank[T any](recs []T, m *Matcher, fields func(T) []string) []T {
	if m == nil || m.Empty() || len(recs) < 2 {
		return recs
	}
	scores := make([]float64, len(recs))
	idx := make([]int, len(recs))
	for i, r := range recs {
		scores[i] = m.Score(fields(r)...)
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	out := make([]T, len(recs))
	for i, j := range idx {
		out[i] = recs[j]
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func (m *Matcher) tokenize(s string) map[string]struct{} {
	s = m.fold.String(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if m.cfg.stopwords != nil {
			if _, skip := m.cfg.stopwords[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
