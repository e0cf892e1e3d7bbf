// Package search provides a small, deterministic, concurrency-safe in-memory
// index over history prompts. An index is immutable after construction, so
// it can be shared between goroutines and rebuilt wholesale when the
// underlying history changes.
//
// Scoring uses Jaccard similarity between the query token set and each
// document's token set: score = |Q ∩ D| / |Q ∪ D|. Ties are broken by
// shorter text, then by ID, so results are stable.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Document is one searchable entry.
type Document struct {
	ID   string
	Text string
}

// Result is a ranked document ID with its similarity score.
type Result struct {
	ID    string
	Score float64
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minScore  float64
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{}
}

// WithMinScore drops results scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many documents are indexed (first n win).
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id     string
	runes  int
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// New builds an Index from docs. Documents without any word token are
// skipped.
func New(docs []Document, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for _, d := range docs {
		toks := tokenize(d.Text, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, runes: utf8.RuneCountInString(d.Text), tokens: toks})
		if cfg.maxDocs > 0 && len(out) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: out}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching documents. k <= 0 means 10.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id    string
		score float64
		runes int
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+len(d.tokens)-over)
		if score < i.cfg.minScore {
			continue
		}
		buf = append(buf, scored{id: d.id, score: score, runes: d.runes})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].runes != buf[b].runes {
			return buf[a].runes < buf[b].runes
		}
		return buf[a].id < buf[b].id
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for j := 0; j < k; j++ {
		out[j] = Result{ID: buf[j].id, Score: buf[j].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// fold applies compatibility normalization and Unicode case folding, so
// "Ｃafé" and "CAFÉ" index the same. Casers are stateful, hence one per call.
func fold(s string) string {
	return cases.Fold().String(norm.NFKC.String(s))
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
