// Package retrieval implements the TF-IDF similarity search used to pick
// knowledge-base snippets for a query.
package retrieval

import (
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/jonieats/assistant/internal/analysis/text"
)

// ErrEmptyCorpus is returned when an index is built without any chunks.
var ErrEmptyCorpus = errors.New("retrieval corpus is empty")

// Hit is one ranked chunk. Index points into Index.Chunks().
type Hit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Options tunes the vectorizer.
type Options struct {
	// MaxNGram is the longest word n-gram indexed. Defaults to 3.
	MaxNGram int
}

type vector map[int]float64

// Index is an immutable TF-IDF matrix over a fixed chunk list.
// It is safe for concurrent searches.
type Index struct {
	chunks   []string
	vocab    map[string]int
	idf      []float64
	rows     []vector
	maxNGram int
}

// NewIndex fits the vocabulary and idf weights on chunks.
func NewIndex(chunks []string, opts Options) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyCorpus
	}

	maxNGram := opts.MaxNGram
	if maxNGram < 1 {
		maxNGram = 3
	}

	idx := &Index{
		chunks:   append([]string(nil), chunks...),
		vocab:    make(map[string]int),
		maxNGram: maxNGram,
	}

	counts := make([]map[int]int, len(chunks))
	var df []int
	for i, chunk := range chunks {
		counts[i] = make(map[int]int)
		for _, term := range ngrams(text.Tokens(chunk), maxNGram) {
			id, ok := idx.vocab[term]
			if !ok {
				id = len(idx.vocab)
				idx.vocab[term] = id
				df = append(df, 0)
			}
			if counts[i][id] == 0 {
				df[id]++
			}
			counts[i][id]++
		}
	}

	n := float64(len(chunks))
	idx.idf = make([]float64, len(df))
	for id, d := range df {
		idx.idf[id] = math.Log((1+n)/(1+float64(d))) + 1
	}

	idx.rows = make([]vector, len(chunks))
	for i, c := range counts {
		idx.rows[i] = idx.weigh(c)
	}

	return idx, nil
}

// Chunks returns a copy of the indexed chunk list.
func (idx *Index) Chunks() []string {
	return append([]string(nil), idx.chunks...)
}

// Search returns the k chunks most similar to query, highest score first.
// Ties keep chunk order. k is clamped to [1, len(chunks)].
func (idx *Index) Search(query string, k int) []Hit {
	if k < 1 {
		k = 1
	}
	if k > len(idx.chunks) {
		k = len(idx.chunks)
	}

	counts := make(map[int]int)
	for _, term := range ngrams(text.Tokens(query), idx.maxNGram) {
		if id, ok := idx.vocab[term]; ok {
			counts[id]++
		}
	}
	q := idx.weigh(counts)

	hits := make([]Hit, len(idx.chunks))
	for i, row := range idx.rows {
		hits[i] = Hit{Index: i, Score: dot(q, row), Text: idx.chunks[i]}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	return hits[:k]
}

// weigh applies sublinear tf, idf and L2 normalization.
func (idx *Index) weigh(counts map[int]int) vector {
	v := make(vector, len(counts))
	var norm float64
	for id, c := range counts {
		w := (1 + math.Log(float64(c))) * idx.idf[id]
		v[id] = w
		norm += w * w
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for id := range v {
		v[id] /= norm
	}
	return v
}

func dot(a, b vector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var sum float64
	for id, w := range a {
		sum += w * b[id]
	}
	return sum
}

func ngrams(tokens []string, maxN int) []string {
	terms := make([]string, 0, len(tokens)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}
