package keyword

import (
	"errors"
	"math"
	"sort"

	"github.com/hyperjump/fransearch/internal/embedding"
)

// Default vectorizer settings.
const (
	DefaultMaxFeatures = 500
	DefaultNGramMax    = 2
)

// SparseVector is an L2-normalized row with ascending term indices.
type SparseVector struct {
	Indices []int32   `msgpack:"i"`
	Values  []float32 `msgpack:"v"`
}

// Dot returns the dot product of two sparse vectors.
func (v SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += float64(v.Values[i]) * float64(o.Values[j])
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Matrix is a term-document matrix with one row per fitted document.
type Matrix struct {
	Rows []SparseVector `msgpack:"rows"`
}

// Len returns the row count.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// Vectorizer holds a fitted vocabulary and smoothed IDF weights. The
// vocabulary comes only from the documents given to Fit; refitting is the
// only update path.
type Vectorizer struct {
	MaxFeatures int            `msgpack:"max_features"`
	NGramMax    int            `msgpack:"ngram_max"`
	Vocabulary  map[string]int `msgpack:"vocabulary"`
	IDF         []float64      `msgpack:"idf"`
	// Words counts the documents each unanalyzed lowercase word appears in.
	// It backs spelling suggestions.
	Words map[string]int `msgpack:"words"`
}

// VectorizerOption configures a Vectorizer.
type VectorizerOption func(*Vectorizer)

// WithMaxFeatures keeps only the n most frequent terms.
func WithMaxFeatures(n int) VectorizerOption {
	return func(v *Vectorizer) {
		if n > 0 {
			v.MaxFeatures = n
		}
	}
}

// WithNGramMax sets the longest n-gram (1 = unigrams only).
func WithNGramMax(n int) VectorizerOption {
	return func(v *Vectorizer) {
		if n > 0 {
			v.NGramMax = n
		}
	}
}

// NewVectorizer returns an unfitted vectorizer.
func NewVectorizer(opts ...VectorizerOption) *Vectorizer {
	v := &Vectorizer{MaxFeatures: DefaultMaxFeatures, NGramMax: DefaultNGramMax}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ErrNoDocuments is returned by Fit for an empty corpus.
var ErrNoDocuments = errors.New("no documents to fit")

// Fit builds the vocabulary and IDF from docs and returns their matrix, one
// row per document in input order.
func (v *Vectorizer) Fit(docs []string) (*Matrix, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	counts := make([]map[string]int, len(docs))
	corpusFreq := map[string]int{}
	words := map[string]int{}
	for i, doc := range docs {
		terms, err := Analyze(doc, v.NGramMax)
		if err != nil {
			return nil, err
		}
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
			corpusFreq[t]++
		}
		counts[i] = tf

		seen := map[string]struct{}{}
		for _, w := range embedding.SplitWords(doc) {
			if _, ok := seen[w]; !ok && len(w) > 1 {
				seen[w] = struct{}{}
				words[w]++
			}
		}
	}

	terms := make([]string, 0, len(corpusFreq))
	for t := range corpusFreq {
		terms = append(terms, t)
	}
	// Most frequent first; alphabetical among equals so fits are reproducible.
	sort.Slice(terms, func(i, j int) bool {
		if corpusFreq[terms[i]] != corpusFreq[terms[j]] {
			return corpusFreq[terms[i]] > corpusFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	v.Vocabulary = make(map[string]int, len(terms))
	for i, t := range terms {
		v.Vocabulary[t] = i
	}
	df := make([]int, len(terms))
	for _, tf := range counts {
		for t := range tf {
			if idx, ok := v.Vocabulary[t]; ok {
				df[idx]++
			}
		}
	}
	n := float64(len(docs))
	v.IDF = make([]float64, len(terms))
	for i := range terms {
		v.IDF[i] = math.Log((1+n)/(1+float64(df[i]))) + 1
	}
	v.Words = words

	m := &Matrix{Rows: make([]SparseVector, len(docs))}
	for i, tf := range counts {
		m.Rows[i] = v.weigh(tf)
	}
	return m, nil
}

// Fitted reports whether Fit has run.
func (v *Vectorizer) Fitted() bool {
	return v != nil && v.Vocabulary != nil
}

// Transform returns the weighted vector of text over the fitted vocabulary.
// Terms outside the vocabulary are ignored.
func (v *Vectorizer) Transform(text string) (SparseVector, error) {
	terms, err := Analyze(text, v.NGramMax)
	if err != nil {
		return SparseVector{}, err
	}
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	return v.weigh(tf), nil
}

func (v *Vectorizer) weigh(tf map[string]int) SparseVector {
	type entry struct {
		idx int32
		w   float64
	}
	entries := make([]entry, 0, len(tf))
	var norm float64
	for t, c := range tf {
		idx, ok := v.Vocabulary[t]
		if !ok {
			continue
		}
		w := float64(c) * v.IDF[idx]
		entries = append(entries, entry{idx: int32(idx), w: w})
		norm += w * w
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := SparseVector{Indices: make([]int32, len(entries)), Values: make([]float32, len(entries))}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, e := range entries {
		out.Indices[i] = e.idx
		out.Values[i] = float32(e.w / norm)
	}
	return out
}

// Score returns the cosine similarity between query and each matrix row.
// Scores are in [0, 1]; rows sharing no terms with the query score 0.
func (v *Vectorizer) Score(query string, m *Matrix) ([]float64, error) {
	scores := make([]float64, m.Len())
	if m.Len() == 0 {
		return scores, nil
	}
	q, err := v.Transform(query)
	if err != nil {
		return nil, err
	}
	if len(q.Indices) == 0 {
		return scores, nil
	}
	for i, row := range m.Rows {
		s := q.Dot(row)
		if s > 1 {
			s = 1
		} else if s < 0 {
			s = 0
		}
		scores[i] = s
	}
	return scores, nil
}

// GetAllTerms returns the known surface words.
func (v *Vectorizer) GetAllTerms() ([]string, error) {
	out := make([]string, 0, len(v.Words))
	for w := range v.Words {
		out = append(out, w)
	}
	sort.Strings(out)
	return out, nil
}

// GetTermFrequency returns the number of fitted documents containing term.
func (v *Vectorizer) GetTermFrequency(term string) (int, error) {
	return v.Words[term], nil
}

// ContainsTerm reports whether term appeared in the fitted documents.
func (v *Vectorizer) ContainsTerm(term string) (bool, error) {
	_, ok := v.Words[term]
	return ok, nil
}
