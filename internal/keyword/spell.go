package keyword

import (
	"sort"
	"strings"

	"github.com/hyperjump/fransearch/internal/embedding"
)

// TermDictionary is the word source for spelling suggestions.
type TermDictionary interface {
	GetAllTerms() ([]string, error)
	GetTermFrequency(term string) (int, error)
	ContainsTerm(term string) (bool, error)
}

// Suggestion is a candidate correction for one word.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// SpellChecker proposes corrections for query words missing from the dictionary.
type SpellChecker struct {
	dictionary  TermDictionary
	terms       []string
	maxDistance int
	minLength   int
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// NewSpellChecker snapshots the dictionary's words. Build a new checker
// after the dictionary changes.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) (*SpellChecker, error) {
	terms, err := dict.GetAllTerms()
	if err != nil {
		return nil, err
	}
	s := &SpellChecker{dictionary: dict, terms: terms, maxDistance: 2, minLength: 3}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Suggest returns dictionary words within the edit distance of word, best
// first: closer, then more frequent, then alphabetical.
func (s *SpellChecker) Suggest(word string) []Suggestion {
	word = strings.ToLower(word)
	var out []Suggestion
	for _, t := range s.terms {
		if t == word {
			continue
		}
		if diff := len(t) - len(word); diff > s.maxDistance || -diff > s.maxDistance {
			continue
		}
		d := DamerauDistance(word, t)
		if d > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.GetTermFrequency(t)
		if err != nil || freq == 0 {
			continue
		}
		out = append(out, Suggestion{Term: t, Distance: d, Frequency: freq, Score: float64(freq) / float64(d+1)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Correct rewrites each unknown word of query to its best suggestion. It
// returns the corrected query and whether anything changed.
func (s *SpellChecker) Correct(query string) (string, bool) {
	words := embedding.SplitWords(query)
	changed := false
	for i, w := range words {
		if len(w) < s.minLength {
			continue
		}
		if ok, err := s.dictionary.ContainsTerm(w); err == nil && ok {
			continue
		}
		if sugg := s.Suggest(w); len(sugg) > 0 {
			words[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(words, " "), true
}
