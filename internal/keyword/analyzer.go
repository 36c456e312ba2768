// Package keyword implements TF-IDF keyword scoring over listing text, plus
// a spelling corrector built from the fitted vocabulary.
package keyword

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// analysisMapping provides bleve's English analyzer: unicode tokenization,
// possessive removal, lowercasing, English stop words, Porter stemming.
var analysisMapping = mapping.NewIndexMapping()

// Analyze returns the analyzed unigrams of text followed by adjacent-token
// n-grams up to maxN, joined with a single space.
func Analyze(text string, maxN int) ([]string, error) {
	tokens, err := analysisMapping.AnalyzeText(en.AnalyzerName, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("analyze text: %w", err)
	}
	unigrams := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok.Term) > 0 {
			unigrams = append(unigrams, string(tok.Term))
		}
	}
	if maxN < 2 {
		return unigrams, nil
	}
	terms := append([]string(nil), unigrams...)
	for n := 2; n <= maxN; n++ {
		for i := 0; i+n <= len(unigrams); i++ {
			terms = append(terms, strings.Join(unigrams[i:i+n], " "))
		}
	}
	return terms, nil
}
