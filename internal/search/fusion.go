package search

import (
	"sort"

	"github.com/hyperjump/fransearch/internal/models"
	"github.com/hyperjump/fransearch/internal/vector"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// Candidate is one bundle row scored for a query.
type Candidate struct {
	Listing       models.Listing
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// SemanticScores converts neighbours into one similarity per bundle row.
// Rows the index did not return score 0.
func SemanticScores(neighbors []vector.Neighbor, rows int, t vector.Transform) []float64 {
	scores := make([]float64, rows)
	for _, n := range neighbors {
		if n.Row >= 0 && n.Row < rows {
			scores[n.Row] = t.Similarity(n.Distance)
		}
	}
	return scores
}

// Blend is the hybrid score w*semantic + (1-w)*keyword.
func Blend(semantic, keyword, w float64) float64 {
	return w*semantic + (1-w)*keyword
}

// ClampWeight limits w to [0, 1].
func ClampWeight(w float64) float64 { return utils.Clamp01(w) }

// SortCandidates orders by score descending, then listing id ascending.
func SortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].Listing.ID < cs[j].Listing.ID
	})
}

// toResults truncates to topN and assigns ranks.
func toResults(cs []Candidate, topN int) []*models.SearchResult {
	if topN > 0 && len(cs) > topN {
		cs = cs[:topN]
	}
	out := make([]*models.SearchResult, len(cs))
	for i, c := range cs {
		out[i] = &models.SearchResult{
			Listing:       c.Listing,
			Score:         c.Score,
			SemanticScore: c.SemanticScore,
			KeywordScore:  c.KeywordScore,
			Rank:          i + 1,
		}
	}
	return out
}
