package search

import "github.com/hyperjump/fransearch/internal/models"

// resolveQuery validates q and returns the effective semantic weight and
// result count.
func (e *Engine) resolveQuery(q *models.SearchQuery) (float64, int, error) {
	if err := q.Validate(); err != nil {
		return 0, 0, err
	}
	w := e.opts.DefaultSemanticWeight
	if q.SemanticWeight != nil {
		w = *q.SemanticWeight
	}
	return ClampWeight(w), clampTopN(q.TopN, e.opts.DefaultTopN, e.opts.MaxTopN), nil
}

func clampTopN(n, def, max int) int {
	if n <= 0 {
		n = def
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}
