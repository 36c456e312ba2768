package search

import (
	"sort"
	"strings"

	"github.com/hyperjump/fransearch/internal/models"
)

var suggestionOrder = map[string]int{
	models.SuggestionTitle:  0,
	models.SuggestionSector: 1,
	models.SuggestionTag:    2,
}

type scoredSuggestion struct {
	models.Suggestion
	pos int
}

// Autocomplete matches query as a case-insensitive substring of titles,
// sectors and tags of every listing in the dataset, trained or not.
// Suggestions are unique per (text, type) and ordered by match position,
// then type (title, sector, tag), then text.
func (e *Engine) Autocomplete(query string, max int) []models.Suggestion {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return []models.Suggestion{}
	}
	max = clampTopN(max, DefaultSuggestions, MaxSuggestions)

	seen := map[string]struct{}{}
	var found []scoredSuggestion
	add := func(text, typ, category string) {
		pos := strings.Index(strings.ToLower(text), q)
		if pos < 0 {
			return
		}
		key := typ + "\x00" + strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		found = append(found, scoredSuggestion{
			Suggestion: models.Suggestion{Text: text, Type: typ, Category: category},
			pos:        pos,
		})
	}
	snap := e.store.Snapshot()
	for i := range snap.Listings {
		l := &snap.Listings[i]
		add(l.Title, models.SuggestionTitle, l.Sector)
		add(l.Sector, models.SuggestionSector, l.Sector)
		for _, tag := range l.Tags {
			add(tag, models.SuggestionTag, l.Sector)
		}
	}

	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.Type != b.Type {
			return suggestionOrder[a.Type] < suggestionOrder[b.Type]
		}
		return strings.ToLower(a.Text) < strings.ToLower(b.Text)
	})
	if len(found) > max {
		found = found[:max]
	}
	out := make([]models.Suggestion, len(found))
	for i, s := range found {
		out[i] = s.Suggestion
	}
	return out
}
