package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/fransearch/internal/apperr"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
	}{
		{"empty query", &SearchQuery{Query: ""}, true},
		{"blank query", &SearchQuery{Query: "   "}, true},
		{"valid query", &SearchQuery{Query: "pizza"}, false},
		{"negative top_n", &SearchQuery{Query: "x", TopN: -1}, true},
		{"longest query", &SearchQuery{Query: strings.Repeat("a", MaxQueryLength)}, false},
		{"query too long", &SearchQuery{Query: strings.Repeat("a", MaxQueryLength+1)}, true},
		{"weight is not checked here", &SearchQuery{Query: "x", SemanticWeight: func() *float64 { w := 2.0; return &w }()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("Validate() error %v should be a validation error", err)
			}
		})
	}
}

func TestFilters_Match(t *testing.T) {
	l := &Listing{ID: 1, Title: "Pizza King", Sector: "Food", Location: "Lagos, Nigeria", Tags: []string{"pizza", "Delivery"}}
	tests := []struct {
		name string
		f    Filters
		want bool
	}{
		{"empty", Filters{}, true},
		{"sector ignores case", Filters{Sector: "food"}, true},
		{"sector mismatch", Filters{Sector: "Retail"}, false},
		{"sector is not substring", Filters{Sector: "Foo"}, false},
		{"location substring", Filters{Location: "lagos"}, true},
		{"location mismatch", Filters{Location: "Abuja"}, false},
		{"any tag", Filters{Tags: []string{"coffee", "delivery"}}, true},
		{"no tag", Filters{Tags: []string{"coffee"}}, false},
		{"combined", Filters{Sector: "Food", Location: "Nigeria", Tags: []string{"pizza"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(l); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchQuery_ValidateMessages(t *testing.T) {
	q := &SearchQuery{Query: "  \t "}
	if err := q.Validate(); err == nil || !strings.Contains(err.Error(), "query cannot be empty") {
		t.Errorf("blank query error = %v", err)
	}
	q = &SearchQuery{Query: "pizza", TopN: -3}
	if err := q.Validate(); err == nil || !strings.Contains(err.Error(), "top_n cannot be negative") {
		t.Errorf("negative top_n error = %v", err)
	}
	q = &SearchQuery{Query: "  pizza  "}
	if err := q.Validate(); err != nil || q.Query != "pizza" {
		t.Errorf("Validate() = %v, query %q", err, q.Query)
	}
}
