package models

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hyperjump/fransearch/internal/apperr"
)

// MaxQueryLength bounds the query text in bytes.
const MaxQueryLength = 512

var queryValidator = validator.New()

// Filters restrict ranked results. Empty fields match everything.
type Filters struct {
	Sector   string   `json:"sector,omitempty"`
	Location string   `json:"location,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.Sector == "" && f.Location == "" && len(f.Tags) == 0
}

// Match reports whether l passes the filters: sector is compared exactly
// (ignoring case), location by substring, and tags by membership of any
// requested tag.
func (f Filters) Match(l *Listing) bool {
	if f.Sector != "" && !strings.EqualFold(l.Sector, f.Sector) {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.Location)) {
		return false
	}
	if len(f.Tags) > 0 {
		for _, t := range f.Tags {
			if l.HasTag(t) {
				return true
			}
		}
		return false
	}
	return true
}

// SearchQuery is a hybrid search request. A nil SemanticWeight means the
// configured default.
type SearchQuery struct {
	Query          string   `json:"query" validate:"required,max=512"`
	TopN           int      `json:"top_n,omitempty" validate:"gte=0"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	Filters        Filters  `json:"filters,omitempty"`
}

// Validate trims the query and checks it against its validate tags. The
// semantic weight is clamped by the engine, not rejected here.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	err := queryValidator.Struct(q)
	var verrs validator.ValidationErrors
	if err == nil || !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	switch fe.Field() + "." + fe.Tag() {
	case "Query.required":
		return apperr.Validation("search", "query cannot be empty")
	case "Query.max":
		return apperr.Validation("search", "query is longer than %d bytes", MaxQueryLength)
	case "TopN.gte":
		return apperr.Validation("search", "top_n cannot be negative")
	}
	return apperr.Validation("search", "%s is %s", strings.ToLower(fe.Field()), fe.Tag())
}
