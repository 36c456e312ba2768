// Package models defines core data structures for listings, queries, and search results.
package models

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/hyperjump/fransearch/pkg/utils"
)

// Listing is one franchise record. Fields not named here are kept in Extra
// and written back unchanged.
type Listing struct {
	ID              int      `json:"id"`
	Title           string   `json:"title" validate:"required"`
	Sector          string   `json:"sector" validate:"required"`
	Description     string   `json:"description,omitempty"`
	InvestmentRange string   `json:"investment_range,omitempty"`
	Location        string   `json:"location,omitempty"`
	Tags            []string `json:"tags,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var listingFields = []string{"id", "title", "sector", "description", "investment_range", "location", "tags"}

// plainListing is Listing without its JSON methods.
type plainListing Listing

// UnmarshalJSON decodes the known fields and collects the rest into Extra.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var p plainListing
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range listingFields {
		delete(raw, k)
	}
	p.Extra = nil
	if len(raw) > 0 {
		p.Extra = raw
	}
	*l = Listing(p)
	return nil
}

// MarshalJSON writes the known fields merged with Extra. Known fields win on
// key collisions.
func (l Listing) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(plainListing(l))
	if err != nil || len(l.Extra) == 0 {
		return base, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(known)+len(l.Extra))
	for k, v := range l.Extra {
		merged[k] = v
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// SetExtra stores v under key in Extra.
func (l *Listing) SetExtra(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if l.Extra == nil {
		l.Extra = make(map[string]json.RawMessage)
	}
	l.Extra[key] = b
	return nil
}

// Normalize trims whitespace from the string fields and drops blank tags.
func (l *Listing) Normalize() {
	l.Title = strings.TrimSpace(l.Title)
	l.Sector = strings.TrimSpace(l.Sector)
	l.Description = strings.TrimSpace(l.Description)
	l.InvestmentRange = strings.TrimSpace(l.InvestmentRange)
	l.Location = strings.TrimSpace(l.Location)
	if l.Tags != nil {
		tags := make([]string, 0, len(l.Tags))
		for _, t := range l.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		l.Tags = tags
	}
}

// Text is the document text used to train the keyword and embedding models.
func (l *Listing) Text() string {
	return utils.JoinNonEmpty(
		l.Title,
		l.Sector,
		l.Description,
		l.InvestmentRange,
		l.Location,
		strings.Join(l.Tags, " "),
	)
}

// HasTag reports whether the listing carries tag, ignoring case.
func (l *Listing) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ListingPatch is a partial update. Nil fields are left unchanged.
type ListingPatch struct {
	ID              *int      `json:"id,omitempty"`
	Title           *string   `json:"title,omitempty"`
	Sector          *string   `json:"sector,omitempty"`
	Description     *string   `json:"description,omitempty"`
	InvestmentRange *string   `json:"investment_range,omitempty"`
	Location        *string   `json:"location,omitempty"`
	Tags            *[]string `json:"tags,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type plainPatch ListingPatch

// UnmarshalJSON decodes the known fields and collects the rest into Extra.
func (p *ListingPatch) UnmarshalJSON(data []byte) error {
	var pp plainPatch
	if err := json.Unmarshal(data, &pp); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range listingFields {
		delete(raw, k)
	}
	pp.Extra = nil
	if len(raw) > 0 {
		pp.Extra = raw
	}
	*p = ListingPatch(pp)
	return nil
}

// Apply returns a copy of l with the patch applied. The id is never changed.
func (p *ListingPatch) Apply(l Listing) Listing {
	out := l
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Sector != nil {
		out.Sector = *p.Sector
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.InvestmentRange != nil {
		out.InvestmentRange = *p.InvestmentRange
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), (*p.Tags)...)
	}
	if len(p.Extra) > 0 {
		extra := make(map[string]json.RawMessage, len(l.Extra)+len(p.Extra))
		for k, v := range l.Extra {
			extra[k] = v
		}
		for k, v := range p.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}
