package models

// SearchResult is a single ranked listing with its scores.
type SearchResult struct {
	Listing       Listing `json:"listing"`
	Score         float64 `json:"score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
	Rank          int     `json:"rank"`
}

// SearchResponse is the response for a search or recommend request.
// Degraded is set when semantic scoring was unavailable and results are
// keyword-only; Stale when the active bundle lags the dataset.
type SearchResponse struct {
	Query          string          `json:"query,omitempty"`
	Results        []*SearchResult `json:"results"`
	Total          int             `json:"total"`
	SemanticWeight float64         `json:"semantic_weight"`
	Degraded       bool            `json:"degraded"`
	Stale          bool            `json:"stale"`
	DidYouMean     string          `json:"did_you_mean,omitempty"`
	QueryTime      int64           `json:"took_ms"`
}

// Suggestion types.
const (
	SuggestionTitle  = "title"
	SuggestionSector = "sector"
	SuggestionTag    = "tag"
)

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Text     string `json:"text"`
	Type     string `json:"type"`
	Category string `json:"category"`
}

// FilterOptions lists the distinct values available for filtering.
type FilterOptions struct {
	Sectors   []string `json:"sectors"`
	Locations []string `json:"locations"`
	Tags      []string `json:"tags"`
}

// ListingPage is one page of the listing catalogue.
type ListingPage struct {
	Items   []Listing `json:"items"`
	Total   int       `json:"total"`
	Offset  int       `json:"offset"`
	Limit   int       `json:"limit"`
	HasMore bool      `json:"has_more"`
}

// Health summarises dataset and bundle state.
type Health struct {
	Status         string `json:"status"`
	Listings       int    `json:"listings"`
	DatasetVersion int64  `json:"dataset_version"`
	BundleLoaded   bool   `json:"bundle_loaded"`
	BundleVersion  int64  `json:"bundle_dataset_version"`
	BundleRows     int    `json:"bundle_rows"`
	Stale          bool   `json:"stale"`
	ModelState     string `json:"model_state"`
}
