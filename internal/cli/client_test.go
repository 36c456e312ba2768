package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/hyperjump/fransearch/internal/models"
)

func TestClient_Search(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(sampleResponse())
	}))
	defer srv.Close()

	weight := 0.25
	c := NewClient(srv.URL+"/", "")
	resp, err := c.Search(context.Background(), &models.SearchQuery{
		Query:          "pizza delivery",
		TopN:           3,
		SemanticWeight: &weight,
		Filters:        models.Filters{Sector: "Food", Tags: []string{"pizza", "delivery"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("results = %d", len(resp.Results))
	}
	for _, want := range []string{"q=pizza+delivery", "top_n=3", "semantic_weight=0.25", "sector=Food", "tags=pizza%2Cdelivery"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestClient_errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid admin API key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"dataset":{"listings":3},"model":{"state":"ready"}}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "wrong").Status(context.Background()); err == nil || !strings.Contains(err.Error(), "invalid admin API key") {
		t.Errorf("expected server error message, got %v", err)
	}
	report, err := NewClient(srv.URL, "secret").Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Dataset.Listings != 3 || report.Model.State != "ready" {
		t.Errorf("report = %+v", report)
	}
}
