package models

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestListing_RoundTripKeepsExtraFields(t *testing.T) {
	in := `{"id":3,"title":"Pizza King","sector":"Food","tags":["pizza"],"franchise_fee":25000,"website":"https://pk.example"}`
	var l Listing
	if err := json.Unmarshal([]byte(in), &l); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if l.ID != 3 || l.Title != "Pizza King" || len(l.Tags) != 1 {
		t.Fatalf("unexpected listing: %+v", l)
	}
	if string(l.Extra["franchise_fee"]) != "25000" {
		t.Errorf("franchise_fee = %s", l.Extra["franchise_fee"])
	}
	out, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, want := range []string{`"franchise_fee":25000`, `"website":"https://pk.example"`, `"title":"Pizza King"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("output %s missing %s", out, want)
		}
	}
}

func TestListing_TagsMustBeArray(t *testing.T) {
	var l Listing
	if err := json.Unmarshal([]byte(`{"title":"x","sector":"y","tags":"a,b"}`), &l); err == nil {
		t.Error("expected error for string tags")
	}
}

func TestListing_Text(t *testing.T) {
	l := Listing{Title: "Pizza King", Sector: "Food", Description: "Hot pizza", Tags: []string{"pizza", "delivery"}}
	if got := l.Text(); got != "Pizza King Food Hot pizza pizza delivery" {
		t.Errorf("Text() = %q", got)
	}
}

func TestListing_Normalize(t *testing.T) {
	l := Listing{Title: "  Burger Hub ", Sector: " Food", Tags: []string{" grill ", ""}}
	l.Normalize()
	if l.Title != "Burger Hub" || l.Sector != "Food" {
		t.Errorf("not trimmed: %+v", l)
	}
	if len(l.Tags) != 1 || l.Tags[0] != "grill" {
		t.Errorf("tags = %v", l.Tags)
	}
}

func TestListingPatch_Apply(t *testing.T) {
	base := Listing{ID: 4, Title: "Old", Sector: "Food", Tags: []string{"a"}}
	var p ListingPatch
	if err := json.Unmarshal([]byte(`{"title":"New","tags":["b","c"],"rating":4.5}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got := p.Apply(base)
	if got.ID != 4 || got.Title != "New" || got.Sector != "Food" {
		t.Errorf("Apply() = %+v", got)
	}
	if len(got.Tags) != 2 || base.Tags[0] != "a" {
		t.Errorf("tags not replaced cleanly: got %v base %v", got.Tags, base.Tags)
	}
	if string(got.Extra["rating"]) != "4.5" {
		t.Errorf("extra rating = %s", got.Extra["rating"])
	}
}
