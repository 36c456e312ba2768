// Package cli provides output formatting and an HTTP client for the
// fransearch command line.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/models"
	"github.com/hyperjump/fransearch/pkg/utils"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact prints one result per line.
	OutputCompact OutputFormat = "compact"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputCompact:
		return OutputCompact, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// StatusReport is what the status command prints.
type StatusReport struct {
	Dataset dataset.Stats `json:"dataset"`
	Model   model.Status  `json:"model"`
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%d\t%s\t%s\n", r.Rank, r.Score, r.Listing.ID, r.Listing.Title, r.Listing.Sector)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (semantic weight %.2f)\n",
		response.Total, response.QueryTime, response.SemanticWeight)
	if response.Degraded {
		fmt.Fprintln(w, "Note: semantic scoring unavailable, results are keyword-only")
	}
	if response.Stale {
		fmt.Fprintln(w, "Note: the search index is older than the dataset, retrain to include recent changes")
	}
	if response.DidYouMean != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", response.DidYouMean)
	}
	fmt.Fprintln(w)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	l := result.Listing
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
		result.Rank, result.Score, result.KeywordScore, result.SemanticScore)
	fmt.Fprintf(w, "#%d %s [%s]\n", l.ID, l.Title, l.Sector)
	if l.Location != "" || l.InvestmentRange != "" {
		fmt.Fprintln(w, utils.JoinNonEmpty(l.Location, l.InvestmentRange))
	}
	if len(l.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(l.Tags, ", "))
	}
	if l.Description != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(l.Description, 200))
	}
	fmt.Fprintln(w)
}

// WriteStatus writes a status report to w.
func WriteStatus(w io.Writer, report *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	d, m := report.Dataset, report.Model
	fmt.Fprintf(w, "Dataset:     %s (%s)\n", d.Path, d.Format)
	fmt.Fprintf(w, "Listings:    %d\n", d.Listings)
	fmt.Fprintf(w, "Version:     %d\n", d.Version)
	fmt.Fprintf(w, "Size:        %s\n", FormatBytes(d.SizeBytes))
	fmt.Fprintf(w, "Model state: %s\n", m.State)
	if m.BundleID != "" {
		fmt.Fprintf(w, "Bundle:      %s (source %s)\n", m.BundleID, m.Source)
		fmt.Fprintf(w, "Encoder:     %s, index %s\n", m.EncoderModel, m.IndexType)
		fmt.Fprintf(w, "Trained on:  %d listings at dataset version %d\n", m.Rows, m.BundleVersion)
		if m.TrainedAt != nil {
			fmt.Fprintf(w, "Trained at:  %s\n", m.TrainedAt.Format("2006-01-02 15:04:05 MST"))
		}
		if m.Stale {
			fmt.Fprintln(w, "Stale:       yes, retrain to include recent changes")
		}
	}
	if m.LastError != "" {
		fmt.Fprintf(w, "Last error:  %s\n", m.LastError)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatBytes renders n as a human-readable size.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
