// Package importer reads franchise listings from spreadsheets.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/fransearch/internal/apperr"
	"github.com/hyperjump/fransearch/internal/models"
)

// headerAliases maps common column names onto listing fields.
var headerAliases = map[string]string{
	"name":       "title",
	"franchise":  "title",
	"category":   "sector",
	"industry":   "sector",
	"investment": "investment_range",
	"city":       "location",
	"keywords":   "tags",
}

// Row is one parsed spreadsheet row. Number is 1-based as shown in the
// spreadsheet.
type Row struct {
	Number  int
	Listing models.Listing
}

// RowError reports a row that could not be imported.
type RowError struct {
	Row int    `json:"row"`
	Err string `json:"error"`
}

// Result summarizes an import.
type Result struct {
	Imported []models.Listing `json:"imported"`
	Skipped  []RowError       `json:"skipped"`
}

// Appender adds a listing to the dataset.
type Appender interface {
	Append(l models.Listing) (models.Listing, error)
}

// ReadFile parses the spreadsheet at path. An empty sheet means the first
// sheet.
func ReadFile(path, sheet string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return readRows(f, sheet)
}

// Read parses a spreadsheet from r.
func Read(r io.Reader, sheet string) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()
	return readRows(f, sheet)
}

func readRows(f *excelize.File, sheet string) ([]Row, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("spreadsheet has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = normalizeHeader(h)
	}
	if !contains(header, "title") || !contains(header, "sector") {
		return nil, fmt.Errorf("sheet %q needs title and sector columns", sheet)
	}

	var out []Row
	for i, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		l, err := parseRow(header, cells)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, Row{Number: i + 2, Listing: l})
	}
	return out, nil
}

func parseRow(header, cells []string) (models.Listing, error) {
	var l models.Listing
	for i, key := range header {
		if key == "" || i >= len(cells) {
			continue
		}
		v := strings.TrimSpace(cells[i])
		if v == "" {
			continue
		}
		switch key {
		case "id":
			id, err := strconv.Atoi(v)
			if err != nil || id < 0 {
				return l, fmt.Errorf("id %q is not a positive integer", v)
			}
			l.ID = id
		case "title":
			l.Title = v
		case "sector":
			l.Sector = v
		case "description":
			l.Description = v
		case "investment_range":
			l.InvestmentRange = v
		case "location":
			l.Location = v
		case "tags":
			l.Tags = splitTags(v)
		default:
			if err := l.SetExtra(key, v); err != nil {
				return l, err
			}
		}
	}
	return l, nil
}

// Import appends rows to the store. Rows that fail validation are skipped
// and reported; any other error stops the import.
func Import(store Appender, rows []Row) (*Result, error) {
	res := &Result{Imported: []models.Listing{}, Skipped: []RowError{}}
	for _, r := range rows {
		added, err := store.Append(r.Listing)
		if err != nil {
			if errors.Is(err, apperr.ErrValidation) {
				res.Skipped = append(res.Skipped, RowError{Row: r.Number, Err: err.Error()})
				continue
			}
			return res, fmt.Errorf("row %d: %w", r.Number, err)
		}
		res.Imported = append(res.Imported, added)
	}
	return res, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.Join(strings.Fields(h), "_")
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
