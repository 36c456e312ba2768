package dataset

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/hyperjump/fransearch/internal/models"
)

const (
	listingsKey = "listings"
	versionKey  = "dataset_version"
)

// Format is the top-level shape of the dataset file.
type Format string

const (
	// FormatArray is a bare JSON array of listings.
	FormatArray Format = "array"
	// FormatWrapped is an object with a "listings" array and optional other keys.
	FormatWrapped Format = "wrapped"
)

// fileLayout remembers how the file looked so writes keep its shape.
type fileLayout struct {
	format Format
	extra  map[string]json.RawMessage
}

type decoded struct {
	listings []models.Listing
	version  int64
	layout   fileLayout
}

func decodeFile(data []byte) (*decoded, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &decoded{layout: fileLayout{format: FormatWrapped}}, nil
	}
	switch trimmed[0] {
	case '[':
		var listings []models.Listing
		if err := json.Unmarshal(trimmed, &listings); err != nil {
			return nil, fmt.Errorf("decode listing array: %w", err)
		}
		return &decoded{listings: listings, layout: fileLayout{format: FormatArray}}, nil
	case '{':
		var top map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &top); err != nil {
			return nil, fmt.Errorf("decode dataset object: %w", err)
		}
		raw, ok := top[listingsKey]
		if !ok {
			return nil, fmt.Errorf("dataset object has no %q array", listingsKey)
		}
		out := &decoded{layout: fileLayout{format: FormatWrapped}}
		if err := json.Unmarshal(raw, &out.listings); err != nil {
			return nil, fmt.Errorf("decode %s: %w", listingsKey, err)
		}
		if v, ok := top[versionKey]; ok {
			n, err := strconv.ParseInt(string(bytes.TrimSpace(v)), 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid %s %s", versionKey, v)
			}
			out.version = n
		}
		delete(top, listingsKey)
		delete(top, versionKey)
		if len(top) > 0 {
			out.layout.extra = top
		}
		return out, nil
	default:
		return nil, fmt.Errorf("dataset must be a JSON array or object")
	}
}

func encodeFile(listings []models.Listing, version int64, layout fileLayout) ([]byte, error) {
	if listings == nil {
		listings = []models.Listing{}
	}
	if layout.format == FormatArray {
		return json.MarshalIndent(listings, "", "  ")
	}
	top := make(map[string]any, len(layout.extra)+2)
	for k, v := range layout.extra {
		top[k] = v
	}
	top[listingsKey] = listings
	top[versionKey] = version
	return json.MarshalIndent(top, "", "  ")
}
