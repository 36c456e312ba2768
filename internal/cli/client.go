package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hyperjump/fransearch/internal/models"
)

// Client talks to a running fransearch server.
type Client struct {
	BaseURL  string
	AdminKey string
	HTTP     *http.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		AdminKey: adminKey,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Search runs GET /api/search.
func (c *Client) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	v := url.Values{}
	v.Set("q", q.Query)
	if q.TopN > 0 {
		v.Set("top_n", strconv.Itoa(q.TopN))
	}
	if q.SemanticWeight != nil {
		v.Set("semantic_weight", strconv.FormatFloat(*q.SemanticWeight, 'f', -1, 64))
	}
	if q.Filters.Sector != "" {
		v.Set("sector", q.Filters.Sector)
	}
	if q.Filters.Location != "" {
		v.Set("location", q.Filters.Location)
	}
	if len(q.Filters.Tags) > 0 {
		v.Set("tags", strings.Join(q.Filters.Tags, ","))
	}
	var out models.SearchResponse
	if err := c.get(ctx, "/api/search?"+v.Encode(), false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the dataset and model status from the admin stats route.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	var out StatusReport
	if err := c.get(ctx, "/api/admin/stats", true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, admin bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if admin && c.AdminKey != "" {
		req.Header.Set("X-Admin-API-Key", c.AdminKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &body) == nil && body.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
