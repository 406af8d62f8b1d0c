package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/llehouerou/wavebot/internal/library"
)

const userAgent = "wavebot/1.0 (https://github.com/llehouerou/wavebot)"

// HTTPClient talks to a catalog service:
//
//	GET {base}/tracks/{id}/stream -> {"url": "..."}
//	GET {base}/tracks?ids=a,b     -> [{"id": ..., "title": ...}, ...]
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a catalog client. A zero timeout means 10s.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type streamResponse struct {
	URL string `json:"url"`
}

type trackResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	DurationMs int64  `json:"durationMs"`
	CoverURL   string `json:"coverUrl"`
	URL        string `json:"url"`
}

// StreamURL requests a fresh, possibly short-lived stream URL.
func (c *HTTPClient) StreamURL(ctx context.Context, trackID string) (string, error) {
	reqURL := fmt.Sprintf("%s/tracks/%s/stream", c.baseURL, url.PathEscape(trackID))

	var result streamResponse
	if err := c.get(ctx, reqURL, &result); err != nil {
		return "", err
	}
	if result.URL == "" {
		return "", fmt.Errorf("%w: empty url for %s", ErrNoStream, trackID)
	}
	return result.URL, nil
}

// Tracks fetches catalog metadata for the given ids. Unknown ids are
// omitted from the result.
func (c *HTTPClient) Tracks(ctx context.Context, ids []string) ([]library.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	reqURL := fmt.Sprintf("%s/tracks?%s", c.baseURL, params.Encode())

	var results []trackResponse
	if err := c.get(ctx, reqURL, &results); err != nil {
		return nil, err
	}

	tracks := make([]library.Track, 0, len(results))
	for _, r := range results {
		tracks = append(tracks, library.Track{
			ID:       r.ID,
			Title:    r.Title,
			Artist:   r.Artist,
			Duration: time.Duration(r.DurationMs) * time.Millisecond,
			CoverURL: r.CoverURL,
			URL:      r.URL,
		})
	}
	return tracks, nil
}

func (c *HTTPClient) get(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoStream
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

