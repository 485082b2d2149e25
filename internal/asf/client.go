// Package asf is a client for the ASF Search API, used to look up
// Sentinel-1 granule metadata and download URLs.
package asf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// ErrGranuleNotFound is returned when ASF Search has no record of a scene.
var ErrGranuleNotFound = errors.New("granule not found")

const userAgent = "sarprep/1.0"

// Client handles communication with the ASF Search API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ASF API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithToken sets the Earthdata Login bearer token sent with every request.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// Token returns the configured bearer token.
func (c *Client) Token() string {
	return c.token
}

// Search performs a search against the ASF API
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	c.logger.DebugContext(ctx, "executing ASF search",
		slog.String("url", searchURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ASF API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "ASF API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("ASF API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ASF response: %w", err)
	}

	c.logger.DebugContext(ctx, "ASF search completed",
		slog.Int("feature_count", len(result.Features)),
	)

	return &result, nil
}

// GetGranule retrieves the GRD product record for a scene name.
// ASF returns one record per product of a scene (GRD, SLC, metadata), so
// the record whose file name matches the scene is preferred, then any GRD
// product.
func (c *Client) GetGranule(ctx context.Context, sceneName string) (*Feature, error) {
	params := SearchParams{
		GranuleList: []string{sceneName},
		Output:      "geojson",
	}

	result, err := c.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to search for granule: %w", err)
	}

	if len(result.Features) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrGranuleNotFound, sceneName)
	}

	for i := range result.Features {
		p := &result.Features[i].Properties
		if strings.TrimSuffix(p.FileName, ".zip") == sceneName {
			return &result.Features[i], nil
		}
	}
	for i := range result.Features {
		if strings.HasPrefix(result.Features[i].Properties.ProcessingLevel, "GRD") {
			return &result.Features[i], nil
		}
	}

	c.logger.DebugContext(ctx, "no GRD record for scene, using first result",
		slog.String("scene", sceneName),
		slog.Int("result_count", len(result.Features)),
	)
	return &result.Features[0], nil
}

// SceneQuery selects GRD scenes covering an area.
type SceneQuery struct {
	Area            *geojson.Geometry
	Start           *time.Time
	End             *time.Time
	BeamMode        string
	FlightDirection string
	RelativeOrbit   int
	MaxResults      int
}

// FindScenes lists the Sentinel-1 GRD_HD products intersecting q.Area.
// Metadata records are skipped, so each scene appears once.
func (c *Client) FindScenes(ctx context.Context, q SceneQuery) ([]Feature, error) {
	wkt, err := geojson.ToWKT(q.Area)
	if err != nil {
		return nil, fmt.Errorf("invalid search area: %w", err)
	}

	params := SearchParams{
		Platform:        []string{"Sentinel-1"},
		IntersectsWith:  wkt,
		Start:           q.Start,
		End:             q.End,
		FlightDirection: q.FlightDirection,
		ProcessingLevel: []string{"GRD_HD"},
		MaxResults:      q.MaxResults,
	}
	if q.BeamMode != "" {
		params.BeamMode = []string{q.BeamMode}
	}
	if q.RelativeOrbit > 0 {
		params.RelativeOrbit = []int{q.RelativeOrbit}
	}

	result, err := c.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	scenes := make([]Feature, 0, len(result.Features))
	for _, f := range result.Features {
		if f.Properties.ProcessingLevel == "GRD_HD" {
			scenes = append(scenes, f)
		}
	}
	return scenes, nil
}

// buildSearchURL constructs the full search URL with query parameters
func (c *Client) buildSearchURL(params SearchParams) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	base.Path = "/services/search/param"
	base.RawQuery = params.ToQueryString()

	return base.String(), nil
}
