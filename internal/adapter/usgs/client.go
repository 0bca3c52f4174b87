// Package usgs fetches earthquake GeoJSON from the USGS summary feeds and the
// FDSN event query service.
package usgs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/quake-feed-service/internal/domain"
	"github.com/couchcryptid/quake-feed-service/internal/observability"
)

const (
	// DefaultFeedBaseURL serves all_{hour,day,week,month}.geojson.
	DefaultFeedBaseURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"
	// DefaultQueryBaseURL is the FDSN event search endpoint.
	DefaultQueryBaseURL = "https://earthquake.usgs.gov/fdsnws/event/1/query"

	endpointQuery = "query"
	bodyExcerpt   = 512
)

// Client implements the feed fetches against USGS.
type Client struct {
	httpClient   *http.Client
	feedBaseURL  string
	queryBaseURL string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewClient creates a USGS client. Empty base URLs fall back to the public endpoints.
func NewClient(feedBaseURL, queryBaseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if feedBaseURL == "" {
		feedBaseURL = DefaultFeedBaseURL
	}
	if queryBaseURL == "" {
		queryBaseURL = DefaultQueryBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		feedBaseURL:  feedBaseURL,
		queryBaseURL: queryBaseURL,
		logger:       logger,
		metrics:      metrics,
	}
}

// Fetch retrieves the summary feed for an hour, day or week window.
func (c *Client) Fetch(ctx context.Context, kind domain.WindowKind) ([]domain.Earthquake, error) {
	switch kind {
	case domain.WindowHour, domain.WindowDay, domain.WindowWeek:
	default:
		return nil, fmt.Errorf("fetch %s: %w", kind, domain.ErrUnsupportedWindow)
	}
	return c.doRequest(ctx, c.FeedURL(kind), string(kind))
}

// FetchMonthly retrieves the 30 day summary feed. It does not fall back.
func (c *Client) FetchMonthly(ctx context.Context) ([]domain.Earthquake, error) {
	return c.doRequest(ctx, c.FeedURL(domain.WindowMonth), string(domain.WindowMonth))
}

// FetchRange queries events between the start and end dates, both inclusive.
// The end date extends through its final millisecond.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) ([]domain.Earthquake, error) {
	return c.doRequest(ctx, c.RangeURL(start, end), endpointQuery)
}

// FeedURL returns the summary feed URL for kind.
func (c *Client) FeedURL(kind domain.WindowKind) string {
	return fmt.Sprintf("%s/all_%s.geojson", c.feedBaseURL, kind)
}

// RangeURL returns the FDSN query URL for the inclusive date range.
func (c *Client) RangeURL(start, end time.Time) string {
	params := url.Values{
		"format":    {"geojson"},
		"starttime": {start.UTC().Format(time.DateOnly)},
		"endtime":   {end.UTC().Format(time.DateOnly) + "T23:59:59.999"},
		"orderby":   {"time-asc"},
	}
	return c.queryBaseURL + "?" + params.Encode()
}

func (c *Client) doRequest(ctx context.Context, fullURL, endpoint string) ([]domain.Earthquake, error) {
	op := "fetch " + endpoint
	start := time.Now()

	records, err := c.get(ctx, fullURL, op)

	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	if err != nil {
		if !domain.IsCancelled(err) {
			c.logger.Warn("usgs request failed", "endpoint", endpoint, "kind", domain.KindOf(err), "error", err)
		}
		return nil, err
	}

	c.metrics.FeedRecords.Observe(float64(len(records)))
	c.logger.Debug("usgs request complete", "endpoint", endpoint, "count", len(records), "duration", time.Since(start))
	return records, nil
}

func (c *Client) get(ctx context.Context, fullURL, op string) ([]domain.Earthquake, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, domain.NetworkError(op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if cancelled(ctx) {
			return nil, domain.CancelledError(op)
		}
		return nil, domain.NetworkError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerpt))
		c.logger.Debug("usgs error body", "status", resp.StatusCode, "body", string(body))
		return nil, domain.HTTPStatusError(op, resp.StatusCode)
	}

	var fc domain.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		if cancelled(ctx) {
			return nil, domain.CancelledError(op)
		}
		return nil, domain.ParseError(op, fmt.Errorf("decode response: %w", err))
	}
	if cancelled(ctx) {
		return nil, domain.CancelledError(op)
	}

	records, err := domain.NormalizeFeatures(fc.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
