// Package api is the REST client for the monitor backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vibemon/internal/stats"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8080"

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed: http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed: http %d", e.StatusCode)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}

// Client talks to the monitor backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client for baseURL. A nil httpClient gets a 15s
// timeout; a nil logger uses slog.Default.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger.With("component", "api")}
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// InvocationQuery selects recent invocations. Empty fields are unfiltered.
type InvocationQuery struct {
	Limit  int
	Model  string
	Status string
}

type listResponse struct {
	Records []stats.Invocation `json:"records"`
}

// ListInvocations returns the most recent invocations matching q.
func (c *Client) ListInvocations(ctx context.Context, q InvocationQuery) ([]stats.Invocation, error) {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Model != "" {
		v.Set("model", q.Model)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	var out listResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/invocations", v), nil, &out); err != nil {
		return nil, err
	}
	if out.Records == nil {
		out.Records = []stats.Invocation{}
	}
	return out.Records, nil
}

// FetchSummary returns the aggregate for a window key such as "1d".
func (c *Client) FetchSummary(ctx context.Context, window string) (stats.Summary, error) {
	v := url.Values{}
	v.Set("window", window)
	var out stats.Summary
	err := c.doJSON(ctx, http.MethodGet, withQuery("/api/stats/summary", v), nil, &out)
	return out, err
}

type timeseriesResponse struct {
	Points []stats.TimeseriesPoint `json:"points"`
}

// FetchTimeseries returns bucketed usage for a range key ("1d", "7d") and
// bucket size ("1h", "1d").
func (c *Client) FetchTimeseries(ctx context.Context, rangeKey, bucket string) ([]stats.TimeseriesPoint, error) {
	v := url.Values{}
	v.Set("range", rangeKey)
	if bucket != "" {
		v.Set("bucket", bucket)
	}
	var out timeseriesResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/stats/timeseries", v), nil, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

// FetchQuota returns the latest quota snapshot.
func (c *Client) FetchQuota(ctx context.Context) (stats.QuotaSnapshot, error) {
	var out stats.QuotaSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/api/quota/latest", nil, &out)
	return out, err
}

// FetchForwardProxyLiveStats returns the per-node forward-proxy stats.
func (c *Client) FetchForwardProxyLiveStats(ctx context.Context) (stats.ForwardProxyLiveStats, error) {
	var out stats.ForwardProxyLiveStats
	err := c.doJSON(ctx, http.MethodGet, "/api/stats/forward-proxy", nil, &out)
	return out, err
}

// FetchPricing returns the server's pricing table.
func (c *Client) FetchPricing(ctx context.Context) (stats.PricingSettings, error) {
	var out stats.PricingSettings
	err := c.doJSON(ctx, http.MethodGet, "/api/settings/pricing", nil, &out)
	return out, err
}

// UpdatePricing replaces the pricing table and returns what the server stored.
func (c *Client) UpdatePricing(ctx context.Context, settings stats.PricingSettings) (stats.PricingSettings, error) {
	var out stats.PricingSettings
	err := c.doJSON(ctx, http.MethodPut, "/api/settings/pricing", settings, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, requestPath, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, requestPath, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, requestPath, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	c.logger.Debug("request", "method", method, "path", requestPath, "status", resp.StatusCode, "duration", time.Since(start))
	if readErr != nil {
		return fmt.Errorf("read %s %s: %w", method, requestPath, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, requestPath, err)
	}
	return nil
}

func errorMessage(payload []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(payload, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(payload))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}
