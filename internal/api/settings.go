package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Validation request timeouts.
const (
	ProxyValidateTimeout        = 5 * time.Second
	SubscriptionValidateTimeout = 60 * time.Second
)

// ForwardProxySettings configures the backend's upstream forward proxies.
type ForwardProxySettings struct {
	Enabled         bool     `json:"enabled"`
	ProxyURLs       []string `json:"proxyUrls"`
	SubscriptionURL string   `json:"subscriptionUrl,omitempty"`
	RefreshMinutes  int      `json:"refreshMinutes,omitempty"`
}

// ValidationResult is the backend's verdict on a proxy or subscription.
type ValidationResult struct {
	OK        bool     `json:"ok"`
	Message   string   `json:"message,omitempty"`
	LatencyMs *float64 `json:"latencyMs,omitempty"`
	NodeCount *int     `json:"nodeCount,omitempty"`
}

// ValidationError is a user-input problem caught before any request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// FetchForwardProxySettings returns the forward-proxy configuration.
func (c *Client) FetchForwardProxySettings(ctx context.Context) (ForwardProxySettings, error) {
	var out ForwardProxySettings
	err := c.doJSON(ctx, http.MethodGet, "/api/settings/forward-proxy", nil, &out)
	return out, err
}

// UpdateForwardProxySettings stores the forward-proxy configuration.
func (c *Client) UpdateForwardProxySettings(ctx context.Context, s ForwardProxySettings) (ForwardProxySettings, error) {
	for i, raw := range s.ProxyURLs {
		if err := ValidateProxyURL(raw); err != nil {
			return ForwardProxySettings{}, fmt.Errorf("proxy %d: %w", i+1, err)
		}
	}
	var out ForwardProxySettings
	err := c.doJSON(ctx, http.MethodPut, "/api/settings/forward-proxy", s, &out)
	return out, err
}

// ValidateForwardProxy asks the backend to probe a single proxy. The
// request is abandoned after ProxyValidateTimeout.
func (c *Client) ValidateForwardProxy(ctx context.Context, proxyURL string) (ValidationResult, error) {
	if err := ValidateProxyURL(proxyURL); err != nil {
		return ValidationResult{}, err
	}
	return c.validate(ctx, "proxy", strings.TrimSpace(proxyURL), ProxyValidateTimeout)
}

// ValidateSubscription asks the backend to fetch and probe a proxy
// subscription list. The request is abandoned after
// SubscriptionValidateTimeout.
func (c *Client) ValidateSubscription(ctx context.Context, subscriptionURL string) (ValidationResult, error) {
	u, err := url.Parse(strings.TrimSpace(subscriptionURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ValidationResult{}, &ValidationError{Field: "subscription url", Reason: "must be an http(s) url"}
	}
	return c.validate(ctx, "subscription", u.String(), SubscriptionValidateTimeout)
}

func (c *Client) validate(ctx context.Context, kind, value string, timeout time.Duration) (ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body := map[string]string{"kind": kind, "value": value}
	var out ValidationResult
	err := c.doJSON(ctx, http.MethodPost, "/api/settings/forward-proxy/validate", body, &out)
	return out, err
}

var proxySchemes = map[string]bool{"http": true, "https": true, "socks5": true, "socks5h": true}

// ValidateProxyURL checks a user-entered proxy address.
func ValidateProxyURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{Field: "proxy url", Reason: "is empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Field: "proxy url", Reason: "cannot be parsed"}
	}
	if !proxySchemes[strings.ToLower(u.Scheme)] {
		return &ValidationError{Field: "proxy url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return &ValidationError{Field: "proxy url", Reason: "missing host"}
	}
	if p := u.Port(); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil || port < 1 || port > 65535 {
			return &ValidationError{Field: "proxy url", Reason: "invalid port"}
		}
	}
	return nil
}
