package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vibemon/internal/api"
	"vibemon/internal/output"
	"vibemon/internal/ui"
)

// proxyValidator is the part of api.Client validate-proxy uses.
type proxyValidator interface {
	ValidateForwardProxy(ctx context.Context, proxyURL string) (api.ValidationResult, error)
	ValidateSubscription(ctx context.Context, subscriptionURL string) (api.ValidationResult, error)
}

// RunValidateProxy asks the backend to probe a proxy or, with
// subscription set, a subscription list.
func RunValidateProxy(target string, subscription bool) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	res, err := validateProxy(context.Background(), a.client, target, subscription)
	if err != nil {
		var ve *api.ValidationError
		if errors.As(err, &ve) {
			output.PrintError(fmt.Errorf("invalid input: %w", err))
			return
		}
		output.PrintError(err)
		return
	}
	output.Print(res, func() { printValidation(target, res) })
}

func validateProxy(ctx context.Context, v proxyValidator, target string, subscription bool) (api.ValidationResult, error) {
	if subscription {
		return v.ValidateSubscription(ctx, target)
	}
	return v.ValidateForwardProxy(ctx, target)
}

func printValidation(target string, res api.ValidationResult) {
	if !res.OK {
		msg := res.Message
		if msg == "" {
			msg = "unreachable"
		}
		ui.ShowError(fmt.Sprintf("%s: %s", target, msg), nil)
		return
	}
	ui.ShowSuccess("%s is reachable", target)
	if res.LatencyMs != nil {
		ui.ShowField("Latency", ui.FormatLatency(res.LatencyMs))
	}
	if res.NodeCount != nil {
		ui.ShowField("Nodes", fmt.Sprintf("%d", *res.NodeCount))
	}
	if res.Message != "" {
		ui.ShowField("Message", res.Message)
	}
}

// forwardProxyStore is the part of api.Client the forward-proxy commands use.
type forwardProxyStore interface {
	FetchForwardProxySettings(ctx context.Context) (api.ForwardProxySettings, error)
	UpdateForwardProxySettings(ctx context.Context, s api.ForwardProxySettings) (api.ForwardProxySettings, error)
}

// ProxyChanges is an edit of the forward-proxy settings. Nil fields are
// left as they are.
type ProxyChanges struct {
	Enabled         *bool
	Add             []string
	Remove          []string
	SubscriptionURL *string
	RefreshMinutes  *int
}

// RunForwardProxyShow prints the forward-proxy settings.
func RunForwardProxyShow() {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout.D())
	defer cancel()
	s, err := a.client.FetchForwardProxySettings(ctx)
	if err != nil {
		output.PrintError(fmt.Errorf("fetch forward-proxy settings: %w", err))
		return
	}
	output.Print(s, func() { printForwardProxy(s) })
}

// RunForwardProxySet applies ch to the stored settings.
func RunForwardProxySet(ch ProxyChanges) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout.D())
	defer cancel()
	s, err := updateForwardProxy(ctx, a.client, ch)
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(s, func() {
		ui.ShowSuccess("Forward-proxy settings saved")
		if s.Enabled && len(s.ProxyURLs) == 0 && s.SubscriptionURL == "" {
			ui.ShowWarning("forward proxy is enabled but has no proxies or subscription")
		}
		printForwardProxy(s)
	})
}

func updateForwardProxy(ctx context.Context, store forwardProxyStore, ch ProxyChanges) (api.ForwardProxySettings, error) {
	cur, err := store.FetchForwardProxySettings(ctx)
	if err != nil {
		return api.ForwardProxySettings{}, fmt.Errorf("fetch forward-proxy settings: %w", err)
	}
	next := applyProxyChanges(cur, ch)
	saved, err := store.UpdateForwardProxySettings(ctx, next)
	if err != nil {
		return api.ForwardProxySettings{}, fmt.Errorf("save forward-proxy settings: %w", err)
	}
	return saved, nil
}

// applyProxyChanges removes before adding and keeps URLs unique in
// their original order.
func applyProxyChanges(s api.ForwardProxySettings, ch ProxyChanges) api.ForwardProxySettings {
	if ch.Enabled != nil {
		s.Enabled = *ch.Enabled
	}
	if ch.SubscriptionURL != nil {
		s.SubscriptionURL = strings.TrimSpace(*ch.SubscriptionURL)
	}
	if ch.RefreshMinutes != nil {
		s.RefreshMinutes = *ch.RefreshMinutes
	}

	drop := make(map[string]bool, len(ch.Remove))
	for _, u := range ch.Remove {
		drop[strings.TrimSpace(u)] = true
	}
	seen := make(map[string]bool)
	urls := make([]string, 0, len(s.ProxyURLs)+len(ch.Add))
	for _, u := range append(append([]string{}, s.ProxyURLs...), ch.Add...) {
		u = strings.TrimSpace(u)
		if u == "" || drop[u] || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	s.ProxyURLs = urls
	return s
}

func printForwardProxy(s api.ForwardProxySettings) {
	ui.ShowHeader("Forward proxy")
	enabled := "no"
	if s.Enabled {
		enabled = "yes"
	}
	ui.ShowField("Enabled", enabled)
	if s.SubscriptionURL != "" {
		ui.ShowField("Subscription", s.SubscriptionURL)
	}
	if s.RefreshMinutes > 0 {
		ui.ShowField("Refresh", fmt.Sprintf("every %d min", s.RefreshMinutes))
	}
	if len(s.ProxyURLs) == 0 {
		ui.ShowField("Proxies", "none")
		return
	}
	for i, u := range s.ProxyURLs {
		ui.ShowField(fmt.Sprintf("Proxy %d", i+1), u)
	}
}
