package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"vibemon/internal/api"
	"vibemon/internal/livesync"
	"vibemon/internal/output"
	"vibemon/internal/stats"
	"vibemon/internal/ui"
)

// SnapshotResult is the one-shot view printed by the snapshot command.
type SnapshotResult struct {
	Window       string                       `json:"window"`
	Summary      stats.Summary                `json:"summary"`
	Quota        *stats.QuotaSnapshot         `json:"quota,omitempty"`
	ForwardProxy *stats.ForwardProxyLiveStats `json:"forwardProxy,omitempty"`
}

// snapshotSource is the part of api.Client a snapshot reads.
type snapshotSource interface {
	livesync.RecordFetcher
	livesync.SummaryFetcher
	livesync.ForwardProxyFetcher
	FetchQuota(ctx context.Context) (stats.QuotaSnapshot, error)
	FetchPricing(ctx context.Context) (stats.PricingSettings, error)
}

// RunSnapshot prints the summary, quota and forward-proxy stats once.
func RunSnapshot(window string) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	if window == "" {
		window = a.cfg.Window
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout.D())
	defer cancel()

	res, err := takeSnapshot(ctx, a.client, window, a.cfg.Limit)
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(res, func() { printSnapshot(res) })
}

// takeSnapshot fetches the three views concurrently. The current window
// is summarized from recent records like the dashboard does. Quota and
// forward-proxy stats are optional on the backend; a 404 leaves them nil.
func takeSnapshot(ctx context.Context, src snapshotSource, window string, limit int) (SnapshotResult, error) {
	res := SnapshotResult{Window: window}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if window != livesync.CurrentWindow {
			s, err := src.FetchSummary(ctx, window)
			if err != nil {
				return fmt.Errorf("fetch summary: %w", err)
			}
			res.Summary = s
			return nil
		}
		records, err := src.ListInvocations(ctx, api.InvocationQuery{Limit: limit})
		if err != nil {
			return fmt.Errorf("fetch records: %w", err)
		}
		var pricing *stats.PricingSettings
		if p, err := src.FetchPricing(ctx); err == nil {
			pricing = &p
		}
		res.Summary = stats.SummarizeRecords(records, time.Time{}, time.Time{}, pricing)
		return nil
	})
	g.Go(func() error {
		q, err := src.FetchQuota(ctx)
		switch {
		case api.IsStatus(err, http.StatusNotFound):
		case err != nil:
			return fmt.Errorf("fetch quota: %w", err)
		default:
			res.Quota = &q
		}
		return nil
	})
	g.Go(func() error {
		s, err := src.FetchForwardProxyLiveStats(ctx)
		switch {
		case api.IsStatus(err, http.StatusNotFound):
		case err != nil:
			return fmt.Errorf("fetch forward-proxy stats: %w", err)
		default:
			res.ForwardProxy = &s
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return SnapshotResult{}, err
	}
	return res, nil
}

func printSnapshot(res SnapshotResult) {
	s := res.Summary
	ui.ShowHeader(fmt.Sprintf("Usage (%s)", res.Window))
	ui.ShowField("Requests", fmt.Sprintf("%d", s.TotalCount))
	ui.ShowField("Success rate", ui.FormatPercent(s.SuccessRate()))
	ui.ShowField("Failures", fmt.Sprintf("%d", s.FailureCount))
	ui.ShowField("Tokens", ui.FormatTokens(s.TotalTokens))
	ui.ShowField("Cost", ui.FormatCost(s.TotalCost))
	for _, m := range s.ByModel {
		ui.ShowField("  "+ui.ShortenModel(m.Model), fmt.Sprintf("%d calls, %s", m.Count, ui.FormatCost(m.Cost)))
	}

	if q := res.Quota; q != nil {
		ui.ShowHeader("Quota")
		if q.SubscriptionName != nil {
			ui.ShowField("Subscription", *q.SubscriptionName)
		}
		ui.ShowField("Used", optionalAmount(q.UsedAmount))
		ui.ShowField("Remaining", optionalAmount(q.RemainingAmount))
		ui.ShowField("Total", optionalAmount(q.TotalAmount))
		ui.ShowField("Captured", q.CapturedAt)
	}

	if p := res.ForwardProxy; p != nil {
		ui.ShowHeader("Forward proxy")
		ui.ShowField("Healthy", fmt.Sprintf("%d/%d", p.Healthy(), len(p.Nodes)))
		for _, n := range p.Nodes {
			state := "down"
			if n.Healthy {
				state = "up"
			}
			ui.ShowField("  "+n.Name, fmt.Sprintf("%s, %d req/min, %s", state, n.Requests1m, ui.FormatLatency(n.AvgLatencyMs)))
		}
	}
}

func optionalAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return ui.FormatCost(*v)
}
