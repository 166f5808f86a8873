package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"vibemon/internal/livesync"
	"vibemon/internal/stats"
)

const defaultRecentLimit = 20

func registerTools(server *mcpsdk.Server, src Sources) {
	t := tools{src: src}

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "recent_invocations",
		Description: "List the most recent proxied LLM invocations, newest first, optionally filtered by model or status",
	}, t.recentInvocations)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "usage_summary",
		Description: "Get request count, success rate, cost and tokens for a window (current, 30m, 1h, today, 1d, 7d, thisWeek, thisMonth, 30d, all)",
	}, t.usageSummary)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "usage_timeseries",
		Description: "Get bucketed request count, cost and tokens over a range such as 1d or 7d",
	}, t.usageTimeseries)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "connection_status",
		Description: "Report the state of the live push connection to the monitor backend",
	}, t.connectionStatus)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        "forward_proxy_stats",
		Description: "Get live health and traffic of the forward-proxy upstream nodes",
	}, t.forwardProxyStats)
}

type tools struct {
	src Sources
}

var errUnavailable = errors.New("not available in this session")

// recent_invocations types

type recentInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of records (default 20)"`
	Model  string `json:"model,omitempty" jsonschema:"Only records for this model"`
	Status string `json:"status,omitempty" jsonschema:"Only records with this status, e.g. success or failed"`
}

type recentOutput struct {
	Count   int                `json:"count"`
	Records []stats.Invocation `json:"records"`
}

func (t tools) recentInvocations(ctx context.Context, req *mcpsdk.CallToolRequest, input recentInput) (*mcpsdk.CallToolResult, recentOutput, error) {
	if t.src.Records == nil {
		return nil, recentOutput{}, fmt.Errorf("records: %w", errUnavailable)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	filter := livesync.Filter{Model: input.Model, Status: input.Status}
	records := livesync.MergeRecords(t.src.Records(), nil, limit, filter)
	if records == nil {
		records = []stats.Invocation{}
	}
	return nil, recentOutput{Count: len(records), Records: records}, nil
}

// usage_summary types

type summaryInput struct {
	Window string `json:"window,omitempty" jsonschema:"Aggregation window (default current)"`
}

type summaryOutput struct {
	Window      string        `json:"window"`
	SuccessRate float64       `json:"successRate"`
	Summary     stats.Summary `json:"summary"`
}

func (t tools) usageSummary(ctx context.Context, req *mcpsdk.CallToolRequest, input summaryInput) (*mcpsdk.CallToolResult, summaryOutput, error) {
	window := input.Window
	if window == "" {
		window = livesync.CurrentWindow
	}

	var summary stats.Summary
	switch {
	case window == livesync.CurrentWindow && t.src.Records != nil:
		var pricing *stats.PricingSettings
		if t.src.Pricing != nil {
			pricing = t.src.Pricing()
		}
		summary = stats.SummarizeRecords(t.src.Records(), time.Time{}, time.Time{}, pricing)
	case t.src.Summaries != nil:
		ctx, cancel := context.WithTimeout(ctx, livesync.DefaultFetchTimeout)
		defer cancel()
		var err error
		summary, err = t.src.Summaries.FetchSummary(ctx, window)
		if err != nil {
			return nil, summaryOutput{}, fmt.Errorf("fetch %s summary: %w", window, err)
		}
	default:
		return nil, summaryOutput{}, fmt.Errorf("summary: %w", errUnavailable)
	}
	return nil, summaryOutput{Window: window, SuccessRate: summary.SuccessRate(), Summary: summary}, nil
}

// usage_timeseries types

type timeseriesInput struct {
	Range  string `json:"range,omitempty" jsonschema:"Range key, e.g. 1d or 7d (default 1d)"`
	Bucket string `json:"bucket,omitempty" jsonschema:"Bucket size, e.g. 1h or 1d (backend default when empty)"`
}

type timeseriesOutput struct {
	Range     string                  `json:"range"`
	TotalCost float64                 `json:"totalCost"`
	Points    []stats.TimeseriesPoint `json:"points"`
}

func (t tools) usageTimeseries(ctx context.Context, req *mcpsdk.CallToolRequest, input timeseriesInput) (*mcpsdk.CallToolResult, timeseriesOutput, error) {
	if t.src.Timeseries == nil {
		return nil, timeseriesOutput{}, fmt.Errorf("timeseries: %w", errUnavailable)
	}
	rangeKey := input.Range
	if rangeKey == "" {
		rangeKey = "1d"
	}
	ctx, cancel := context.WithTimeout(ctx, livesync.DefaultFetchTimeout)
	defer cancel()
	points, err := t.src.Timeseries.FetchTimeseries(ctx, rangeKey, input.Bucket)
	if err != nil {
		return nil, timeseriesOutput{}, fmt.Errorf("fetch %s timeseries: %w", rangeKey, err)
	}
	out := timeseriesOutput{Range: rangeKey, Points: []stats.TimeseriesPoint{}}
	for _, p := range points {
		out.TotalCost += p.TotalCost
		out.Points = append(out.Points, p)
	}
	return nil, out, nil
}

// connection_status types

type statusInput struct{}

type statusOutput struct {
	Status    string `json:"status"`
	Transport string `json:"transport,omitempty"`
}

func (t tools) connectionStatus(ctx context.Context, req *mcpsdk.CallToolRequest, _ statusInput) (*mcpsdk.CallToolResult, statusOutput, error) {
	if t.src.Status == nil {
		return nil, statusOutput{}, fmt.Errorf("connection: %w", errUnavailable)
	}
	return nil, statusOutput{Status: string(t.src.Status.Status()), Transport: t.src.Transport}, nil
}

// forward_proxy_stats types

type proxyInput struct{}

type proxyOutput struct {
	Healthy   int                      `json:"healthy"`
	Total     int                      `json:"total"`
	UpdatedAt string                   `json:"updatedAt,omitempty"`
	Nodes     []stats.ForwardProxyNode `json:"nodes"`
	Error     string                   `json:"error,omitempty"`
}

func (t tools) forwardProxyStats(ctx context.Context, req *mcpsdk.CallToolRequest, _ proxyInput) (*mcpsdk.CallToolResult, proxyOutput, error) {
	if t.src.Proxy == nil {
		return nil, proxyOutput{}, fmt.Errorf("forward proxy: %w", errUnavailable)
	}
	st := t.src.Proxy.State()
	out := proxyOutput{Nodes: []stats.ForwardProxyNode{}}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	if st.Stats == nil {
		if st.Err == nil {
			return nil, proxyOutput{}, errors.New("forward proxy stats not loaded yet")
		}
		return nil, out, nil
	}
	out.Nodes = append(out.Nodes, st.Stats.Nodes...)
	out.Total = len(st.Stats.Nodes)
	out.Healthy = st.Stats.Healthy()
	out.UpdatedAt = st.Stats.UpdatedAt
	return nil, out, nil
}
