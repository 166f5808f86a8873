package mcpserver

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"vibemon/internal/livesync"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

// RecordSource exposes the live record view.
type RecordSource interface {
	Records() []stats.Invocation
}

// StatusSource reports the push connection status.
type StatusSource interface {
	Status() pushconn.Status
}

// ProxySource exposes the forward-proxy feed state.
type ProxySource interface {
	State() livesync.ForwardProxyState
}

// TimeseriesSource returns bucketed usage.
type TimeseriesSource interface {
	FetchTimeseries(ctx context.Context, rangeKey, bucket string) ([]stats.TimeseriesPoint, error)
}

// Sources is the live state the tools read. Nil sources make their
// tools report that the data is unavailable.
type Sources struct {
	Records    RecordSource
	Status     StatusSource
	Proxy      ProxySource
	Summaries  livesync.SummaryFetcher
	Timeseries TimeseriesSource
	Pricing    func() *stats.PricingSettings
	Transport  string
}

// NewServer returns an MCP server exposing the live state.
func NewServer(version string, src Sources) *mcpsdk.Server {
	server := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "vibemon",
			Version: version,
		},
		nil,
	)
	registerTools(server, src)
	return server
}

// RunServer serves the tools over stdio until ctx is done or the client
// disconnects.
func RunServer(ctx context.Context, version string, src Sources) error {
	return NewServer(version, src).Run(ctx, &mcpsdk.StdioTransport{})
}
