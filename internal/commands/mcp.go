package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vibemon/internal/livesync"
	mcpserver "vibemon/internal/mcp"
	"vibemon/internal/output"
)

// RunMCP serves the live state over MCP on stdio. Logs go to the log
// file or stderr; stdout belongs to the protocol.
func RunMCP() {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	push, err := a.newPush()
	if err != nil {
		output.PrintError(err)
		return
	}
	defer push.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := a.newFeeds(push, livesync.Filter{}, nil)
	f.stream.Start()
	defer f.stream.Stop()
	f.proxy.Start()
	defer f.proxy.Stop()
	go func() {
		if err := f.pricing.Load(ctx); err != nil {
			a.logger.Warn("load pricing", "error", err)
		}
	}()

	err = mcpserver.RunServer(ctx, Version, mcpserver.Sources{
		Records:    f.stream,
		Status:     push,
		Proxy:      f.proxy,
		Summaries:  a.client,
		Timeseries: a.client,
		Pricing:    draftOf(f.pricing),
		Transport:  a.cfg.Transport,
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
