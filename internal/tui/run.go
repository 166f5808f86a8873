package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"vibemon/internal/events"
	"vibemon/internal/livesync"
	"vibemon/internal/pushconn"
)

// Run starts the feeds, shows the dashboard until the user quits and
// stops the feeds again.
func Run(opts Options) error {
	m := NewModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())

	stop := attach(p, opts)
	defer stop()

	_, err := p.Run()
	return err
}

// attach forwards feed changes into the program and starts the feeds.
func attach(p *tea.Program, opts Options) func() {
	var cleanup []func()

	if opts.Push != nil {
		cleanup = append(cleanup, opts.Push.SubscribeStatus(func(s pushconn.Status) { p.Send(statusMsg(s)) }))
		if opts.Notifier != nil {
			cleanup = append(cleanup, opts.Push.Subscribe(func(ev events.Event) {
				if opts.Notifier.Observe(ev) {
					p.Send(noticeMsg{})
				}
			}))
		}
	}
	if opts.Stream != nil {
		cleanup = append(cleanup, opts.Stream.OnChange(func(s livesync.StreamState) { p.Send(streamMsg(s)) }))
		opts.Stream.Start()
		cleanup = append(cleanup, opts.Stream.Stop)
	}
	if opts.Summary != nil {
		cleanup = append(cleanup, opts.Summary.OnChange(func(s livesync.SummaryState) { p.Send(summaryMsg(s)) }))
		opts.Summary.Start()
		cleanup = append(cleanup, opts.Summary.Stop)
	}
	if opts.Proxy != nil {
		cleanup = append(cleanup, opts.Proxy.OnChange(func(s livesync.ForwardProxyState) { p.Send(proxyMsg(s)) }))
		opts.Proxy.Start()
		cleanup = append(cleanup, opts.Proxy.Stop)
	}
	if opts.Pricing != nil {
		cleanup = append(cleanup, opts.Pricing.OnChange(func(s livesync.PricingState) { p.Send(pricingMsg(s)) }))
		ctx, cancel := context.WithTimeout(context.Background(), livesync.DefaultFetchTimeout)
		cleanup = append(cleanup, cancel)
		go func() {
			if err := opts.Pricing.Load(ctx); err != nil && opts.Logger != nil {
				opts.Logger.Warn("load pricing", "error", err)
			}
		}()
	}

	return func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}
}
