package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"vibemon/internal/api"
	"vibemon/internal/config"
	"vibemon/internal/livesync"
	"vibemon/internal/logger"
	"vibemon/internal/notify"
	"vibemon/internal/prefs"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

// Global flags, bound by the root command.
var (
	BaseURLFlag   string
	TransportFlag string
	ConfigFlag    string
)

// app is the configuration and clients shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	client *api.Client
	prefs  *prefs.Store
}

// loadApp reads the config, applies the global flags and installs the
// logger. With logToFile the log goes to a file so it does not draw over
// the dashboard.
func loadApp(logToFile bool) (*app, error) {
	if ConfigFlag != "" {
		config.ConfigPath = ConfigFlag
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if BaseURLFlag != "" {
		cfg.BaseURL = BaseURLFlag
	}
	if TransportFlag != "" {
		cfg.Transport = TransportFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logPath := cfg.LogFile
	if logToFile && logPath == "" {
		logPath = filepath.Join(config.Dir(), "vibemon.log")
	}
	closer, err := logger.Setup(cfg.LogLevel, logPath)
	if err != nil {
		return nil, err
	}
	l := slog.Default()

	return &app{
		cfg:    cfg,
		logger: l,
		closer: closer,
		client: api.NewClient(cfg.BaseURL, &http.Client{Timeout: cfg.RequestTimeout.D()}, l),
		prefs:  prefsStore(),
	}, nil
}

func (a *app) Close() error { return a.closer.Close() }

// newPush returns the shared push connection. It does not connect until
// the first feed subscribes.
func (a *app) newPush() (*pushconn.Manager, error) {
	transport, err := pushconn.ParseTransport(a.cfg.Transport)
	if err != nil {
		return nil, err
	}
	dialer, err := pushconn.NewDialer(transport, a.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("push endpoint: %w", err)
	}
	return pushconn.New(dialer, pushconn.Options{
		Policy: a.cfg.Live.Policy(),
		Logger: a.logger,
	}), nil
}

// feeds are the live views over one push connection.
type feeds struct {
	stream  *livesync.InvocationStream
	summary *livesync.SummaryFeed
	proxy   *livesync.ForwardProxyFeed
	pricing *livesync.PricingEditor
}

// newFeeds builds stopped feeds. The summary feed prices records with
// the pricing editor's draft so local edits show up immediately.
func (a *app) newFeeds(push pushconn.Source, filter livesync.Filter, onNew func([]stats.Invocation)) *feeds {
	live := a.cfg.Live
	timeout := a.cfg.RequestTimeout.D()

	pricing := livesync.NewPricingEditor(a.client, a.logger)
	stream := livesync.NewInvocationStream(livesync.StreamOptions{
		Limit:              a.cfg.Limit,
		Filter:             filter,
		OnNewRecords:       onNew,
		Fetcher:            a.client,
		Push:               push,
		Logger:             a.logger,
		RetryDelay:         live.RetryDelay.D(),
		VisibilityThrottle: live.VisibilityThrottle.D(),
		FetchTimeout:       timeout,
	})
	return &feeds{
		stream: stream,
		summary: livesync.NewSummaryFeed(livesync.SummaryOptions{
			Window:          a.cfg.Window,
			Fetcher:         a.client,
			Push:            push,
			Records:         stream,
			Pricing:         draftOf(pricing),
			Logger:          a.logger,
			RefetchInterval: live.SummaryInterval.D(),
			FetchTimeout:    timeout,
		}),
		proxy: livesync.NewForwardProxyFeed(livesync.ForwardProxyOptions{
			Fetcher:      a.client,
			Push:         push,
			Logger:       a.logger,
			PushThrottle: live.PushThrottle.D(),
			OpenCooldown: live.OpenCooldown.D(),
			PollInterval: live.PollInterval.D(),
			FetchTimeout: timeout,
		}),
		pricing: pricing,
	}
}

// alertSender combines the configured senders. desktop forces desktop
// notifications on. It returns nil when nothing is configured.
func (a *app) alertSender(desktop bool) notify.Sender {
	n := a.cfg.Notify
	var senders notify.Multi
	if n.Desktop || desktop {
		senders = append(senders, notify.Desktop())
	}
	if n.Webhook != "" {
		senders = append(senders, notify.NewWebhook(n.Webhook, n.Format, n.Template))
	}
	if n.Script != "" {
		senders = append(senders, notify.Script{Path: n.Script})
	}
	switch len(senders) {
	case 0:
		return nil
	case 1:
		return senders[0]
	}
	return senders
}

// startAlerts runs the alert watcher and the usage digest, when
// configured, until the returned func is called. proxy may be nil.
func (a *app) startAlerts(desktop bool, push pushconn.Source, stream *livesync.InvocationStream, proxy *livesync.ForwardProxyFeed) (stop func()) {
	sender := a.alertSender(desktop)
	if sender == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := notify.NewWatcher(sender, notify.WatcherOptions{
		Cooldown: a.cfg.Notify.Cooldown.D(),
		Logger:   a.logger,
	})
	detach := w.Attach(push, stream, proxy)
	go w.Run(ctx)

	var digest *notify.Digest
	if spec := a.cfg.Notify.Digest; spec != "" {
		digest = notify.NewDigest(a.client, sender, a.cfg.Notify.DigestWindow, a.logger)
		if err := digest.Start(spec); err != nil {
			a.logger.Warn("digest disabled", "error", err)
			digest = nil
		}
	}

	return func() {
		if digest != nil {
			digest.Stop()
		}
		detach()
		cancel()
	}
}

// draftOf returns the editor's draft, or nil before it has loaded.
func draftOf(e *livesync.PricingEditor) func() *stats.PricingSettings {
	return func() *stats.PricingSettings {
		s := e.State()
		if !s.Loaded {
			return nil
		}
		return &s.Draft
	}
}
