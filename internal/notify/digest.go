package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"vibemon/internal/livesync"
	"vibemon/internal/stats"
	"vibemon/internal/ui"
)

// KindDigest marks scheduled usage summaries.
const KindDigest = "usage-digest"

// DefaultDigestWindow is summarized when no window is configured.
const DefaultDigestWindow = "1d"

// ValidateSchedule checks a standard five-field cron expression.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("digest schedule %q: %w", spec, err)
	}
	return nil
}

// Digest sends the usage summary of a window on a cron schedule.
type Digest struct {
	fetcher livesync.SummaryFetcher
	sender  Sender
	window  string
	logger  *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewDigest returns a stopped digest.
func NewDigest(fetcher livesync.SummaryFetcher, sender Sender, window string, logger *slog.Logger) *Digest {
	if window == "" {
		window = DefaultDigestWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Digest{
		fetcher: fetcher,
		sender:  sender,
		window:  window,
		logger:  logger.With("component", "digest", "window", window),
	}
}

// Start schedules the digest. Calling Start again replaces the schedule.
func (d *Digest) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, d.run); err != nil {
		return fmt.Errorf("digest schedule %q: %w", spec, err)
	}

	d.Stop()
	d.mu.Lock()
	d.cron = c
	d.mu.Unlock()
	c.Start()
	d.logger.Debug("digest scheduled", "schedule", spec)
	return nil
}

// Stop cancels the schedule and waits for a running digest to finish.
func (d *Digest) Stop() {
	d.mu.Lock()
	c := d.cron
	d.cron = nil
	d.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Send fetches the summary and delivers it once.
func (d *Digest) Send(ctx context.Context) error {
	s, err := d.fetcher.FetchSummary(ctx, d.window)
	if err != nil {
		return fmt.Errorf("fetch summary: %w", err)
	}
	return d.sender.Send(ctx, Notification{
		Kind:    KindDigest,
		Title:   fmt.Sprintf("vibemon: usage (%s)", d.window),
		Message: digestMessage(s),
	})
}

func (d *Digest) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.Send(ctx); err != nil {
		d.logger.Warn("send digest", "error", err)
	}
}

func digestMessage(s stats.Summary) string {
	parts := []string{
		fmt.Sprintf("%d requests", s.TotalCount),
		ui.FormatPercent(s.SuccessRate()) + " success",
		ui.FormatCost(s.TotalCost),
		ui.FormatTokens(s.TotalTokens) + " tokens",
	}
	msg := strings.Join(parts, ", ")
	if len(s.ByModel) > 0 {
		top := s.ByModel[0]
		msg += fmt.Sprintf(". Top model: %s (%s)", top.Model, ui.FormatCost(top.Cost))
	}
	return msg
}
