package livesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vibemon/internal/clock"
	"vibemon/internal/events"
	"vibemon/internal/flight"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

// CurrentWindow is computed on the client from the local record stream.
const CurrentWindow = "current"

// PushWindows are the windows the backend pushes summaries for.
var PushWindows = []string{"today", "1d", "7d"}

// Windows lists every window the dashboard offers, in display order.
var Windows = []string{CurrentWindow, "30m", "1h", "today", "1d", "7d", "thisWeek", "thisMonth", "30d", "all"}

// IsPushWindow reports whether the backend pushes summaries for w.
func IsPushWindow(w string) bool {
	for _, p := range PushWindows {
		if p == w {
			return true
		}
	}
	return false
}

// SummaryFetcher loads the aggregate for a window.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context, window string) (stats.Summary, error)
}

// RecordSource exposes the locally cached records and reports when
// they change. InvocationStream satisfies it.
type RecordSource interface {
	Records() []stats.Invocation
	OnChange(fn func(StreamState)) (unsubscribe func())
}

// SummaryOptions configures a SummaryFeed.
type SummaryOptions struct {
	Window  string
	Fetcher SummaryFetcher
	Push    pushconn.Source
	// Records backs CurrentWindow. Without it CurrentWindow is fetched
	// from the backend like any other window.
	Records RecordSource
	// Pricing prices records without a server cost in CurrentWindow.
	Pricing func() *stats.PricingSettings
	Clock   clock.Clock
	Logger  *slog.Logger

	// RefetchInterval spaces refetches triggered by pushes for other
	// windows when Window is not pushed itself.
	RefetchInterval time.Duration
	FetchTimeout    time.Duration
}

// SummaryState is a snapshot of the feed.
type SummaryState struct {
	Window  string
	Summary *stats.Summary
	Loading bool
	Err     error
}

// SummaryFeed keeps the aggregate for one window current.
type SummaryFeed struct {
	fetcher SummaryFetcher
	push    pushconn.Source
	source  RecordSource
	pricing func() *stats.PricingSettings
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration

	gate    *flight.IntervalGate
	seq     flight.Sequence
	changes listeners[SummaryState]

	mu      sync.Mutex
	window  string
	summary *stats.Summary
	loading bool
	err     error
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []func()
}

// NewSummaryFeed returns a stopped feed.
func NewSummaryFeed(opts SummaryOptions) *SummaryFeed {
	c, logger := defaults(opts.Clock, opts.Logger, "summary")
	return &SummaryFeed{
		fetcher: opts.Fetcher,
		push:    opts.Push,
		source:  opts.Records,
		pricing: opts.Pricing,
		clock:   c,
		logger:  logger,
		timeout: orDefault(opts.FetchTimeout, DefaultFetchTimeout),
		gate:    flight.NewIntervalGate(orDefault(opts.RefetchInterval, DefaultSummaryInterval)),
		window:  opts.Window,
	}
}

// Start subscribes to pushes and loads the window.
func (f *SummaryFeed) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.mu.Unlock()

	var unsubs []func()
	if f.push != nil {
		unsubs = append(unsubs, f.push.Subscribe(f.handleEvent))
	}
	if f.source != nil {
		unsubs = append(unsubs, f.source.OnChange(f.handleRecords))
	}
	f.mu.Lock()
	f.unsubs = unsubs
	f.mu.Unlock()
	f.fetch(false, nil, false)
}

// Stop unsubscribes and resets the feed.
func (f *SummaryFeed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	f.cancel()
	f.seq.Next()
	f.summary, f.loading, f.err = nil, false, nil
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	f.gate.Reset()
	for _, u := range unsubs {
		u()
	}
}

// SetWindow switches to another window and reloads.
func (f *SummaryFeed) SetWindow(window string) {
	f.mu.Lock()
	if f.window == window {
		f.mu.Unlock()
		return
	}
	f.window = window
	f.seq.Next()
	f.summary, f.err = nil, nil
	started := f.started
	f.mu.Unlock()

	f.gate.Reset()
	f.emit()
	if started {
		f.fetch(false, nil, false)
	}
}

// Refresh reloads the window with the loading state shown.
func (f *SummaryFeed) Refresh() { f.fetch(false, nil, false) }

// State returns a snapshot.
func (f *SummaryFeed) State() SummaryState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := SummaryState{Window: f.window, Loading: f.loading, Err: f.err}
	if f.summary != nil {
		s := *f.summary
		st.Summary = &s
	}
	return st
}

// OnChange registers fn to be called with every state change.
func (f *SummaryFeed) OnChange(fn func(SummaryState)) (unsubscribe func()) {
	return f.changes.add(fn)
}

func (f *SummaryFeed) emit() { f.changes.emit(f.State()) }

func (f *SummaryFeed) handleEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.SummaryEvent:
		f.mu.Lock()
		if !f.started {
			f.mu.Unlock()
			return
		}
		window := f.window
		if e.Window == window {
			// Authoritative: supersede any fetch in flight.
			f.seq.Next()
			s := e.Summary
			f.summary = &s
			f.loading = false
			f.err = nil
			f.mu.Unlock()
			f.emit()
			return
		}
		f.mu.Unlock()

		if window == CurrentWindow || IsPushWindow(window) {
			return
		}
		if !f.gate.TryBegin(f.clock.Now()) {
			return
		}
		f.logger.Debug("refetching unpushed window", "window", window, "trigger", e.Window)
		f.fetch(true, nil, true)

	case events.RecordsEvent:
		f.mu.Lock()
		current := f.started && f.window == CurrentWindow
		f.mu.Unlock()
		if current {
			f.fetch(true, e.Records, false)
		}
	}
}

// handleRecords recomputes CurrentWindow when the record source changes,
// which covers hydration, reloads and query changes as well as pushes.
func (f *SummaryFeed) handleRecords(StreamState) {
	f.mu.Lock()
	current := f.started && f.window == CurrentWindow
	f.mu.Unlock()
	if current {
		f.fetch(true, nil, false)
	}
}

// fetch loads the summary. For CurrentWindow with a record source it is
// computed in place from the cached records plus extra. gated fetches
// release the interval gate when they finish.
func (f *SummaryFeed) fetch(silent bool, extra []stats.Invocation, gated bool) {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		if gated {
			f.gate.Done()
		}
		return
	}
	seq := f.seq.Next()
	window := f.window
	ctx := f.ctx

	if window == CurrentWindow && f.source != nil {
		records := f.source.Records()
		if len(extra) > 0 {
			records = MergeRecords(extra, records, 0, Filter{})
		}
		var pricing *stats.PricingSettings
		if f.pricing != nil {
			pricing = f.pricing()
		}
		s := stats.SummarizeRecords(records, time.Time{}, time.Time{}, pricing)
		f.summary = &s
		f.loading = false
		f.err = nil
		f.mu.Unlock()
		if gated {
			f.gate.Done()
		}
		f.emit()
		return
	}

	if !silent {
		f.loading = true
	}
	f.mu.Unlock()
	if !silent {
		f.emit()
	}

	go func() {
		if gated {
			defer f.gate.Done()
		}
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		summary, err := f.fetcher.FetchSummary(ctx, window)

		f.mu.Lock()
		if !f.started || !f.seq.Current(seq) {
			f.mu.Unlock()
			return
		}
		f.loading = false
		if err != nil {
			f.logger.Warn("summary fetch failed", "window", window, "error", err, "silent", silent)
			if !silent || f.summary == nil {
				f.err = err
			}
		} else {
			f.summary = &summary
			f.err = nil
		}
		f.mu.Unlock()
		f.emit()
	}()
}
