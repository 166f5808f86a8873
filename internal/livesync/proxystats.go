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

// ForwardProxyFetcher loads the forward-proxy live stats.
type ForwardProxyFetcher interface {
	FetchForwardProxyLiveStats(ctx context.Context) (stats.ForwardProxyLiveStats, error)
}

// ForwardProxyOptions configures a ForwardProxyFeed.
type ForwardProxyOptions struct {
	Fetcher ForwardProxyFetcher
	Push    pushconn.Source
	Clock   clock.Clock
	Logger  *slog.Logger

	// PushThrottle spaces refreshes triggered by records pushes.
	PushThrottle time.Duration
	// OpenCooldown spaces resyncs triggered by reconnects.
	OpenCooldown time.Duration
	PollInterval time.Duration
	FetchTimeout time.Duration
}

// ForwardProxyState is a snapshot of the feed.
type ForwardProxyState struct {
	Stats   *stats.ForwardProxyLiveStats
	Loading bool
	Err     error
}

// ForwardProxyFeed keeps forward-proxy live stats fresh. The backend
// pushes no deltas for them, so the feed refetches on throttled records
// pushes, on reconnects and on a fixed poll, all through one coalesced
// fetch path with at most one request in flight.
type ForwardProxyFeed struct {
	fetcher  ForwardProxyFetcher
	push     pushconn.Source
	clock    clock.Clock
	logger   *slog.Logger
	throttle time.Duration
	cooldown time.Duration
	poll     time.Duration
	timeout  time.Duration

	runs    *flight.Flight[bool]
	seq     flight.Sequence
	changes listeners[ForwardProxyState]

	mu          sync.Mutex
	stats       *stats.ForwardProxyLiveStats
	loading     bool
	err         error
	hydrated    bool
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubs      []func()
	lastPushAt  time.Time
	pushTimer   *clock.Timer
	lastOpenAt  time.Time
	pendingOpen bool
	pollTimer   *clock.Timer
}

// NewForwardProxyFeed returns a stopped feed.
func NewForwardProxyFeed(opts ForwardProxyOptions) *ForwardProxyFeed {
	c, logger := defaults(opts.Clock, opts.Logger, "forward-proxy")
	return &ForwardProxyFeed{
		fetcher:  opts.Fetcher,
		push:     opts.Push,
		clock:    c,
		logger:   logger,
		throttle: orDefault(opts.PushThrottle, DefaultPushThrottle),
		cooldown: orDefault(opts.OpenCooldown, DefaultOpenCooldown),
		poll:     orDefault(opts.PollInterval, DefaultPollInterval),
		timeout:  orDefault(opts.FetchTimeout, DefaultFetchTimeout),
		runs:     flight.New(flight.And),
	}
}

// Start subscribes, loads with the loading state shown and starts polling.
func (f *ForwardProxyFeed) Start() {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(context.Background())
	f.armPollLocked()
	f.mu.Unlock()

	if f.push != nil {
		unsubEvents := f.push.Subscribe(f.handleEvent)
		unsubOpen := f.push.SubscribeOpen(func() { f.openResync(false) })
		f.mu.Lock()
		f.unsubs = append(f.unsubs, unsubEvents, unsubOpen)
		f.mu.Unlock()
	}
	f.request(false)
}

// Stop unsubscribes, cancels timers and resets the feed.
func (f *ForwardProxyFeed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	f.cancel()
	f.seq.Next()
	if f.pushTimer != nil {
		f.pushTimer.Stop()
		f.pushTimer = nil
	}
	if f.pollTimer != nil {
		f.pollTimer.Stop()
		f.pollTimer = nil
	}
	f.stats, f.loading, f.err, f.hydrated = nil, false, nil, false
	f.lastPushAt, f.lastOpenAt, f.pendingOpen = time.Time{}, time.Time{}, false
	unsubs := f.unsubs
	f.unsubs = nil
	f.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// Refresh requests a fetch with the loading state shown.
func (f *ForwardProxyFeed) Refresh() { f.request(false) }

// State returns a snapshot.
func (f *ForwardProxyFeed) State() ForwardProxyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := ForwardProxyState{Loading: f.loading, Err: f.err}
	if f.stats != nil {
		s := *f.stats
		s.Nodes = append([]stats.ForwardProxyNode(nil), f.stats.Nodes...)
		st.Stats = &s
	}
	return st
}

// OnChange registers fn to be called with every state change.
func (f *ForwardProxyFeed) OnChange(fn func(ForwardProxyState)) (unsubscribe func()) {
	return f.changes.add(fn)
}

func (f *ForwardProxyFeed) emit() { f.changes.emit(f.State()) }

// request submits a fetch to the coalesced path. Requests made while a
// fetch runs collapse into one trailing fetch that is silent only if
// all of them were.
func (f *ForwardProxyFeed) request(silent bool) {
	if f.runs.Submit(silent, nil) {
		go f.runs.Drain(f.run)
	}
}

func (f *ForwardProxyFeed) run(silent bool) {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	seq := f.seq.Next()
	ctx := f.ctx
	if !silent {
		f.loading = true
	}
	f.mu.Unlock()
	if !silent {
		f.emit()
	}

	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	result, err := f.fetcher.FetchForwardProxyLiveStats(fctx)
	cancel()

	f.mu.Lock()
	if !f.started || !f.seq.Current(seq) {
		f.mu.Unlock()
		return
	}
	f.loading = false
	resync := false
	if err != nil {
		f.logger.Warn("forward proxy stats fetch failed", "error", err, "silent", silent)
		if !silent || !f.hydrated {
			f.err = err
		}
	} else {
		f.stats = &result
		f.err = nil
		f.hydrated = true
		resync = f.pendingOpen
		f.pendingOpen = false
	}
	f.mu.Unlock()
	f.emit()

	if resync {
		f.openResync(true)
	}
}

func (f *ForwardProxyFeed) handleEvent(ev events.Event) {
	if _, ok := ev.(events.RecordsEvent); !ok {
		return
	}
	f.mu.Lock()
	if !f.started || f.pushTimer != nil {
		f.mu.Unlock()
		return
	}
	now := f.clock.Now()
	delay := flight.RefreshDelay(f.lastPushAt, now, f.throttle)
	if delay == 0 {
		f.lastPushAt = now
		f.mu.Unlock()
		f.request(true)
		return
	}
	var t *clock.Timer
	t = f.clock.AfterFunc(delay, func() {
		f.mu.Lock()
		if f.pushTimer != t || !f.started {
			f.mu.Unlock()
			return
		}
		f.pushTimer = nil
		f.lastPushAt = f.clock.Now()
		f.mu.Unlock()
		f.request(true)
	})
	f.pushTimer = t
	f.mu.Unlock()
}

// openResync runs a silent resync after a reconnect, deferred until the
// first fetch has hydrated the feed and gated by the open cooldown
// unless forced.
func (f *ForwardProxyFeed) openResync(force bool) {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	if !f.hydrated {
		f.pendingOpen = true
		f.mu.Unlock()
		return
	}
	now := f.clock.Now()
	if !flight.ShouldTriggerOpenResync(f.lastOpenAt, now, force, f.cooldown) {
		f.mu.Unlock()
		return
	}
	f.lastOpenAt = now
	f.mu.Unlock()
	f.request(true)
}

func (f *ForwardProxyFeed) armPollLocked() {
	var t *clock.Timer
	t = f.clock.AfterFunc(f.poll, func() {
		f.mu.Lock()
		if f.pollTimer != t || !f.started {
			f.mu.Unlock()
			return
		}
		f.armPollLocked()
		f.mu.Unlock()
		f.request(true)
	})
	f.pollTimer = t
}
