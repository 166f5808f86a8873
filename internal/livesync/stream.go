package livesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vibemon/internal/api"
	"vibemon/internal/clock"
	"vibemon/internal/events"
	"vibemon/internal/flight"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

// RecordFetcher loads a snapshot of recent invocations.
type RecordFetcher interface {
	ListInvocations(ctx context.Context, q api.InvocationQuery) ([]stats.Invocation, error)
}

// StreamOptions configures an InvocationStream.
type StreamOptions struct {
	Limit  int
	Filter Filter
	// OnNewRecords is called with the merged view whenever it changes.
	OnNewRecords func([]stats.Invocation)
	Fetcher      RecordFetcher
	// Push is optional; without it the stream only fetches.
	Push   pushconn.Source
	Clock  clock.Clock
	Logger *slog.Logger

	RetryDelay         time.Duration
	VisibilityThrottle time.Duration
	FetchTimeout       time.Duration
}

// StreamState is a snapshot of the stream.
type StreamState struct {
	Records []stats.Invocation
	Loading bool
	Err     error
	HasData bool
}

// InvocationStream maintains the newest Limit invocations matching
// Filter, merging push-delivered batches with REST snapshots.
type InvocationStream struct {
	fetcher  RecordFetcher
	push     pushconn.Source
	clock    clock.Clock
	logger   *slog.Logger
	onNew    func([]stats.Invocation)
	retry    time.Duration
	throttle time.Duration
	timeout  time.Duration

	seq     flight.Sequence
	changes listeners[StreamState]

	// deliverMu serializes OnNewRecords; it is taken before mu.
	deliverMu sync.Mutex
	delivered uint64

	mu            sync.Mutex
	limit         int
	filter        Filter
	records       []stats.Invocation
	version       uint64
	loading       bool
	err           error
	hydrated      bool
	failed        bool
	pendingResync bool
	visible       bool
	lastVisible   time.Time
	retryTimer    *clock.Timer
	started       bool
	ctx           context.Context
	cancel        context.CancelFunc
	unsubs        []func()
}

// NewInvocationStream returns a stopped stream.
func NewInvocationStream(opts StreamOptions) *InvocationStream {
	c, logger := defaults(opts.Clock, opts.Logger, "invocations")
	return &InvocationStream{
		fetcher:  opts.Fetcher,
		push:     opts.Push,
		clock:    c,
		logger:   logger,
		onNew:    opts.OnNewRecords,
		retry:    orDefault(opts.RetryDelay, DefaultRetryDelay),
		throttle: orDefault(opts.VisibilityThrottle, DefaultVisibilityThrottle),
		timeout:  orDefault(opts.FetchTimeout, DefaultFetchTimeout),
		limit:    opts.Limit,
		filter:   opts.Filter,
		visible:  true,
	}
}

// Start subscribes to the push channel and issues the initial load.
func (s *InvocationStream) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	if s.push != nil {
		unsubEvents := s.push.Subscribe(s.handleEvent)
		unsubOpen := s.push.SubscribeOpen(s.handleOpen)
		s.mu.Lock()
		s.unsubs = append(s.unsubs, unsubEvents, unsubOpen)
		s.mu.Unlock()
	}
	s.fetch(false)
}

// Stop unsubscribes, discards in-flight fetches and resets the state.
func (s *InvocationStream) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.seq.Next()
	s.resetLocked()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
}

// SetQuery changes the limit and filter, dropping the current view and
// reloading.
func (s *InvocationStream) SetQuery(limit int, filter Filter) {
	s.mu.Lock()
	if s.limit == limit && s.filter == filter {
		s.mu.Unlock()
		return
	}
	s.limit, s.filter = limit, filter
	s.seq.Next()
	s.resetLocked()
	started := s.started
	s.mu.Unlock()

	s.emit()
	if started {
		s.fetch(false)
	}
}

// SetVisible reports view visibility. Becoming visible triggers a
// resync, at most once per visibility throttle, once hydrated or after
// the initial load failed.
func (s *InvocationStream) SetVisible(visible bool) {
	s.mu.Lock()
	was := s.visible
	s.visible = visible
	if !visible || was || !s.started || (!s.hydrated && !s.failed) {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	if !s.lastVisible.IsZero() && now.Sub(s.lastVisible) < s.throttle {
		s.mu.Unlock()
		return
	}
	s.lastVisible = now
	silent := s.hydrated
	s.mu.Unlock()

	s.logger.Debug("visibility resync", "hydrated", silent)
	s.fetch(silent)
}

// Resync forces a silent refetch.
func (s *InvocationStream) Resync() { s.fetch(true) }

// Refresh forces a refetch that shows the loading state.
func (s *InvocationStream) Refresh() { s.fetch(false) }

// State returns a snapshot.
func (s *InvocationStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Records returns the current merged view.
func (s *InvocationStream) Records() []stats.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stats.Invocation(nil), s.records...)
}

// OnChange registers fn to be called with every state change.
func (s *InvocationStream) OnChange(fn func(StreamState)) (unsubscribe func()) {
	return s.changes.add(fn)
}

func (s *InvocationStream) stateLocked() StreamState {
	return StreamState{
		Records: append([]stats.Invocation(nil), s.records...),
		Loading: s.loading,
		Err:     s.err,
		HasData: len(s.records) > 0,
	}
}

func (s *InvocationStream) resetLocked() {
	s.records = nil
	s.loading = false
	s.err = nil
	s.hydrated = false
	s.failed = false
	s.pendingResync = false
	s.stopRetryLocked()
}

func (s *InvocationStream) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *InvocationStream) emit() {
	s.changes.emit(s.State())
}

// fetch issues a sequence-numbered snapshot load. The keys present when
// it starts form the baseline used on completion.
func (s *InvocationStream) fetch(silent bool) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	seq := s.seq.Next()
	s.failed = false
	s.stopRetryLocked()
	baseline := keySet(s.records)
	query := api.InvocationQuery{Limit: s.limit, Model: s.filter.Model, Status: s.filter.Status}
	ctx := s.ctx
	if !silent {
		s.loading = true
	}
	s.mu.Unlock()
	if !silent {
		s.emit()
	}

	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		records, err := s.fetcher.ListInvocations(ctx, query)
		s.complete(seq, baseline, silent, records, err)
	}()
}

func (s *InvocationStream) complete(seq uint64, baseline map[stats.RecordKey]struct{}, silent bool, records []stats.Invocation, err error) {
	s.mu.Lock()
	if !s.started || !s.seq.Current(seq) {
		s.mu.Unlock()
		return
	}
	s.loading = false

	if err != nil {
		if !silent || !s.hydrated {
			s.err = err
		}
		if !s.hydrated {
			s.failed = true
		}
		s.logger.Warn("invocation fetch failed", "error", err, "silent", silent)
		if len(s.records) == 0 {
			s.scheduleRetryLocked()
		}
		s.mu.Unlock()
		s.emit()
		return
	}

	// Records pushed while the fetch was in flight survive the snapshot.
	extras := arrivedSince(s.records, baseline)
	merged := MergeRecords(records, nil, s.limit, s.filter)
	if len(extras) > 0 {
		merged = MergeRecords(extras, merged, s.limit, s.filter)
	}
	changed := recordsChanged(s.records, merged)
	s.records = merged
	if changed {
		s.version++
	}
	s.err = nil
	s.hydrated = true
	resync := s.pendingResync
	s.pendingResync = false
	s.mu.Unlock()

	if changed {
		s.deliver()
	}
	s.emit()
	if resync {
		s.fetch(true)
	}
}

func (s *InvocationStream) scheduleRetryLocked() {
	if s.retryTimer != nil {
		return
	}
	var t *clock.Timer
	t = s.clock.AfterFunc(s.retry, func() {
		s.mu.Lock()
		if s.retryTimer != t {
			s.mu.Unlock()
			return
		}
		s.retryTimer = nil
		retry := s.started && len(s.records) == 0
		silent := s.hydrated
		s.mu.Unlock()
		if retry {
			s.logger.Info("retrying invocation load")
			s.fetch(silent)
		}
	})
	s.retryTimer = t
}

func (s *InvocationStream) handleEvent(ev events.Event) {
	batch, ok := ev.(events.RecordsEvent)
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	merged := MergeRecords(batch.Records, s.records, s.limit, s.filter)
	changed := recordsChanged(s.records, merged)
	s.records = merged
	if changed {
		s.version++
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.deliver()
	s.emit()
}

// deliver hands the current view to OnNewRecords. Calls never overlap
// and each view version is delivered at most once, in order.
// OnNewRecords must not feed events back into the stream synchronously.
func (s *InvocationStream) deliver() {
	if s.onNew == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	version := s.version
	records := append([]stats.Invocation(nil), s.records...)
	s.mu.Unlock()
	if version == s.delivered {
		return
	}
	s.delivered = version
	s.onNew(records)
}

func (s *InvocationStream) handleOpen() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if !s.hydrated {
		if s.failed {
			s.mu.Unlock()
			s.logger.Debug("reconnect reload after failed load")
			s.fetch(false)
			return
		}
		s.pendingResync = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.logger.Debug("reconnect resync")
	s.fetch(true)
}
