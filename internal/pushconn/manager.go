// Package pushconn owns the single server-push connection shared by all
// live feeds. It multiplexes decoded events to subscribers and drives
// reconnect, watchdog and disable behaviour through the pure Step state
// machine.
package pushconn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"vibemon/internal/clock"
	"vibemon/internal/events"
)

// Source is what live feeds need from a push connection.
type Source interface {
	Subscribe(fn func(events.Event)) (unsubscribe func())
	SubscribeOpen(fn func()) (unsubscribe func())
	Status() Status
	SubscribeStatus(fn func(Status)) (unsubscribe func())
}

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	Policy Policy
	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager is a reference-counted push connection. The first event
// subscriber starts it and the last unsubscribe stops it. It never
// returns errors to callers; faults surface as status changes.
type Manager struct {
	dialer Dialer
	policy Policy
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	status Status
	refs   int
	nextID int

	eventSubs  []subscriber[events.Event]
	openSubs   []subscriber[struct{}]
	statusSubs []subscriber[Status]

	gen          uint64 // bumped per dial; stale goroutines compare against it
	stream       Stream
	cancelStream context.CancelFunc
	nativeClosed bool

	retryTimer  *clock.Timer
	retryGen    uint64
	watchdog    *clock.Timer
	watchdogGen uint64
	closed      bool
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

var _ Source = (*Manager)(nil)

// New creates an idle Manager.
func New(dialer Dialer, opts Options) *Manager {
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		dialer: dialer,
		policy: opts.Policy,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "pushconn"),
		status: StatusClosed,
	}
}

// Subscribe registers an event listener and holds a reference on the
// connection until the returned function is called.
func (m *Manager) Subscribe(fn func(events.Event)) func() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	id := m.newIDLocked()
	m.eventSubs = append(m.eventSubs, subscriber[events.Event]{id: id, fn: fn})
	m.refs++
	var after []func()
	if m.refs == 1 {
		after = m.stepLocked(Signal{Kind: SignalStart})
	}
	m.mu.Unlock()
	run(after)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if !removeSub(&m.eventSubs, id) {
				m.mu.Unlock()
				return
			}
			m.refs--
			var after []func()
			if m.refs == 0 {
				after = m.stepLocked(Signal{Kind: SignalStop})
			}
			m.mu.Unlock()
			run(after)
		})
	}
}

// SubscribeOpen registers a callback fired once per successful
// (re)connect. It does not hold a reference on the connection.
func (m *Manager) SubscribeOpen(fn func()) func() {
	m.mu.Lock()
	id := m.newIDLocked()
	m.openSubs = append(m.openSubs, subscriber[struct{}]{id: id, fn: func(struct{}) { fn() }})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		removeSub(&m.openSubs, id)
		m.mu.Unlock()
	}
}

// SubscribeStatus registers a status listener. It is not called with the
// current status; use Status for that.
func (m *Manager) SubscribeStatus(fn func(Status)) func() {
	m.mu.Lock()
	id := m.newIDLocked()
	m.statusSubs = append(m.statusSubs, subscriber[Status]{id: id, fn: fn})
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		removeSub(&m.statusSubs, id)
		m.mu.Unlock()
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// State returns a copy of the state machine's state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close tears the connection down and drops every subscriber.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	after := m.stepLocked(Signal{Kind: SignalStop})
	m.eventSubs, m.openSubs, m.statusSubs = nil, nil, nil
	m.refs = 0
	m.mu.Unlock()
	run(after)
}

func (m *Manager) newIDLocked() int {
	m.nextID++
	return m.nextID
}

// stepLocked feeds sig through Step and performs the resulting effects.
// Work that must not run under m.mu is returned as closures.
func (m *Manager) stepLocked(sig Signal) []func() {
	prev := m.state
	next, effects := Step(prev, sig, m.clock.Now(), m.policy)
	m.state = next
	if next.Phase != prev.Phase {
		m.logger.Debug("push connection transition",
			"from", prev.Phase.String(), "to", next.Phase.String(), "attempt", next.Attempt)
	}

	var after []func()
	for _, e := range effects {
		switch e.Kind {
		case EffectDial:
			m.dialLocked()
		case EffectClose:
			if s := m.detachLocked(); s != nil {
				after = append(after, func() { _ = s.Close() })
			}
		case EffectScheduleReconnect:
			m.scheduleRetryLocked(e)
		case EffectCancelReconnect:
			if m.retryTimer != nil {
				m.retryTimer.Stop()
				m.retryTimer = nil
			}
			m.retryGen++
		case EffectNotifyOpen:
			subs := append([]subscriber[struct{}](nil), m.openSubs...)
			after = append(after, func() { m.fanOut(subs, "open") })
		case EffectStartWatchdog:
			m.armWatchdogLocked()
		case EffectStopWatchdog:
			if m.watchdog != nil {
				m.watchdog.Stop()
				m.watchdog = nil
			}
			m.watchdogGen++
		}
	}

	if next.Phase == PhaseDisabled && prev.Phase != PhaseDisabled {
		m.logger.Warn("push channel disabled after repeated failures", "attempts", next.Attempt)
	}

	if st := next.Phase.Status(); st != m.status {
		m.status = st
		subs := append([]subscriber[Status](nil), m.statusSubs...)
		// Status notifications precede open callbacks.
		after = append([]func(){func() {
			for _, s := range subs {
				m.safeCall("status", func() { s.fn(st) })
			}
		}}, after...)
	}
	return after
}

func (m *Manager) dialLocked() {
	m.gen++
	gen := m.gen
	m.nativeClosed = false
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelStream = cancel

	go func() {
		stream, err := m.dialer.Dial(ctx)

		m.mu.Lock()
		if gen != m.gen || m.state.Phase != PhaseConnecting {
			m.mu.Unlock()
			if stream != nil {
				_ = stream.Close()
			}
			return
		}
		var after []func()
		if err != nil {
			m.logger.Info("push connection failed", "error", err, "attempt", m.state.Attempt)
			after = m.stepLocked(Signal{Kind: SignalFailed})
			m.mu.Unlock()
			run(after)
			return
		}
		m.stream = stream
		after = m.stepLocked(Signal{Kind: SignalOpened})
		m.mu.Unlock()
		run(after)

		m.read(gen, stream)
	}()
}

// detachLocked forgets the current stream and cancels its context.
func (m *Manager) detachLocked() Stream {
	if m.cancelStream != nil {
		m.cancelStream()
		m.cancelStream = nil
	}
	s := m.stream
	m.stream = nil
	m.gen++
	return s
}

func (m *Manager) read(gen uint64, stream Stream) {
	for {
		data, err := stream.Recv()
		if err != nil {
			m.mu.Lock()
			if gen != m.gen {
				m.mu.Unlock()
				return
			}
			if errors.Is(err, io.EOF) {
				// Left for the watchdog, which redials on its next tick.
				m.nativeClosed = true
				m.mu.Unlock()
				m.logger.Info("push stream ended by server")
				return
			}
			m.logger.Info("push stream error", "error", err)
			after := m.stepLocked(Signal{Kind: SignalFailed})
			m.mu.Unlock()
			run(after)
			return
		}

		ev, err := events.Decode(data)
		if err != nil {
			m.logger.Warn("dropping push payload", "error", err, "bytes", len(data))
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		subs := append([]subscriber[events.Event](nil), m.eventSubs...)
		m.mu.Unlock()
		for _, s := range subs {
			m.safeCall("event", func() { s.fn(ev) })
		}
	}
}

func (m *Manager) scheduleRetryLocked(e Effect) {
	m.retryGen++
	gen := m.retryGen
	m.logger.Info("push reconnect scheduled", "delay", e.Delay, "attempt", m.state.Attempt)
	m.retryTimer = m.clock.AfterFunc(e.Delay, func() {
		m.mu.Lock()
		if gen != m.retryGen {
			m.mu.Unlock()
			return
		}
		m.retryTimer = nil
		after := m.stepLocked(Signal{Kind: SignalRetry})
		m.mu.Unlock()
		run(after)
	})
}

func (m *Manager) armWatchdogLocked() {
	m.watchdogGen++
	gen := m.watchdogGen
	m.watchdog = m.clock.AfterFunc(m.policy.WatchdogInterval, func() {
		m.mu.Lock()
		if gen != m.watchdogGen {
			m.mu.Unlock()
			return
		}
		after := m.stepLocked(Signal{Kind: SignalWatchdog, NativeClosed: m.nativeClosed})
		if gen == m.watchdogGen && m.state.Phase != PhaseIdle && m.state.Phase != PhaseDisabled {
			m.armWatchdogLocked()
		}
		m.mu.Unlock()
		run(after)
	})
}

func (m *Manager) fanOut(subs []subscriber[struct{}], kind string) {
	for _, s := range subs {
		m.safeCall(kind, func() { s.fn(struct{}{}) })
	}
}

func (m *Manager) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("push listener panicked", "listener", kind, "panic", r)
		}
	}()
	fn()
}

func removeSub[T any](subs *[]subscriber[T], id int) bool {
	for i, s := range *subs {
		if s.id == id {
			*subs = append((*subs)[:i:i], (*subs)[i+1:]...)
			return true
		}
	}
	return false
}

func run(fns []func()) {
	for _, f := range fns {
		f()
	}
}
