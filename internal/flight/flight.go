// Package flight holds the small concurrency primitives shared by the
// live feeds: a single-flight runner with one coalesced pending slot,
// an interval gate, a request sequence, and the pure throttle and
// cooldown functions.
package flight

import (
	"sync"
	"sync/atomic"
	"time"
)

// Flight runs at most one task at a time. Values submitted while a task
// runs are merged into a single pending slot, and exactly one trailing
// run is issued with the merged value when the current one finishes.
type Flight[T any] struct {
	mu      sync.Mutex
	merge   func(pending, next T) T
	running bool
	pending bool
	value   T
}

// New returns a Flight whose pending slot combines values with merge.
// A nil merge keeps the latest value.
func New[T any](merge func(pending, next T) T) *Flight[T] {
	return &Flight[T]{merge: merge}
}

// Latest is the last-write-wins merge.
func Latest[T any](_, next T) T { return next }

// And merges silent flags: a trailing run is silent only if every
// coalesced request was.
func And(pending, next bool) bool { return pending && next }

// Submit queues v and reports whether the caller must start the run
// loop with Drain. apply, if non-nil, runs under the flight lock so it
// is ordered with Settle; starting is the value Submit will return.
func (f *Flight[T]) Submit(v T, apply func(starting bool)) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if apply != nil {
		apply(!f.running)
	}
	if f.pending && f.merge != nil {
		v = f.merge(f.value, v)
	}
	f.value = v
	f.pending = true
	if f.running {
		return false
	}
	f.running = true
	return true
}

// Drain runs task for the pending value until the slot stays empty.
// Only the caller that got true from Submit may call it.
func (f *Flight[T]) Drain(task func(T)) {
	for {
		f.mu.Lock()
		if !f.pending {
			f.running = false
			f.mu.Unlock()
			return
		}
		v := f.value
		var zero T
		f.value = zero
		f.pending = false
		f.mu.Unlock()

		task(v)
	}
}

// Do submits v and, if nothing was running, drains on a new goroutine.
func (f *Flight[T]) Do(v T, task func(T)) {
	if f.Submit(v, nil) {
		go f.Drain(task)
	}
}

// Settle calls fn under the flight lock with whether a newer value is
// pending, so a commit decision cannot race a concurrent Submit.
func (f *Flight[T]) Settle(fn func(superseded bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.pending)
}

// Inspect calls fn under the flight lock with the running and pending
// flags.
func (f *Flight[T]) Inspect(fn func(running, pending bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.running, f.pending)
}

// Running reports whether a run loop is active.
func (f *Flight[T]) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Pending reports whether a value is waiting for the next run.
func (f *Flight[T]) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// IntervalGate admits at most one trigger per interval and never while
// a previous trigger is still in flight.
type IntervalGate struct {
	mu       sync.Mutex
	interval time.Duration
	inFlight bool
	last     time.Time
}

// NewIntervalGate returns a gate with the given interval.
func NewIntervalGate(interval time.Duration) *IntervalGate {
	return &IntervalGate{interval: interval}
}

// TryBegin reports whether a trigger at now may proceed. On true the gate
// is in flight until Done.
func (g *IntervalGate) TryBegin(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return false
	}
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.inFlight = true
	g.last = now
	return true
}

// Done ends the in-flight trigger.
func (g *IntervalGate) Done() {
	g.mu.Lock()
	g.inFlight = false
	g.mu.Unlock()
}

// Busy reports whether a trigger is in flight.
func (g *IntervalGate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Reset forgets the last trigger time.
func (g *IntervalGate) Reset() {
	g.mu.Lock()
	g.last = time.Time{}
	g.mu.Unlock()
}

// Sequence issues monotonically increasing request numbers so that
// completions of superseded requests can be discarded.
type Sequence struct {
	n atomic.Uint64
}

// Next issues a new number; it becomes the current one.
func (s *Sequence) Next() uint64 { return s.n.Add(1) }

// Current reports whether n is the latest issued number.
func (s *Sequence) Current(n uint64) bool { return s.n.Load() == n }

// RefreshDelay returns how long to wait before a throttled refresh:
// zero when at least throttle has passed since last, otherwise the
// remainder. A zero last means no refresh has happened yet.
func RefreshDelay(last, now time.Time, throttle time.Duration) time.Duration {
	if last.IsZero() {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= throttle {
		return 0
	}
	return throttle - elapsed
}

// ShouldTriggerOpenResync reports whether a reconnect-triggered resync
// may run: always when forced, otherwise only once cooldown has passed
// since last.
func ShouldTriggerOpenResync(last, now time.Time, force bool, cooldown time.Duration) bool {
	if force {
		return true
	}
	return last.IsZero() || now.Sub(last) >= cooldown
}
