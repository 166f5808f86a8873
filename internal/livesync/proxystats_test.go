package livesync

import (
	"errors"
	"testing"
	"time"

	"vibemon/internal/clock"
	"vibemon/internal/events"
	"vibemon/internal/stats"
)

type proxyFixture struct {
	feed  *ForwardProxyFeed
	push  *fakePush
	fetch fakeProxyStats
	clock *clock.FakeClock
}

func newProxyFixture() *proxyFixture {
	fx := &proxyFixture{
		push:  newFakePush(),
		fetch: fakeProxyStats{newCalls[struct{}, stats.ForwardProxyLiveStats]()},
		clock: clock.Fake(epoch),
	}
	fx.feed = NewForwardProxyFeed(ForwardProxyOptions{
		Fetcher: fx.fetch,
		Push:    fx.push,
		Clock:   fx.clock,
		Logger:  quiet,
	})
	return fx
}

func liveStats(updated string, healthy ...bool) stats.ForwardProxyLiveStats {
	s := stats.ForwardProxyLiveStats{UpdatedAt: updated}
	for i, h := range healthy {
		s.Nodes = append(s.Nodes, stats.ForwardProxyNode{Name: string(rune('a' + i)), Healthy: h})
	}
	return s
}

func (fx *proxyFixture) updatedAt() string {
	st := fx.feed.State()
	if st.Stats == nil {
		return ""
	}
	return st.Stats.UpdatedAt
}

// hydrate starts the feed and answers the initial load.
func (fx *proxyFixture) hydrate(t *testing.T) {
	t.Helper()
	fx.feed.Start()
	fx.fetch.next(t).reply(liveStats("t0", true), nil)
	fx.idle(t)
}

// idle waits until no fetch is running.
func (fx *proxyFixture) idle(t *testing.T) {
	t.Helper()
	waitFor(t, "feed idle", func() bool { return !fx.feed.runs.Running() })
}

func (fx *proxyFixture) records() {
	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("x", at(1))}})
}

func TestProxyInitialLoadShowsLoading(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.feed.Start()
	call := fx.fetch.next(t)
	waitFor(t, "loading", func() bool { return fx.feed.State().Loading })

	call.reply(liveStats("t0", true, false), nil)
	waitFor(t, "loaded", func() bool { return fx.updatedAt() == "t0" })
	st := fx.feed.State()
	if st.Loading || st.Err != nil || st.Stats.Healthy() != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestProxyPushThrottle(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.hydrate(t)

	fx.records()
	fx.fetch.next(t).reply(liveStats("t1"), nil)
	fx.idle(t)

	// Within the throttle window pushes collapse into one timer.
	fx.clock.Advance(time.Second)
	fx.records()
	fx.records()
	fx.records()
	fx.fetch.none(t)
	if n := fx.clock.Pending(); n != 2 {
		t.Fatalf("pending timers = %d, want poll + one throttle timer", n)
	}

	fx.clock.Advance(3999 * time.Millisecond)
	fx.fetch.none(t)
	fx.clock.Advance(time.Millisecond)
	call := fx.fetch.next(t)
	if fx.feed.State().Loading {
		t.Error("push refresh showed loading")
	}
	call.reply(liveStats("t2"), nil)
	waitFor(t, "t2", func() bool { return fx.updatedAt() == "t2" })
	fx.fetch.none(t)
}

func TestProxyRefreshCoalesces(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.hydrate(t)

	fx.records()
	running := fx.fetch.next(t)

	fx.feed.Refresh()
	fx.feed.Refresh()
	fx.feed.Refresh()
	fx.fetch.none(t)

	running.reply(liveStats("t1"), nil)
	trailing := fx.fetch.next(t)
	waitFor(t, "trailing fetch shows loading", func() bool { return fx.feed.State().Loading })
	trailing.reply(liveStats("t2"), nil)
	fx.idle(t)
	fx.fetch.none(t)
	if got := fx.updatedAt(); got != "t2" {
		t.Errorf("updatedAt = %q, want t2", got)
	}
}

func TestProxyOpenCooldown(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.hydrate(t)

	fx.push.open()
	fx.fetch.next(t).reply(liveStats("t1"), nil)
	fx.idle(t)

	fx.clock.Advance(2999 * time.Millisecond)
	fx.push.open()
	fx.fetch.none(t)

	fx.clock.Advance(time.Millisecond)
	fx.push.open()
	fx.fetch.next(t).reply(liveStats("t2"), nil)
	fx.idle(t)
}

func TestProxyOpenBeforeHydrationForcesResync(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.feed.Start()
	initial := fx.fetch.next(t)

	fx.push.open()
	fx.push.open()
	fx.fetch.none(t)

	initial.reply(liveStats("t0"), nil)
	fx.fetch.next(t).reply(liveStats("t1"), nil)
	waitFor(t, "resync applied", func() bool { return fx.updatedAt() == "t1" })
	fx.idle(t)
	fx.fetch.none(t)

	// The forced resync started the cooldown.
	fx.push.open()
	fx.fetch.none(t)
}

func TestProxyPolls(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.hydrate(t)

	fx.clock.Advance(59 * time.Second)
	fx.fetch.none(t)
	fx.clock.Advance(time.Second)
	fx.fetch.next(t).reply(liveStats("t1"), nil)
	fx.idle(t)

	fx.clock.Advance(60 * time.Second)
	fx.fetch.next(t).reply(liveStats("t2"), nil)
	waitFor(t, "second poll", func() bool { return fx.updatedAt() == "t2" })
}

func TestProxyFailures(t *testing.T) {
	fx := newProxyFixture()
	defer fx.feed.Stop()
	fx.hydrate(t)

	fx.records()
	fx.fetch.next(t).reply(stats.ForwardProxyLiveStats{}, errors.New("connection reset"))
	fx.idle(t)
	if st := fx.feed.State(); st.Err != nil || fx.updatedAt() != "t0" {
		t.Errorf("silent failure state = %+v", st)
	}

	fx.feed.Refresh()
	fx.fetch.next(t).reply(stats.ForwardProxyLiveStats{}, errors.New("connection reset"))
	waitFor(t, "error surfaced", func() bool { return fx.feed.State().Err != nil })
	if got := fx.updatedAt(); got != "t0" {
		t.Errorf("updatedAt = %q, stale snapshot should be kept", got)
	}
}

func TestProxyStopCancelsTimers(t *testing.T) {
	fx := newProxyFixture()
	fx.hydrate(t)
	fx.records()
	fx.fetch.next(t).reply(liveStats("t1"), nil)
	fx.idle(t)
	fx.records()

	fx.feed.Stop()
	if n := fx.clock.Pending(); n != 0 {
		t.Errorf("pending timers after Stop = %d", n)
	}
	if fx.push.subscribers() != 0 {
		t.Errorf("subscribers after Stop = %d", fx.push.subscribers())
	}
	fx.clock.Advance(2 * time.Minute)
	fx.fetch.none(t)
}
