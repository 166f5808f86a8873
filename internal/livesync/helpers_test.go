package livesync

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"vibemon/internal/api"
	"vibemon/internal/events"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

var quiet = slog.New(slog.DiscardHandler)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// fakePush is a pushconn.Source whose events and opens are delivered
// synchronously by the test.
type fakePush struct {
	mu     sync.Mutex
	next   int
	subs   map[int]func(events.Event)
	opens  map[int]func()
	status pushconn.Status
}

func newFakePush() *fakePush {
	return &fakePush{subs: map[int]func(events.Event){}, opens: map[int]func(){}, status: pushconn.StatusOpen}
}

func (p *fakePush) Subscribe(fn func(events.Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *fakePush) SubscribeOpen(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	p.opens[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.opens, id)
		p.mu.Unlock()
	}
}

func (p *fakePush) Status() pushconn.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakePush) SubscribeStatus(func(pushconn.Status)) func() { return func() {} }

func (p *fakePush) emit(ev events.Event) {
	p.mu.Lock()
	fns := make([]func(events.Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (p *fakePush) open() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.opens))
	for _, fn := range p.opens {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (p *fakePush) subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs) + len(p.opens)
}

// call is one blocked fetch; the test answers it with reply.
type call[Q, R any] struct {
	query Q
	resp  chan result[R]
}

type result[R any] struct {
	val R
	err error
}

func (c *call[Q, R]) reply(v R, err error) { c.resp <- result[R]{v, err} }

type calls[Q, R any] struct {
	ch chan *call[Q, R]
}

func newCalls[Q, R any]() *calls[Q, R] {
	return &calls[Q, R]{ch: make(chan *call[Q, R], 32)}
}

func (c *calls[Q, R]) do(ctx context.Context, q Q) (R, error) {
	cl := &call[Q, R]{query: q, resp: make(chan result[R], 1)}
	c.ch <- cl
	select {
	case r := <-cl.resp:
		return r.val, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (c *calls[Q, R]) next(t *testing.T) *call[Q, R] {
	t.Helper()
	select {
	case cl := <-c.ch:
		return cl
	case <-time.After(3 * time.Second):
		t.Fatal("expected a fetch, none issued")
		return nil
	}
}

func (c *calls[Q, R]) none(t *testing.T) {
	t.Helper()
	select {
	case cl := <-c.ch:
		t.Fatalf("unexpected fetch with query %+v", cl.query)
	case <-time.After(30 * time.Millisecond):
	}
}

type fakeRecords struct {
	*calls[api.InvocationQuery, []stats.Invocation]
}

func (f fakeRecords) ListInvocations(ctx context.Context, q api.InvocationQuery) ([]stats.Invocation, error) {
	return f.do(ctx, q)
}

type fakeSummaries struct {
	*calls[string, stats.Summary]
}

func (f fakeSummaries) FetchSummary(ctx context.Context, window string) (stats.Summary, error) {
	return f.do(ctx, window)
}

type fakeProxyStats struct {
	*calls[struct{}, stats.ForwardProxyLiveStats]
}

func (f fakeProxyStats) FetchForwardProxyLiveStats(ctx context.Context) (stats.ForwardProxyLiveStats, error) {
	return f.do(ctx, struct{}{})
}
