package livesync

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vibemon/internal/api"
	"vibemon/internal/clock"
	"vibemon/internal/events"
	"vibemon/internal/stats"
)

var epoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

type streamFixture struct {
	stream *InvocationStream
	push   *fakePush
	fetch  fakeRecords
	clock  *clock.FakeClock

	mu     sync.Mutex
	newFor [][]stats.Invocation
}

func newStreamFixture(limit int, filter Filter) *streamFixture {
	fx := &streamFixture{
		push:  newFakePush(),
		fetch: fakeRecords{newCalls[api.InvocationQuery, []stats.Invocation]()},
		clock: clock.Fake(epoch),
	}
	fx.stream = NewInvocationStream(StreamOptions{
		Limit:   limit,
		Filter:  filter,
		Fetcher: fx.fetch,
		Push:    fx.push,
		Clock:   fx.clock,
		Logger:  quiet,
		OnNewRecords: func(r []stats.Invocation) {
			fx.mu.Lock()
			fx.newFor = append(fx.newFor, r)
			fx.mu.Unlock()
		},
	})
	return fx
}

func (fx *streamFixture) newRecordCalls() int {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return len(fx.newFor)
}

// hydrate starts the stream and answers the initial load.
func (fx *streamFixture) hydrate(t *testing.T, records ...stats.Invocation) {
	t.Helper()
	fx.stream.Start()
	fx.fetch.next(t).reply(records, nil)
	waitFor(t, "hydration", func() bool {
		fx.stream.mu.Lock()
		defer fx.stream.mu.Unlock()
		return fx.stream.hydrated
	})
}

func at(minute int) string {
	return epoch.Add(time.Duration(minute) * time.Minute).Format(time.RFC3339)
}

func TestStreamPushMergesAheadOfExisting(t *testing.T) {
	fx := newStreamFixture(5, Filter{})
	defer fx.stream.Stop()
	fx.hydrate(t, rec("old-1", at(1)), rec("old-2", at(2)), rec("old-3", at(3)))

	fx.push.open()
	fx.fetch.next(t).reply([]stats.Invocation{rec("old-1", at(1)), rec("old-2", at(2)), rec("old-3", at(3))}, nil)

	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{
		rec("new-1", at(10)), rec("new-3", at(12)), rec("new-2", at(11)),
	}})

	st := fx.stream.State()
	if len(st.Records) > 5 {
		t.Fatalf("len = %d exceeds limit", len(st.Records))
	}
	seen := map[stats.RecordKey]bool{}
	for i, r := range st.Records {
		if seen[r.Key()] {
			t.Errorf("duplicate record %v", r.Key())
		}
		seen[r.Key()] = true
		if i > 0 && !r.Time().Before(st.Records[i-1].Time()) {
			t.Errorf("records not strictly descending at %d: %v", i, keys(st.Records))
		}
	}
	want := []string{"new-3", "new-2", "new-1", "old-3", "old-2"}
	for i, id := range want {
		if st.Records[i].InvokeID != id {
			t.Fatalf("records = %v, want ids %v", keys(st.Records), want)
		}
	}
	if !st.HasData || st.Loading || st.Err != nil {
		t.Errorf("state = %+v", st)
	}
}

func TestStreamBaselinePreservesConcurrentPush(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.hydrate(t, rec("a", at(1)), rec("b", at(2)))

	fx.stream.Resync()
	inflight := fx.fetch.next(t)
	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("d", at(9))}})

	// The server no longer returns a, and has not seen d yet.
	inflight.reply([]stats.Invocation{rec("b", at(2)), rec("c", at(3))}, nil)
	waitFor(t, "resync applied", func() bool {
		for _, r := range fx.stream.Records() {
			if r.InvokeID == "c" {
				return true
			}
		}
		return false
	})

	got := keys(fx.stream.Records())
	want := []string{"d@" + at(9), "c@" + at(3), "b@" + at(2)}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("records = %v, want %v", got, want)
		}
	}
}

func TestStreamDiscardsStaleResponses(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	first := fx.fetch.next(t)

	fx.stream.SetQuery(10, Filter{Model: "gpt-5"})
	second := fx.fetch.next(t)
	if second.query.Model != "gpt-5" {
		t.Fatalf("second query = %+v", second.query)
	}
	second.reply([]stats.Invocation{withModel(rec("fresh", at(5)), "gpt-5", "success")}, nil)
	waitFor(t, "second applied", func() bool { return len(fx.stream.Records()) == 1 })

	first.reply([]stats.Invocation{rec("stale-1", at(7)), rec("stale-2", at(8))}, nil)
	time.Sleep(20 * time.Millisecond)
	if got := keys(fx.stream.Records()); len(got) != 1 || got[0] != "fresh@"+at(5) {
		t.Errorf("records = %v, stale response applied", got)
	}
}

func TestStreamRetriesInitialLoad(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	if !fx.stream.State().Loading {
		t.Error("initial load not marked loading")
	}
	fx.fetch.next(t).reply(nil, errors.New("connection refused"))
	waitFor(t, "error surfaced", func() bool { return fx.stream.State().Err != nil })

	fx.clock.Advance(1999 * time.Millisecond)
	fx.fetch.none(t)
	fx.clock.Advance(time.Millisecond)
	fx.fetch.next(t).reply([]stats.Invocation{rec("a", at(1))}, nil)
	waitFor(t, "recovered", func() bool {
		st := fx.stream.State()
		return st.Err == nil && st.HasData
	})
}

func TestStreamNoRetryOncePushFilledRecords(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	fx.fetch.next(t).reply(nil, errors.New("boom"))
	waitFor(t, "error surfaced", func() bool { return fx.stream.State().Err != nil })

	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("p", at(1))}})
	fx.clock.Advance(5 * time.Second)
	fx.fetch.none(t)
}

func TestStreamReconnectReloadsAfterFailedLoad(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	fx.fetch.next(t).reply(nil, errors.New("502 bad gateway"))
	waitFor(t, "error surfaced", func() bool { return fx.stream.State().Err != nil })

	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("p", at(1))}})
	fx.clock.Advance(3 * time.Second)
	fx.fetch.none(t)

	fx.push.open()
	if !fx.stream.State().Loading {
		t.Error("reconnect reload not marked loading")
	}
	fx.fetch.next(t).reply([]stats.Invocation{rec("a", at(2)), rec("p", at(1))}, nil)
	waitFor(t, "recovered", func() bool {
		st := fx.stream.State()
		return st.Err == nil && len(st.Records) == 2
	})

	fx.push.open()
	fx.fetch.next(t)
}

func TestStreamVisibilityReloadsAfterFailedLoad(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	fx.fetch.next(t).reply(nil, errors.New("502 bad gateway"))
	waitFor(t, "error surfaced", func() bool { return fx.stream.State().Err != nil })
	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("p", at(1))}})

	fx.stream.SetVisible(false)
	fx.stream.SetVisible(true)
	fx.fetch.next(t).reply([]stats.Invocation{rec("p", at(1))}, nil)
	waitFor(t, "recovered", func() bool { return fx.stream.State().Err == nil })
}

func TestStreamFetchCancelsPendingRetry(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	fx.fetch.next(t).reply(nil, errors.New("connection refused"))
	waitFor(t, "error surfaced", func() bool { return fx.stream.State().Err != nil })

	fx.stream.Refresh()
	refresh := fx.fetch.next(t)
	fx.clock.Advance(5 * time.Second)
	fx.fetch.none(t)
	refresh.reply([]stats.Invocation{rec("a", at(1))}, nil)
	waitFor(t, "recovered", func() bool { return fx.stream.State().HasData })
}

func TestStreamSilentFailureKeepsData(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.hydrate(t, rec("a", at(1)))

	fx.stream.Resync()
	fx.fetch.next(t).reply(nil, errors.New("timeout"))
	time.Sleep(20 * time.Millisecond)
	st := fx.stream.State()
	if st.Err != nil || len(st.Records) != 1 {
		t.Errorf("silent failure changed state: %+v", st)
	}

	fx.stream.Refresh()
	fx.fetch.next(t).reply(nil, errors.New("timeout"))
	waitFor(t, "explicit failure surfaced", func() bool { return fx.stream.State().Err != nil })
}

func TestStreamOpenBeforeHydrationDefersResync(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.stream.Start()
	initial := fx.fetch.next(t)

	fx.push.open()
	fx.fetch.none(t)

	initial.reply([]stats.Invocation{rec("a", at(1))}, nil)
	pending := fx.fetch.next(t)
	pending.reply([]stats.Invocation{rec("a", at(1))}, nil)

	fx.push.open()
	fx.fetch.next(t)
}

func TestStreamVisibilityResyncThrottled(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.hydrate(t, rec("a", at(1)))

	fx.stream.SetVisible(true)
	fx.fetch.none(t)

	fx.stream.SetVisible(false)
	fx.stream.SetVisible(true)
	fx.fetch.next(t).reply([]stats.Invocation{rec("a", at(1))}, nil)

	fx.clock.Advance(time.Second)
	fx.stream.SetVisible(false)
	fx.stream.SetVisible(true)
	fx.fetch.none(t)

	fx.clock.Advance(2 * time.Second)
	fx.stream.SetVisible(false)
	fx.fetch.none(t)
	fx.stream.SetVisible(true)
	fx.fetch.next(t)
}

func TestStreamOnNewRecordsOnlyOnChange(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	defer fx.stream.Stop()
	fx.hydrate(t, rec("a", at(1)))
	waitFor(t, "initial OnNewRecords", func() bool { return fx.newRecordCalls() == 1 })
	base := 1

	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("a", at(1))}})
	if got := fx.newRecordCalls(); got != base {
		t.Errorf("no-op merge fired OnNewRecords (%d -> %d)", base, got)
	}
	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("b", at(2))}})
	if got := fx.newRecordCalls(); got != base+1 {
		t.Errorf("OnNewRecords calls = %d, want %d", got, base+1)
	}
	fx.push.emit(events.SummaryEvent{Window: "1d"})
	if got := fx.newRecordCalls(); got != base+1 {
		t.Errorf("summary event fired OnNewRecords")
	}
}

func TestStreamOnNewRecordsSerializedAndOrdered(t *testing.T) {
	const writers, perWriter = 8, 10
	push := newFakePush()
	fetch := fakeRecords{newCalls[api.InvocationQuery, []stats.Invocation]()}

	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		mu       sync.Mutex
		lengths  []int
	)
	stream := NewInvocationStream(StreamOptions{
		Limit:   writers * perWriter,
		Fetcher: fetch,
		Push:    push,
		Clock:   clock.Fake(epoch),
		Logger:  quiet,
		OnNewRecords: func(r []stats.Invocation) {
			if inFlight.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			lengths = append(lengths, len(r))
			mu.Unlock()
			inFlight.Add(-1)
		},
	})
	defer stream.Stop()
	stream.Start()
	fetch.next(t).reply(nil, nil)
	waitFor(t, "hydration", func() bool {
		stream.mu.Lock()
		defer stream.mu.Unlock()
		return stream.hydrated
	})

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				push.emit(events.RecordsEvent{Records: []stats.Invocation{rec(id, at(w*perWriter+i))}})
			}
		}(w)
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("OnNewRecords calls overlapped")
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(lengths); i++ {
		if lengths[i] < lengths[i-1] {
			t.Fatalf("delivery %d has %d records after %d, want non-decreasing", i, lengths[i], lengths[i-1])
		}
	}
	if n := len(lengths); n == 0 || lengths[n-1] != writers*perWriter {
		t.Errorf("last delivery = %v, want %d records", lengths, writers*perWriter)
	}
	if got := len(stream.Records()); got != writers*perWriter {
		t.Errorf("Records() = %d, want %d", got, writers*perWriter)
	}
}

func TestStreamStopResetsAndUnsubscribes(t *testing.T) {
	fx := newStreamFixture(10, Filter{})
	fx.hydrate(t, rec("a", at(1)))
	if fx.push.subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", fx.push.subscribers())
	}
	fx.stream.Stop()
	if fx.push.subscribers() != 0 {
		t.Errorf("subscribers after Stop = %d", fx.push.subscribers())
	}
	if st := fx.stream.State(); st.HasData || st.Loading {
		t.Errorf("state after Stop = %+v", st)
	}
	fx.push.emit(events.RecordsEvent{Records: []stats.Invocation{rec("b", at(2))}})
	if len(fx.stream.Records()) != 0 {
		t.Error("stopped stream accepted a push")
	}
}
