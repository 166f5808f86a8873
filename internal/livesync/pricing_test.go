package livesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vibemon/internal/stats"
)

type fakePricingStore struct {
	*calls[stats.PricingSettings, stats.PricingSettings]
	server stats.PricingSettings
}

func newFakePricingStore(server stats.PricingSettings) *fakePricingStore {
	return &fakePricingStore{calls: newCalls[stats.PricingSettings, stats.PricingSettings](), server: server}
}

func (s *fakePricingStore) FetchPricing(context.Context) (stats.PricingSettings, error) {
	return s.server.Clone(), nil
}

func (s *fakePricingStore) UpdatePricing(ctx context.Context, p stats.PricingSettings) (stats.PricingSettings, error) {
	return s.do(ctx, p)
}

func table(prices map[string]float64, order ...string) stats.PricingSettings {
	var p stats.PricingSettings
	for _, m := range order {
		p.Entries = append(p.Entries, stats.PricingEntry{Model: m, InputPer1M: prices[m], OutputPer1M: prices[m] * 4})
	}
	return p
}

func waitIdle(t *testing.T, e *PricingEditor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	waitFor(t, "saves settled", func() bool { return !e.State().Saving })
}

func TestPricingLatestSaveWins(t *testing.T) {
	s0 := table(map[string]float64{"gpt-5": 1}, "gpt-5")
	a := table(map[string]float64{"gpt-5": 2}, "gpt-5")
	b := table(map[string]float64{"gpt-5": 3}, "gpt-5")

	store := newFakePricingStore(s0)
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var mu sync.Mutex
	var drafts []stats.PricingSettings
	ed.OnChange(func(st PricingState) {
		mu.Lock()
		drafts = append(drafts, st.Draft)
		mu.Unlock()
	})

	ed.Save(a)
	first := store.next(t)
	ed.Save(b)
	if !ed.Draft().Equal(b) {
		t.Fatalf("draft = %+v, want b applied optimistically", ed.Draft())
	}
	first.reply(first.query, nil)

	second := store.next(t)
	if !second.query.Equal(b) {
		t.Fatalf("second save = %+v, want b", second.query)
	}
	if !ed.Draft().Equal(b) {
		t.Errorf("draft reverted to %+v while b was queued", ed.Draft())
	}
	second.reply(second.query, nil)
	waitIdle(t, ed)
	store.none(t)

	if !ed.Draft().Equal(b) || !ed.Confirmed().Equal(b) {
		t.Errorf("draft = %+v confirmed = %+v, want b", ed.Draft(), ed.Confirmed())
	}

	mu.Lock()
	defer mu.Unlock()
	sawB := false
	for _, d := range drafts {
		if d.Equal(b) {
			sawB = true
		} else if sawB {
			t.Errorf("draft went back to %+v after b", d)
		}
	}
}

func TestPricingWaitSeesSaveOnceDraftApplied(t *testing.T) {
	s0 := table(map[string]float64{"gpt-5": 1}, "gpt-5")
	a := table(map[string]float64{"gpt-5": 2}, "gpt-5")
	store := newFakePricingStore(s0)
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	waited := make(chan error, 1)
	go func() {
		for !ed.Draft().Equal(a) {
			time.Sleep(time.Microsecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		waited <- ed.Wait(ctx)
	}()

	ed.Save(a)
	call := store.next(t)
	if err := <-waited; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait while save in flight = %v, want %v", err, context.DeadlineExceeded)
	}
	call.reply(a, nil)
	waitIdle(t, ed)
}

func TestPricingFailedSaveRollsBack(t *testing.T) {
	s0 := table(map[string]float64{"gpt-5": 1}, "gpt-5")
	store := newFakePricingStore(s0)
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ed.Upsert(stats.PricingEntry{Model: "o3", InputPer1M: 2, OutputPer1M: 8})
	call := store.next(t)
	if len(call.query.Entries) != 2 {
		t.Fatalf("saved entries = %+v", call.query.Entries)
	}
	call.reply(stats.PricingSettings{}, errors.New("400 invalid price"))
	waitIdle(t, ed)

	st := ed.State()
	if !st.Draft.Equal(s0) {
		t.Errorf("draft = %+v, want rollback to %+v", st.Draft, s0)
	}
	if st.Err == nil {
		t.Error("failed save did not surface an error")
	}
}

func TestPricingFailureWithQueuedDraftKeepsDraft(t *testing.T) {
	s0 := table(map[string]float64{"gpt-5": 1}, "gpt-5")
	a := table(map[string]float64{"gpt-5": 2}, "gpt-5")
	b := table(map[string]float64{"gpt-5": 3}, "gpt-5")
	store := newFakePricingStore(s0)
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ed.Save(a)
	first := store.next(t)
	ed.Save(b)
	first.reply(stats.PricingSettings{}, errors.New("timeout"))

	second := store.next(t)
	if st := ed.State(); !st.Draft.Equal(b) || st.Err != nil {
		t.Errorf("state after superseded failure = %+v", st)
	}
	second.reply(second.query, nil)
	waitIdle(t, ed)
	if !ed.Confirmed().Equal(b) {
		t.Errorf("confirmed = %+v, want b", ed.Confirmed())
	}
}

func TestPricingReconcileWaitsForSaves(t *testing.T) {
	s0 := table(map[string]float64{"gpt-5": 1}, "gpt-5")
	a := table(map[string]float64{"gpt-5": 2}, "gpt-5")
	s9 := table(map[string]float64{"gpt-5": 9}, "gpt-5")
	store := newFakePricingStore(s0)
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ed.Save(a)
	call := store.next(t)
	ed.Reconcile(s9)
	if !ed.Draft().Equal(a) {
		t.Errorf("reconcile during save replaced draft with %+v", ed.Draft())
	}
	call.reply(a, nil)
	waitIdle(t, ed)

	ed.Reconcile(s9)
	if !ed.Draft().Equal(s9) || !ed.Confirmed().Equal(s9) {
		t.Errorf("draft = %+v confirmed = %+v, want s9", ed.Draft(), ed.Confirmed())
	}
}

func TestPricingReconcileIgnoresReordering(t *testing.T) {
	prices := map[string]float64{"gpt-5": 1, "o3": 2}
	store := newFakePricingStore(table(prices, "o3", "gpt-5"))
	ed := NewPricingEditor(store, quiet)
	if err := ed.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ed.State().Loaded {
		t.Fatal("editor not loaded")
	}

	changes := 0
	ed.OnChange(func(PricingState) { changes++ })
	ed.Reconcile(table(prices, "gpt-5", "o3"))
	if changes != 0 {
		t.Errorf("canonical echo emitted %d changes", changes)
	}
	if got := ed.Draft().Entries[0].Model; got != "o3" {
		t.Errorf("first entry = %q, draft order should be kept", got)
	}
}
