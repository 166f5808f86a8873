package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vibemon/internal/flight"
	"vibemon/internal/stats"
)

// PricingStore reads and replaces the server's pricing table.
type PricingStore interface {
	FetchPricing(ctx context.Context) (stats.PricingSettings, error)
	UpdatePricing(ctx context.Context, settings stats.PricingSettings) (stats.PricingSettings, error)
}

// PricingState is a snapshot of the editor.
type PricingState struct {
	Draft  stats.PricingSettings
	Saving bool
	Loaded bool
	Err    error
}

// PricingEditor holds the locally edited pricing table. Saves apply
// optimistically, run one at a time and coalesce to the latest draft;
// a failed save rolls back to the last confirmed table unless a newer
// draft is already queued.
type PricingEditor struct {
	store   PricingStore
	logger  *slog.Logger
	timeout time.Duration

	saves   *flight.Flight[stats.PricingSettings]
	changes listeners[PricingState]

	mu        sync.Mutex
	draft     stats.PricingSettings
	confirmed stats.PricingSettings
	loaded    bool
	err       error
	idle      chan struct{}
}

// NewPricingEditor returns an empty editor; call Load to populate it.
func NewPricingEditor(store PricingStore, logger *slog.Logger) *PricingEditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingEditor{
		store:   store,
		logger:  logger.With("feed", "pricing"),
		timeout: DefaultFetchTimeout,
		saves:   flight.New(flight.Latest[stats.PricingSettings]),
	}
}

// Load fetches the server table and adopts it if no save is queued.
func (e *PricingEditor) Load(ctx context.Context) error {
	server, err := e.store.FetchPricing(ctx)
	if err != nil {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		e.emit()
		return fmt.Errorf("load pricing: %w", err)
	}
	e.Reconcile(server)
	return nil
}

// Reconcile adopts a server snapshot unless a save is running or
// queued. The visible draft is replaced only when its canonical form
// differs, so an echo of our own save does not disturb editing.
func (e *PricingEditor) Reconcile(server stats.PricingSettings) {
	changed := false
	e.saves.Inspect(func(running, pending bool) {
		if running || pending {
			return
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		e.confirmed = server.Clone()
		if !e.loaded || e.draft.Canonical() != server.Canonical() {
			e.draft = server.Clone()
			changed = true
		}
		e.loaded = true
	})
	if changed {
		e.emit()
	}
}

// Save applies next locally and queues it for the server.
func (e *PricingEditor) Save(next stats.PricingSettings) {
	next = next.Clone()
	var done chan struct{}
	start := e.saves.Submit(next, func(starting bool) {
		e.mu.Lock()
		e.draft = next.Clone()
		e.err = nil
		if starting {
			done = make(chan struct{})
			e.idle = done
		}
		e.mu.Unlock()
	})
	if start {
		go func() {
			e.saves.Drain(e.saveOne)
			close(done)
			e.emit()
		}()
	}
	e.emit()
}

// Upsert saves the draft with entry added or replaced.
func (e *PricingEditor) Upsert(entry stats.PricingEntry) {
	e.Save(e.Draft().Upsert(entry))
}

// Wait blocks until no save is running or queued.
func (e *PricingEditor) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.idle
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Draft returns the visible table.
func (e *PricingEditor) Draft() stats.PricingSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Confirmed returns the last table the server acknowledged.
func (e *PricingEditor) Confirmed() stats.PricingSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed.Clone()
}

// State returns a snapshot.
func (e *PricingEditor) State() PricingState {
	saving := e.saves.Running()
	e.mu.Lock()
	defer e.mu.Unlock()
	return PricingState{Draft: e.draft.Clone(), Saving: saving, Loaded: e.loaded, Err: e.err}
}

// OnChange registers fn to be called with every state change.
func (e *PricingEditor) OnChange(fn func(PricingState)) (unsubscribe func()) {
	return e.changes.add(fn)
}

func (e *PricingEditor) emit() { e.changes.emit(e.State()) }

func (e *PricingEditor) saveOne(draft stats.PricingSettings) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	saved, err := e.store.UpdatePricing(ctx, draft)
	cancel()

	e.saves.Settle(func(superseded bool) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err != nil {
			e.logger.Warn("pricing save failed", "error", err, "superseded", superseded)
			if !superseded {
				e.draft = e.confirmed.Clone()
				e.err = err
			}
			return
		}
		e.confirmed = saved.Clone()
		e.loaded = true
		if !superseded {
			e.draft = saved.Clone()
			e.err = nil
		}
	})
	e.emit()
}
