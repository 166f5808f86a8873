package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"vibemon/internal/livesync"
	"vibemon/internal/output"
	"vibemon/internal/stats"
	"vibemon/internal/ui"
)

// TailOptions selects the records tail prints.
type TailOptions struct {
	Model  string
	Status string
	Limit  int
	// Notify turns on desktop alerts in addition to the configured ones.
	Notify bool
}

// RunTail prints records as they arrive until interrupted.
func RunTail(opts TailOptions) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	push, err := a.newPush()
	if err != nil {
		output.PrintError(err)
		return
	}
	defer push.Close()

	if opts.Limit > 0 {
		a.cfg.Limit = opts.Limit
	}
	printer := newRecordPrinter(output.JSONMode)
	f := a.newFeeds(push, livesync.Filter{Model: opts.Model, Status: opts.Status}, printer.Print)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer a.startAlerts(opts.Notify, push, f.stream, nil)()

	unsub := f.stream.OnChange(func(s livesync.StreamState) {
		if s.Err != nil {
			a.logger.Warn("fetch records", "error", s.Err)
		}
	})
	defer unsub()

	f.stream.Start()
	<-ctx.Done()
	f.stream.Stop()
}

// recordPrinter prints each record of the merged view once, oldest
// first, to output.Out.
type recordPrinter struct {
	json bool

	mu   sync.Mutex
	seen map[stats.RecordKey]struct{}
}

func newRecordPrinter(json bool) *recordPrinter {
	return &recordPrinter{json: json, seen: make(map[stats.RecordKey]struct{})}
}

// Print writes the records of view not printed before. view is newest
// first; records that fell out of it are forgotten.
func (p *recordPrinter) Print(view []stats.Invocation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[stats.RecordKey]struct{}, len(view))
	for i := len(view) - 1; i >= 0; i-- {
		r := view[i]
		next[r.Key()] = struct{}{}
		if _, ok := p.seen[r.Key()]; ok {
			continue
		}
		if p.json {
			if err := output.Line(r); err != nil {
				return
			}
			continue
		}
		fmt.Fprintln(output.Out, formatRecord(r))
	}
	p.seen = next
}

// formatRecord renders one record as a tail line.
func formatRecord(r stats.Invocation) string {
	at := r.OccurredAt
	if t := r.Time(); !t.IsZero() {
		at = t.Local().Format("15:04:05")
	}
	model := ui.ShortenModel(r.ModelName())
	if model == "" {
		model = "-"
	}
	status := r.StatusName()
	if status == "" {
		status = "-"
	}
	cost := "-"
	if r.Cost != nil {
		cost = ui.FormatCost(*r.Cost)
	}
	var latency *float64
	if r.Latency != nil {
		latency = r.Latency.TotalMs
	}
	return fmt.Sprintf("%s  %-24s %-8s %8s %9s %7s",
		at, model, status, ui.FormatTokens(r.Tokens()), cost, ui.FormatLatency(latency))
}
