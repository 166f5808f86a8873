package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vibemon/internal/clock"
	"vibemon/internal/livesync"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
)

// Alert kinds.
const (
	KindDisabled  = "push-disabled"
	KindFailure   = "invocation-failed"
	KindProxyDown = "forward-proxy-down"
)

// DefaultCooldown spaces repeated alerts of the same kind.
const DefaultCooldown = 2 * time.Minute

const (
	queueSize   = 16
	sendTimeout = 30 * time.Second
	maxSeen     = 1024
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Cooldown time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Watcher turns live feed state into alerts: the push connection giving
// up, failed invocations arriving after the first load, and every
// forward-proxy node going unhealthy. Alerts of one kind are rate
// limited by the cooldown and delivered by Run.
type Watcher struct {
	sender   Sender
	clock    clock.Clock
	logger   *slog.Logger
	cooldown time.Duration
	queue    chan Notification

	mu        sync.Mutex
	lastSent  map[string]time.Time
	status    pushconn.Status
	primed    bool
	seen      map[stats.RecordKey]struct{}
	proxyDown bool
}

// NewWatcher returns a watcher delivering through sender.
func NewWatcher(sender Sender, opts WatcherOptions) *Watcher {
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Watcher{
		sender:   sender,
		clock:    c,
		logger:   logger.With("component", "notify", "sender", sender.Name()),
		cooldown: cooldown,
		queue:    make(chan Notification, queueSize),
		lastSent: make(map[string]time.Time),
		seen:     make(map[stats.RecordKey]struct{}),
	}
}

// Attach subscribes to the given sources; nil ones are skipped. The
// returned func unsubscribes.
func (w *Watcher) Attach(push pushconn.Source, stream *livesync.InvocationStream, proxy *livesync.ForwardProxyFeed) func() {
	var unsubs []func()
	if push != nil {
		unsubs = append(unsubs, push.SubscribeStatus(w.ObserveStatus))
	}
	if stream != nil {
		unsubs = append(unsubs, stream.OnChange(w.ObserveRecords))
	}
	if proxy != nil {
		unsubs = append(unsubs, proxy.OnChange(w.ObserveProxy))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Run delivers queued alerts until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := w.sender.Send(sendCtx, n); err != nil {
				w.logger.Warn("send alert", "kind", n.Kind, "error", err)
			}
			cancel()
		}
	}
}

// ObserveStatus alerts when the push connection is disabled.
func (w *Watcher) ObserveStatus(s pushconn.Status) {
	w.mu.Lock()
	prev := w.status
	w.status = s
	w.mu.Unlock()

	if s == pushconn.StatusDisabled && prev != pushconn.StatusDisabled {
		w.raise(Notification{
			Kind:    KindDisabled,
			Title:   "vibemon: live updates stopped",
			Message: "The push connection kept failing and was disabled. Restart vibemon to retry.",
			Sound:   true,
		})
	}
}

// ObserveRecords alerts for failed invocations that were not in the
// view before. The first settled state only seeds the view.
func (w *Watcher) ObserveRecords(s livesync.StreamState) {
	w.mu.Lock()
	if !w.primed {
		if s.Loading {
			w.mu.Unlock()
			return
		}
		w.primed = true
		for _, r := range s.Records {
			w.seen[r.Key()] = struct{}{}
		}
		w.mu.Unlock()
		return
	}

	var failed []stats.Invocation
	for _, r := range s.Records {
		if _, ok := w.seen[r.Key()]; ok {
			continue
		}
		w.seen[r.Key()] = struct{}{}
		if status := r.StatusName(); status != "" && status != "success" {
			failed = append(failed, r)
		}
	}
	if len(w.seen) > maxSeen {
		w.seen = make(map[stats.RecordKey]struct{}, len(s.Records))
		for _, r := range s.Records {
			w.seen[r.Key()] = struct{}{}
		}
	}
	w.mu.Unlock()

	if len(failed) > 0 {
		w.raise(Notification{
			Kind:    KindFailure,
			Title:   "vibemon: invocation failed",
			Message: failureMessage(failed),
		})
	}
}

// ObserveProxy alerts when every forward-proxy node turns unhealthy.
func (w *Watcher) ObserveProxy(s livesync.ForwardProxyState) {
	if s.Stats == nil || len(s.Stats.Nodes) == 0 {
		return
	}
	down := s.Stats.Healthy() == 0

	w.mu.Lock()
	was := w.proxyDown
	w.proxyDown = down
	w.mu.Unlock()

	if down && !was {
		w.raise(Notification{
			Kind:    KindProxyDown,
			Title:   "vibemon: forward proxy down",
			Message: fmt.Sprintf("All %d forward-proxy nodes are unhealthy.", len(s.Stats.Nodes)),
			Sound:   true,
		})
	}
}

// raise queues n unless an alert of the same kind went out within the
// cooldown. A full queue drops the alert.
func (w *Watcher) raise(n Notification) {
	now := w.clock.Now()
	w.mu.Lock()
	if last, ok := w.lastSent[n.Kind]; ok && now.Sub(last) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastSent[n.Kind] = now
	w.mu.Unlock()

	select {
	case w.queue <- n:
	default:
		w.logger.Warn("alert queue full, dropping", "kind", n.Kind)
	}
}

func failureMessage(failed []stats.Invocation) string {
	r := failed[0]
	model := r.ModelName()
	if model == "" {
		model = "unknown model"
	}
	msg := model + " " + r.StatusName()
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		msg += ": " + *r.ErrorMessage
	}
	if len(failed) > 1 {
		msg += fmt.Sprintf(" (+%d more)", len(failed)-1)
	}
	return msg
}
