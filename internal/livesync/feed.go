package livesync

import (
	"log/slog"
	"sync"
	"time"

	"vibemon/internal/clock"
)

// Default timings.
const (
	DefaultRetryDelay         = 2 * time.Second
	DefaultVisibilityThrottle = 3 * time.Second
	DefaultSummaryInterval    = 60 * time.Second
	DefaultPushThrottle       = 5 * time.Second
	DefaultOpenCooldown       = 3 * time.Second
	DefaultPollInterval       = 60 * time.Second
	DefaultFetchTimeout       = 15 * time.Second
)

// listeners is a set of OnChange callbacks.
type listeners[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func defaults(c clock.Clock, logger *slog.Logger, name string) (clock.Clock, *slog.Logger) {
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return c, logger.With("feed", name)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
