// Package update decides when the dashboard shows a new-version notice.
package update

import (
	"strconv"
	"strings"
	"sync"

	"vibemon/internal/events"
)

// CompareVersions returns true if available is newer than current.
// Both are expected as semver strings like "v1.2.3" or "1.2.3".
func CompareVersions(current, available string) bool {
	cur := parseVersion(current)
	avail := parseVersion(available)
	if cur == nil || avail == nil {
		return false
	}
	for i := 0; i < 3; i++ {
		if avail[i] != cur[i] {
			return avail[i] > cur[i]
		}
	}
	return false
}

// parseVersion extracts [major, minor, patch] from a version string.
func parseVersion(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	core, _, _ := strings.Cut(v, "-")
	core, _, _ = strings.Cut(core, "+")
	fields := strings.Split(core, ".")
	if len(fields) != 3 {
		return nil
	}
	result := make([]int, 3)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil
		}
		result[i] = n
	}
	return result
}

// ShouldNotify reports whether available deserves a notice: it is newer
// than current and the user has not dismissed it.
func ShouldNotify(current, available, dismissed string) bool {
	if current == "dev" || available == "" {
		return false
	}
	if sameVersion(available, dismissed) {
		return false
	}
	return CompareVersions(current, available)
}

func sameVersion(a, b string) bool {
	return strings.TrimPrefix(strings.TrimSpace(a), "v") == strings.TrimPrefix(strings.TrimSpace(b), "v")
}

// Notifier tracks version push events against the running build.
type Notifier struct {
	current string

	mu        sync.Mutex
	available string
	dismissed string
}

// NewNotifier returns a notifier for the running version, seeded with
// the persisted dismissed version.
func NewNotifier(current, dismissed string) *Notifier {
	return &Notifier{current: current, dismissed: dismissed}
}

// Observe records version events and reports whether the notice changed.
func (n *Notifier) Observe(ev events.Event) bool {
	v, ok := ev.(events.VersionEvent)
	if !ok {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if v.Version == n.available {
		return false
	}
	before := n.showingLocked()
	n.available = v.Version
	return before != n.showingLocked()
}

// Notice returns the version to announce, if any.
func (n *Notifier) Notice() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.showingLocked() == "" {
		return "", false
	}
	return n.available, true
}

// Dismiss hides the current notice and returns the version to persist
// as dismissed, or "" if nothing was shown.
func (n *Notifier) Dismiss() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.showingLocked() == "" {
		return ""
	}
	n.dismissed = n.available
	return n.dismissed
}

func (n *Notifier) showingLocked() string {
	if ShouldNotify(n.current, n.available, n.dismissed) {
		return n.available
	}
	return ""
}
