// Package livesync keeps client-side views of the monitor backend in
// step with push events and REST snapshots: the recent-invocations
// stream, window summaries, forward-proxy live stats and the pricing
// editor.
package livesync

import (
	"sort"

	"vibemon/internal/stats"
)

// Filter holds equality filters on model and status. Empty fields match
// everything.
type Filter struct {
	Model  string `json:"model,omitempty"`
	Status string `json:"status,omitempty"`
}

// Match reports whether r passes the filter.
func (f Filter) Match(r stats.Invocation) bool {
	if f.Model != "" && r.ModelName() != f.Model {
		return false
	}
	if f.Status != "" && r.StatusName() != f.Status {
		return false
	}
	return true
}

// MergeRecords combines incoming and current records keyed by
// (invokeId, occurredAt). Incoming records win on key collisions,
// records failing filter are dropped, and the result is sorted newest
// first and truncated to limit (limit <= 0 keeps everything). The
// inputs are not modified.
func MergeRecords(incoming, current []stats.Invocation, limit int, filter Filter) []stats.Invocation {
	byKey := make(map[stats.RecordKey]stats.Invocation, len(incoming)+len(current))
	for _, r := range current {
		if filter.Match(r) {
			byKey[r.Key()] = r
		}
	}
	for _, r := range incoming {
		if filter.Match(r) {
			byKey[r.Key()] = r
		} else {
			delete(byKey, r.Key())
		}
	}

	type entry struct {
		rec stats.Invocation
		at  int64
	}
	entries := make([]entry, 0, len(byKey))
	for _, r := range byKey {
		entries = append(entries, entry{rec: r, at: r.Time().UnixNano()})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.at != b.at {
			return a.at > b.at
		}
		if a.rec.OccurredAt != b.rec.OccurredAt {
			return a.rec.OccurredAt > b.rec.OccurredAt
		}
		return a.rec.InvokeID > b.rec.InvokeID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]stats.Invocation, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// recordsChanged reports whether next differs from prev by length or by
// any positional key.
func recordsChanged(prev, next []stats.Invocation) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range prev {
		if prev[i].InvokeID != next[i].InvokeID || prev[i].OccurredAt != next[i].OccurredAt {
			return true
		}
	}
	return false
}

func keySet(records []stats.Invocation) map[stats.RecordKey]struct{} {
	set := make(map[stats.RecordKey]struct{}, len(records))
	for _, r := range records {
		set[r.Key()] = struct{}{}
	}
	return set
}

// arrivedSince returns the records whose key is not in baseline.
func arrivedSince(records []stats.Invocation, baseline map[stats.RecordKey]struct{}) []stats.Invocation {
	var out []stats.Invocation
	for _, r := range records {
		if _, ok := baseline[r.Key()]; !ok {
			out = append(out, r)
		}
	}
	return out
}
