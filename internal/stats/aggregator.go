package stats

import (
	"sort"
	"strings"
	"time"
)

var occurredAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// ParseOccurredAt parses the timestamp formats the backend emits.
// Layouts without a zone are read as UTC. Unparseable input yields the
// zero time.
func ParseOccurredAt(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range occurredAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SummarizeRecords aggregates records that occurred in [from, to]. Zero
// bounds are open. Status "success" counts as a success, any other
// non-empty status as a failure.
func SummarizeRecords(records []Invocation, from, to time.Time, pricing *PricingSettings) Summary {
	var s Summary
	byModel := make(map[string]*ModelCost)

	for _, r := range records {
		at := r.Time()
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && at.After(to) {
			continue
		}

		cost := CostOf(r, pricing)
		s.TotalCount++
		switch status := r.StatusName(); {
		case status == "success":
			s.SuccessCount++
		case status != "":
			s.FailureCount++
		}
		s.TotalCost += cost
		s.TotalTokens += r.Tokens()

		model := r.ModelName()
		if model == "" {
			model = "unknown"
		}
		mc, ok := byModel[model]
		if !ok {
			mc = &ModelCost{Model: model}
			byModel[model] = mc
		}
		mc.Count++
		mc.Cost += cost
	}

	if len(byModel) > 0 {
		s.ByModel = make([]ModelCost, 0, len(byModel))
		for _, mc := range byModel {
			s.ByModel = append(s.ByModel, *mc)
		}
		sort.Slice(s.ByModel, func(i, j int) bool {
			if s.ByModel[i].Cost != s.ByModel[j].Cost {
				return s.ByModel[i].Cost > s.ByModel[j].Cost
			}
			return s.ByModel[i].Model < s.ByModel[j].Model
		})
	}
	return s
}

// SuccessRate returns the success ratio in [0, 1], or 0 for an empty summary.
func (s Summary) SuccessRate() float64 {
	decided := s.SuccessCount + s.FailureCount
	if decided == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(decided)
}
