package stats

import (
	"encoding/json"
	"sort"
	"strings"
)

// PricingEntry holds per-million-token prices for a model (or model prefix).
type PricingEntry struct {
	Model           string   `json:"model" yaml:"model"`
	InputPer1M      float64  `json:"inputPer1m" yaml:"inputPer1m"`
	OutputPer1M     float64  `json:"outputPer1m" yaml:"outputPer1m"`
	CacheInputPer1M *float64 `json:"cacheInputPer1m,omitempty" yaml:"cacheInputPer1m,omitempty"`
	ReasoningPer1M  *float64 `json:"reasoningPer1m,omitempty" yaml:"reasoningPer1m,omitempty"`
}

// PricingSettings is the server's pricing table. Model names are unique.
type PricingSettings struct {
	Entries []PricingEntry `json:"entries"`
}

// Clone returns a deep copy.
func (p PricingSettings) Clone() PricingSettings {
	out := PricingSettings{Entries: make([]PricingEntry, len(p.Entries))}
	for i, e := range p.Entries {
		if e.CacheInputPer1M != nil {
			v := *e.CacheInputPer1M
			e.CacheInputPer1M = &v
		}
		if e.ReasoningPer1M != nil {
			v := *e.ReasoningPer1M
			e.ReasoningPer1M = &v
		}
		out.Entries[i] = e
	}
	return out
}

// Canonical returns an order-independent serialization: entries are
// sorted by model before encoding.
func (p PricingSettings) Canonical() string {
	c := p.Clone()
	sort.SliceStable(c.Entries, func(i, j int) bool {
		return c.Entries[i].Model < c.Entries[j].Model
	})
	if c.Entries == nil {
		c.Entries = []PricingEntry{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// Equal compares canonical forms.
func (p PricingSettings) Equal(other PricingSettings) bool {
	return p.Canonical() == other.Canonical()
}

// Upsert returns a copy with entry replacing any entry of the same model.
func (p PricingSettings) Upsert(entry PricingEntry) PricingSettings {
	out := p.Clone()
	for i := range out.Entries {
		if out.Entries[i].Model == entry.Model {
			out.Entries[i] = entry
			return out
		}
	}
	out.Entries = append(out.Entries, entry)
	return out
}

// Remove returns a copy without the given model.
func (p PricingSettings) Remove(model string) PricingSettings {
	out := PricingSettings{Entries: make([]PricingEntry, 0, len(p.Entries))}
	for _, e := range p.Clone().Entries {
		if e.Model != model {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// Lookup finds the entry for a model name. It matches exactly first,
// then by prefix so "gpt-5-codex-2025" matches "gpt-5-codex".
func (p PricingSettings) Lookup(model string) (PricingEntry, bool) {
	if model == "" {
		return PricingEntry{}, false
	}
	best := -1
	for i, e := range p.Entries {
		if e.Model == model {
			return e, true
		}
		if strings.HasPrefix(model, e.Model) && (best < 0 || len(e.Model) > len(p.Entries[best].Model)) {
			best = i
		}
	}
	if best < 0 {
		return PricingEntry{}, false
	}
	return p.Entries[best], true
}

// EstimateCost prices an invocation. Cached input defaults to 10% of the
// input price and reasoning tokens to the output price.
func EstimateCost(e PricingEntry, inv Invocation) float64 {
	cachePrice := e.InputPer1M * 0.10
	if e.CacheInputPer1M != nil {
		cachePrice = *e.CacheInputPer1M
	}
	reasoningPrice := e.OutputPer1M
	if e.ReasoningPer1M != nil {
		reasoningPrice = *e.ReasoningPer1M
	}

	input := derefInt(inv.InputTokens)
	cached := derefInt(inv.CacheInputTokens)
	if cached > input {
		cached = input
	}
	cost := float64(input-cached) * e.InputPer1M / 1_000_000
	cost += float64(cached) * cachePrice / 1_000_000
	cost += float64(derefInt(inv.OutputTokens)) * e.OutputPer1M / 1_000_000
	cost += float64(derefInt(inv.ReasoningTokens)) * reasoningPrice / 1_000_000
	return cost
}

// CostOf returns the server-reported cost, or an estimate from pricing
// when the server did not report one.
func CostOf(inv Invocation, pricing *PricingSettings) float64 {
	if inv.Cost != nil {
		return *inv.Cost
	}
	if pricing == nil {
		return 0
	}
	entry, ok := pricing.Lookup(inv.ModelName())
	if !ok {
		return 0
	}
	return EstimateCost(entry, inv)
}
