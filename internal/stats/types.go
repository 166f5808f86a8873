package stats

import "time"

// Invocation is a single proxied LLM call as reported by the monitor
// backend. Records are immutable values identified by Key().
type Invocation struct {
	ID               int64    `json:"id"`
	InvokeID         string   `json:"invokeId"`
	OccurredAt       string   `json:"occurredAt"`
	Model            *string  `json:"model,omitempty"`
	InputTokens      *int64   `json:"inputTokens,omitempty"`
	OutputTokens     *int64   `json:"outputTokens,omitempty"`
	CacheInputTokens *int64   `json:"cacheInputTokens,omitempty"`
	ReasoningTokens  *int64   `json:"reasoningTokens,omitempty"`
	TotalTokens      *int64   `json:"totalTokens,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	Status           *string  `json:"status,omitempty"`
	ErrorMessage     *string  `json:"errorMessage,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	Latency          *Latency `json:"latency,omitempty"`
}

// Latency is the optional timing breakdown of an invocation, in milliseconds.
type Latency struct {
	TotalMs     *float64 `json:"totalMs,omitempty"`
	FirstByteMs *float64 `json:"firstByteMs,omitempty"`
	UpstreamMs  *float64 `json:"upstreamMs,omitempty"`
}

// RecordKey is the natural key of an invocation.
type RecordKey struct {
	InvokeID   string
	OccurredAt string
}

// Key returns the (invokeId, occurredAt) key of the record.
func (r Invocation) Key() RecordKey {
	return RecordKey{InvokeID: r.InvokeID, OccurredAt: r.OccurredAt}
}

// ModelName returns the model or "" when unknown.
func (r Invocation) ModelName() string { return deref(r.Model) }

// StatusName returns the status or "" when unknown.
func (r Invocation) StatusName() string { return deref(r.Status) }

// Tokens returns the total token count, summing the parts when the
// backend did not report a total.
func (r Invocation) Tokens() int64 {
	if r.TotalTokens != nil {
		return *r.TotalTokens
	}
	return derefInt(r.InputTokens) + derefInt(r.OutputTokens) + derefInt(r.ReasoningTokens)
}

// Time parses OccurredAt; the zero time is returned for unparseable values.
func (r Invocation) Time() time.Time { return ParseOccurredAt(r.OccurredAt) }

// Summary is the aggregate over a window.
type Summary struct {
	TotalCount   int64       `json:"totalCount"`
	SuccessCount int64       `json:"successCount"`
	FailureCount int64       `json:"failureCount"`
	TotalCost    float64     `json:"totalCost"`
	TotalTokens  int64       `json:"totalTokens"`
	ByModel      []ModelCost `json:"byModel,omitempty"`
}

// ModelCost is the cost share of a single model.
type ModelCost struct {
	Model string  `json:"model"`
	Count int64   `json:"count"`
	Cost  float64 `json:"cost"`
}

// QuotaSnapshot is the upstream subscription quota at a point in time.
type QuotaSnapshot struct {
	CapturedAt       string   `json:"capturedAt"`
	SubscriptionName *string  `json:"subscriptionName,omitempty"`
	UsedAmount       *float64 `json:"usedAmount,omitempty"`
	RemainingAmount  *float64 `json:"remainingAmount,omitempty"`
	TotalAmount      *float64 `json:"totalAmount,omitempty"`
	PeriodEndsAt     *string  `json:"periodEndsAt,omitempty"`
}

// TimeseriesPoint is one bucket of a usage timeseries.
type TimeseriesPoint struct {
	BucketStart string  `json:"bucketStart"`
	TotalCount  int64   `json:"totalCount"`
	TotalCost   float64 `json:"totalCost"`
	TotalTokens int64   `json:"totalTokens"`
}

// ForwardProxyNode is the live state of one forward-proxy upstream.
type ForwardProxyNode struct {
	Name          string   `json:"name"`
	URL           string   `json:"url"`
	Healthy       bool     `json:"healthy"`
	Requests1m    int64    `json:"requests1m"`
	Failures1m    int64    `json:"failures1m"`
	AvgLatencyMs  *float64 `json:"avgLatencyMs,omitempty"`
	LastCheckedAt *string  `json:"lastCheckedAt,omitempty"`
}

// ForwardProxyLiveStats is the snapshot returned by the live-stats endpoint.
type ForwardProxyLiveStats struct {
	Nodes     []ForwardProxyNode `json:"nodes"`
	UpdatedAt string             `json:"updatedAt"`
}

// Healthy counts healthy nodes.
func (s ForwardProxyLiveStats) Healthy() int {
	n := 0
	for _, node := range s.Nodes {
		if node.Healthy {
			n++
		}
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
