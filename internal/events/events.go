// Package events decodes the JSON payloads delivered on the push channel.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"vibemon/internal/stats"
)

// Event types carried in the "type" discriminator.
const (
	TypeRecords = "records"
	TypeSummary = "summary"
	TypeQuota   = "quota"
	TypeVersion = "version"
)

var (
	// ErrMalformed reports a payload that is not a well-formed event.
	ErrMalformed = errors.New("malformed push event")
	// ErrUnknownType reports a well-formed payload with an unknown type.
	ErrUnknownType = errors.New("unknown push event type")
)

// Event is one of RecordsEvent, SummaryEvent, QuotaEvent or VersionEvent.
type Event interface {
	Type() string
	isEvent()
}

// RecordsEvent carries a fresh batch of invocation records.
type RecordsEvent struct {
	Records []stats.Invocation `json:"records"`
}

// SummaryEvent carries the aggregate for one window.
type SummaryEvent struct {
	Window  string        `json:"window"`
	Summary stats.Summary `json:"summary"`
}

// QuotaEvent carries the latest quota snapshot.
type QuotaEvent struct {
	Snapshot stats.QuotaSnapshot `json:"snapshot"`
}

// VersionEvent announces the server's build version.
type VersionEvent struct {
	Version string `json:"version"`
}

func (RecordsEvent) Type() string { return TypeRecords }
func (SummaryEvent) Type() string { return TypeSummary }
func (QuotaEvent) Type() string   { return TypeQuota }
func (VersionEvent) Type() string { return TypeVersion }

func (RecordsEvent) isEvent() {}
func (SummaryEvent) isEvent() {}
func (QuotaEvent) isEvent()   {}
func (VersionEvent) isEvent() {}

// Decode parses a push payload. It never panics; rejected payloads
// return an error wrapping ErrMalformed or ErrUnknownType.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	kind := root.Get("type")
	if kind.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch kind.Str {
	case TypeRecords:
		if !root.Get("records").IsArray() {
			return nil, fmt.Errorf("%w: records is not an array", ErrMalformed)
		}
		var ev RecordsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for i, r := range ev.Records {
			if r.InvokeID == "" || r.OccurredAt == "" {
				return nil, fmt.Errorf("%w: record %d has no key", ErrMalformed, i)
			}
		}
		return ev, nil

	case TypeSummary:
		if w := root.Get("window"); w.Type != gjson.String || w.Str == "" {
			return nil, fmt.Errorf("%w: summary without window", ErrMalformed)
		}
		if !root.Get("summary").IsObject() {
			return nil, fmt.Errorf("%w: summary payload is not an object", ErrMalformed)
		}
		var ev SummaryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return ev, nil

	case TypeQuota:
		if !root.Get("snapshot").IsObject() {
			return nil, fmt.Errorf("%w: quota snapshot is not an object", ErrMalformed)
		}
		var ev QuotaEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return ev, nil

	case TypeVersion:
		v := root.Get("version")
		if v.Type != gjson.String || v.Str == "" {
			return nil, fmt.Errorf("%w: version is not a string", ErrMalformed)
		}
		return VersionEvent{Version: v.Str}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind.Str)
}

// Encode serializes an event with its discriminator; Decode(Encode(ev))
// round-trips.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case RecordsEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			RecordsEvent
		}{TypeRecords, e})
	case SummaryEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			SummaryEvent
		}{TypeSummary, e})
	case QuotaEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			QuotaEvent
		}{TypeQuota, e})
	case VersionEvent:
		return json.Marshal(struct {
			Type string `json:"type"`
			VersionEvent
		}{TypeVersion, e})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
}
