package pushconn

import (
	"fmt"
	"time"
)

// Status is the externally visible connection status.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusDisabled   Status = "disabled"
)

// Phase is the internal lifecycle phase of the connection.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseBackoff
	PhaseDisabled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseBackoff:
		return "backoff"
	case PhaseDisabled:
		return "disabled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status maps a phase to the status reported to subscribers.
func (p Phase) Status() Status {
	switch p {
	case PhaseConnecting:
		return StatusConnecting
	case PhaseOpen:
		return StatusOpen
	case PhaseDisabled:
		return StatusDisabled
	}
	return StatusClosed
}

// Policy holds the reconnect and watchdog tunables.
type Policy struct {
	// MaxAttempts is the number of consecutive failures that are retried;
	// the next failure disables the channel.
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	WatchdogInterval time.Duration
	// ConnectCeiling is how long a handshake may stay connecting before
	// the watchdog forces a redial.
	ConnectCeiling time.Duration
}

// DefaultPolicy returns the production reconnect policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      5,
		BaseDelay:        2 * time.Second,
		MaxDelay:         30 * time.Second,
		WatchdogInterval: 5 * time.Second,
		ConnectCeiling:   45 * time.Second,
	}
}

// BackoffDelay returns min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) BackoffDelay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// State is the connection state machine's state.
type State struct {
	Phase Phase
	// Attempt counts consecutive failures since the last successful open.
	Attempt int
	// Since is when the current phase was entered.
	Since time.Time
}

// SignalKind enumerates the inputs to Step.
type SignalKind int

const (
	SignalStart SignalKind = iota
	SignalOpened
	SignalFailed
	SignalRetry
	SignalWatchdog
	SignalStop
)

// Signal is an input to Step.
type Signal struct {
	Kind SignalKind
	// NativeClosed is set on watchdog ticks when the transport has ended
	// without reporting an error.
	NativeClosed bool
}

// EffectKind enumerates the side effects requested by Step.
type EffectKind int

const (
	EffectDial EffectKind = iota
	EffectClose
	EffectScheduleReconnect
	EffectCancelReconnect
	EffectNotifyOpen
	EffectStartWatchdog
	EffectStopWatchdog
)

// Effect is a side effect the caller must perform, in order.
type Effect struct {
	Kind  EffectKind
	Delay time.Duration
}

// Step is the pure transition function of the connection state machine.
// Disabled is terminal: every signal leaves it unchanged.
func Step(s State, sig Signal, now time.Time, p Policy) (State, []Effect) {
	if s.Phase == PhaseDisabled {
		return s, nil
	}

	switch sig.Kind {
	case SignalStart:
		if s.Phase != PhaseIdle {
			return s, nil
		}
		return State{Phase: PhaseConnecting, Attempt: s.Attempt, Since: now},
			[]Effect{{Kind: EffectStartWatchdog}, {Kind: EffectDial}}

	case SignalStop:
		if s.Phase == PhaseIdle {
			return s, nil
		}
		return State{Phase: PhaseIdle, Attempt: s.Attempt, Since: now},
			[]Effect{{Kind: EffectStopWatchdog}, {Kind: EffectCancelReconnect}, {Kind: EffectClose}}

	case SignalOpened:
		if s.Phase != PhaseConnecting {
			return s, nil
		}
		return State{Phase: PhaseOpen, Attempt: 0, Since: now},
			[]Effect{{Kind: EffectNotifyOpen}}

	case SignalFailed:
		if s.Phase != PhaseConnecting && s.Phase != PhaseOpen {
			return s, nil
		}
		if s.Attempt >= p.MaxAttempts {
			return State{Phase: PhaseDisabled, Attempt: s.Attempt, Since: now},
				[]Effect{{Kind: EffectClose}, {Kind: EffectStopWatchdog}, {Kind: EffectCancelReconnect}}
		}
		return State{Phase: PhaseBackoff, Attempt: s.Attempt + 1, Since: now},
			[]Effect{{Kind: EffectClose}, {Kind: EffectScheduleReconnect, Delay: p.BackoffDelay(s.Attempt)}}

	case SignalRetry:
		if s.Phase != PhaseBackoff {
			return s, nil
		}
		return State{Phase: PhaseConnecting, Attempt: s.Attempt, Since: now},
			[]Effect{{Kind: EffectDial}}

	case SignalWatchdog:
		switch s.Phase {
		case PhaseConnecting:
			if now.Sub(s.Since) < p.ConnectCeiling {
				return s, nil
			}
		case PhaseOpen:
			if !sig.NativeClosed {
				return s, nil
			}
		default:
			return s, nil
		}
		return State{Phase: PhaseConnecting, Attempt: s.Attempt, Since: now},
			[]Effect{{Kind: EffectClose}, {Kind: EffectDial}}
	}
	return s, nil
}
