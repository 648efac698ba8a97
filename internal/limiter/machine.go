package limiter

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"sol-fee-audit/internal/rpc"
)

// State is the retry state of a single call.
type State int

const (
	// StateIdle: no failure outstanding, the last attempt succeeded (or none ran yet).
	StateIdle State = iota
	// StateWaiting: backing off exponentially after a rate-limited response.
	StateWaiting
	// StateRetrying: backing off linearly after a transport failure.
	StateRetrying
	// StateExhausted: terminal, the retry budget is spent or the error is not retryable.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Step is the machine's decision after an attempt.
type Step struct {
	State State
	// Delay to wait before the next attempt; zero for Idle and Exhausted.
	Delay time.Duration
	// Err is the attempt's error for Exhausted, nil otherwise.
	Err error
}

// Machine drives the retries of one call. It performs no I/O and never sleeps,
// so every transition is testable without a clock. Not safe for concurrent use.
type Machine struct {
	policy     Policy
	throttle   *backoff.ExponentialBackOff
	state      State
	attempts   int
	throttles  int
	transports int
	lastCause  error
}

// NewMachine returns a machine in StateIdle.
func NewMachine(p Policy) *Machine {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     p.ThrottleBaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.ThrottleMaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return &Machine{policy: p, throttle: eb}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Attempts returns the number of attempts recorded since the last success.
func (m *Machine) Attempts() int { return m.attempts }

// Throttled reports whether the most recent failure was a rate-limit response.
func (m *Machine) Throttled() bool { return errors.Is(m.lastCause, rpc.ErrRateLimited) }

// Next records the outcome of an attempt and returns what to do next.
func (m *Machine) Next(err error) Step {
	if m.state == StateExhausted {
		return Step{State: StateExhausted, Err: m.lastCause}
	}

	m.attempts++
	if err == nil {
		m.reset()
		return Step{State: StateIdle}
	}
	m.lastCause = err

	switch {
	case errors.Is(err, rpc.ErrRateLimited):
		m.throttles++
		if m.throttles > m.policy.MaxThrottleRetries {
			return m.exhaust(err)
		}
		m.state = StateWaiting
		return Step{State: StateWaiting, Delay: m.throttle.NextBackOff()}
	case errors.Is(err, rpc.ErrTransport):
		m.transports++
		if m.transports > m.policy.MaxTransportRetries {
			return m.exhaust(err)
		}
		m.state = StateRetrying
		return Step{State: StateRetrying, Delay: time.Duration(m.transports) * m.policy.TransportBaseDelay}
	default:
		return m.exhaust(err)
	}
}

func (m *Machine) exhaust(err error) Step {
	m.state = StateExhausted
	return Step{State: StateExhausted, Err: err}
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.attempts = 0
	m.throttles = 0
	m.transports = 0
	m.lastCause = nil
	m.throttle.Reset()
}
