package limiter

import (
	"fmt"
	"time"
)

// Policy holds the spacing and retry constants of the controller.
type Policy struct {
	// MinSpacing is the minimum gap between two requests, across all callers.
	MinSpacing time.Duration
	// ThrottleBaseDelay is the first delay after a rate-limited response; it
	// doubles on each consecutive throttle up to ThrottleMaxDelay.
	ThrottleBaseDelay  time.Duration
	ThrottleMaxDelay   time.Duration
	MaxThrottleRetries int
	// TransportBaseDelay grows linearly: n-th transport retry waits n*TransportBaseDelay.
	TransportBaseDelay  time.Duration
	MaxTransportRetries int
}

// Default constants, sized for the public mainnet-beta endpoint.
const (
	DefaultMinSpacing          = 100 * time.Millisecond
	DefaultThrottleBaseDelay   = 500 * time.Millisecond
	DefaultThrottleMaxDelay    = 8 * time.Second
	DefaultMaxThrottleRetries  = 5
	DefaultTransportBaseDelay  = 250 * time.Millisecond
	DefaultMaxTransportRetries = 3
)

// DefaultPolicy returns the documented default constants.
func DefaultPolicy() Policy {
	return Policy{
		MinSpacing:          DefaultMinSpacing,
		ThrottleBaseDelay:   DefaultThrottleBaseDelay,
		ThrottleMaxDelay:    DefaultThrottleMaxDelay,
		MaxThrottleRetries:  DefaultMaxThrottleRetries,
		TransportBaseDelay:  DefaultTransportBaseDelay,
		MaxTransportRetries: DefaultMaxTransportRetries,
	}
}

// MaxAttempts is the hard cap of requests a single call may issue.
func (p Policy) MaxAttempts() int {
	return 1 + p.MaxThrottleRetries + p.MaxTransportRetries
}

// Validate rejects policies that could retry without bound or never wait.
func (p Policy) Validate() error {
	if p.MinSpacing < 0 {
		return fmt.Errorf("min spacing cannot be negative")
	}
	if p.ThrottleBaseDelay <= 0 {
		return fmt.Errorf("throttle base delay must be greater than zero")
	}
	if p.ThrottleMaxDelay < p.ThrottleBaseDelay {
		return fmt.Errorf("throttle max delay %s is below base delay %s", p.ThrottleMaxDelay, p.ThrottleBaseDelay)
	}
	if p.MaxThrottleRetries < 0 {
		return fmt.Errorf("max throttle retries cannot be negative")
	}
	if p.TransportBaseDelay <= 0 {
		return fmt.Errorf("transport base delay must be greater than zero")
	}
	if p.MaxTransportRetries < 0 {
		return fmt.Errorf("max transport retries cannot be negative")
	}
	return nil
}
