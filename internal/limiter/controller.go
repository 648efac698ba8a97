package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Observer receives request and retry events, typically for metrics.
type Observer interface {
	ObserveRequest(op string, err error, started time.Time)
	ObserveRetry(op string, state State, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, error, time.Time) {}
func (nopObserver) ObserveRetry(string, State, time.Duration) {}

// Stats is a snapshot of controller counters.
type Stats struct {
	Requests            int
	Throttled           int
	TransportErrors     int
	Exhausted           int
	ConsecutiveFailures int
	LastRequest         time.Time
}

// Controller is the single rate limiter shared by every caller of the pipeline.
// Request timing is serialized through one spacing gate; a throttle seen by any
// caller pauses all callers until its backoff elapses.
type Controller struct {
	policy   Policy
	spacing  *rate.Limiter
	observer Observer
	logger   zerolog.Logger

	mu       sync.Mutex
	resumeAt time.Time
	stats    Stats
}

// New constructs a controller. A nil observer discards events.
func New(policy Policy, logger zerolog.Logger, observer Observer) *Controller {
	limit := rate.Inf
	if policy.MinSpacing > 0 {
		limit = rate.Every(policy.MinSpacing)
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Controller{
		policy:   policy,
		spacing:  rate.NewLimiter(limit, 1),
		observer: observer,
		logger:   logger.With().Str("component", "limiter").Logger(),
	}
}

// Do runs fn under the spacing policy, retrying throttles and transport failures
// until fn succeeds or the budget runs out. Exhaustion returns *FetchFailedError;
// cancellation returns the context error.
func (c *Controller) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	m := NewMachine(c.policy)
	for {
		if err := c.acquire(ctx); err != nil {
			return err
		}

		started := time.Now()
		err := fn(ctx)
		c.observer.ObserveRequest(op, err, started)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		step := m.Next(err)
		c.record(step)

		switch step.State {
		case StateIdle:
			return nil
		case StateExhausted:
			c.logger.Warn().
				Str("op", op).
				Int("attempts", m.Attempts()).
				Err(step.Err).
				Msg("retry budget exhausted")
			return &FetchFailedError{
				Op:        op,
				Attempts:  m.Attempts(),
				Throttled: m.Throttled(),
				Cause:     step.Err,
			}
		case StateWaiting:
			c.observer.ObserveRetry(op, step.State, step.Delay)
			c.logger.Debug().Str("op", op).Dur("delay", step.Delay).Int("attempt", m.Attempts()).Msg("rate limited, backing off")
			c.pause(step.Delay)
		case StateRetrying:
			c.observer.ObserveRetry(op, step.State, step.Delay)
			c.logger.Debug().Str("op", op).Dur("delay", step.Delay).Int("attempt", m.Attempts()).Err(err).Msg("transport failure, retrying")
			if err := sleepWithContext(ctx, step.Delay); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%s: unexpected limiter state %s", op, step.State)
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// acquire blocks until the global pause has elapsed and the spacing gate admits
// one request.
func (c *Controller) acquire(ctx context.Context) error {
	for {
		c.mu.Lock()
		wait := time.Until(c.resumeAt)
		c.mu.Unlock()
		if wait <= 0 {
			break
		}
		if err := sleepWithContext(ctx, wait); err != nil {
			return err
		}
	}

	if err := c.spacing.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("spacing gate: %w", err)
	}

	c.mu.Lock()
	c.stats.Requests++
	c.stats.LastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Controller) pause(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if until := time.Now().Add(d); until.After(c.resumeAt) {
		c.resumeAt = until
	}
}

func (c *Controller) record(step Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch step.State {
	case StateIdle:
		c.stats.ConsecutiveFailures = 0
		return
	case StateWaiting:
		c.stats.Throttled++
	case StateRetrying:
		c.stats.TransportErrors++
	case StateExhausted:
		c.stats.Exhausted++
	}
	c.stats.ConsecutiveFailures++
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
