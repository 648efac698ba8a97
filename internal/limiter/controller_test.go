package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"sol-fee-audit/internal/rpc"
)

func fastPolicy() Policy {
	return Policy{
		MinSpacing:          time.Millisecond,
		ThrottleBaseDelay:   time.Millisecond,
		ThrottleMaxDelay:    4 * time.Millisecond,
		MaxThrottleRetries:  3,
		TransportBaseDelay:  time.Millisecond,
		MaxTransportRetries: 2,
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	requests int
	retries  map[State]int
}

func (o *recordingObserver) ObserveRequest(string, error, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests++
}

func (o *recordingObserver) ObserveRetry(_ string, state State, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.retries == nil {
		o.retries = map[State]int{}
	}
	o.retries[state]++
}

func TestControllerRetriesTransientThrottle(t *testing.T) {
	obs := &recordingObserver{}
	ctrl := New(fastPolicy(), zerolog.Nop(), obs)

	var calls int
	err := ctrl.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return throttled()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	stats := ctrl.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 2, stats.Throttled)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.Equal(t, 3, obs.requests)
	assert.Equal(t, 2, obs.retries[StateWaiting])
}

func TestControllerThrottleExhaustion(t *testing.T) {
	ctrl := New(fastPolicy(), zerolog.Nop(), nil)

	var calls int
	err := ctrl.Do(context.Background(), "list_signatures", func(context.Context) error {
		calls++
		return throttled()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, rpc.ErrRateLimited)

	var ffe *FetchFailedError
	require.True(t, errors.As(err, &ffe))
	assert.True(t, ffe.Throttled)
	assert.Equal(t, "list_signatures", ffe.Op)
	assert.Equal(t, 4, ffe.Attempts)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, ctrl.Stats().ConsecutiveFailures)
}

func TestControllerTransportExhaustion(t *testing.T) {
	ctrl := New(fastPolicy(), zerolog.Nop(), nil)

	var calls int
	err := ctrl.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return transport()
	})
	var ffe *FetchFailedError
	require.True(t, errors.As(err, &ffe))
	assert.False(t, ffe.Throttled)
	assert.ErrorIs(t, err, rpc.ErrTransport)
	assert.Equal(t, 3, calls)
}

// An endpoint that throttles every Kth request: the run completes, and the
// request total stays within MaxAttempts per call.
func TestControllerThrottleEveryKth(t *testing.T) {
	const (
		k     = 3
		calls = 40
	)
	policy := fastPolicy()
	policy.MinSpacing = 0
	policy.MaxThrottleRetries = 10
	ctrl := New(policy, zerolog.Nop(), nil)

	var issued atomic.Int64
	endpoint := func(context.Context) error {
		if issued.Add(1)%k == 0 {
			return throttled()
		}
		return nil
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(5)
	for i := 0; i < calls; i++ {
		g.Go(func() error {
			return ctrl.Do(ctx, "op", endpoint)
		})
	}
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, issued.Load(), int64(policy.MaxAttempts()*calls))
	assert.Equal(t, int(issued.Load()), ctrl.Stats().Requests)
}

func TestControllerSpacesRequests(t *testing.T) {
	policy := fastPolicy()
	policy.MinSpacing = 20 * time.Millisecond
	ctrl := New(policy, zerolog.Nop(), nil)

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ctrl.Do(context.Background(), "op", func(context.Context) error {
				mu.Lock()
				stamps = append(stamps, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, stamps, 4)
	first, last := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	// Four requests at 20ms spacing span at least three gaps.
	assert.GreaterOrEqual(t, last.Sub(first), 55*time.Millisecond)
}

func TestControllerCancellationAbortsBackoff(t *testing.T) {
	policy := fastPolicy()
	policy.ThrottleBaseDelay = time.Hour
	policy.ThrottleMaxDelay = time.Hour
	ctrl := New(policy, zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := ctrl.Do(ctx, "op", func(context.Context) error { return throttled() })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.Less(t, time.Since(started), time.Second)
}

func TestControllerNonRetryableError(t *testing.T) {
	ctrl := New(fastPolicy(), zerolog.Nop(), nil)
	boom := errors.New("boom")

	var calls int
	err := ctrl.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 1, calls)
}

func TestControllerRejectedRequestIsNotRetried(t *testing.T) {
	ctrl := New(fastPolicy(), zerolog.Nop(), nil)
	rejected := fmt.Errorf("%w: getTransaction: invalid params (code -32602)", rpc.ErrRejected)

	var calls int
	err := ctrl.Do(context.Background(), OpGetTransaction, func(context.Context) error {
		calls++
		return rejected
	})

	var failed *FetchFailedError
	require.ErrorAs(t, err, &failed)
	assert.ErrorIs(t, err, rpc.ErrRejected)
	assert.Equal(t, 1, failed.Attempts)
	assert.False(t, failed.Throttled)
	assert.Equal(t, 1, calls)
}

type stubAPI struct {
	listErrs []error
	listed   int
}

func (s *stubAPI) ListSignatures(context.Context, string, string, int) (rpc.SignaturePage, error) {
	s.listed++
	if len(s.listErrs) > 0 {
		err := s.listErrs[0]
		s.listErrs = s.listErrs[1:]
		return rpc.SignaturePage{}, err
	}
	return rpc.SignaturePage{Refs: []rpc.TransactionRef{{Signature: "a"}}}, nil
}

func (s *stubAPI) GetTransaction(context.Context, string) (rpc.TxResult, error) {
	return rpc.TxResult{Kind: rpc.ResultNotFound}, nil
}

func TestGuardRetriesThroughController(t *testing.T) {
	api := &stubAPI{listErrs: []error{transport(), throttled()}}
	guarded := Guard(api, New(fastPolicy(), zerolog.Nop(), nil))

	page, err := guarded.ListSignatures(context.Background(), "w", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Refs, 1)
	assert.Equal(t, 3, api.listed)

	res, err := guarded.GetTransaction(context.Background(), "sig")
	require.NoError(t, err)
	assert.Equal(t, rpc.ResultNotFound, res.Kind)
}
