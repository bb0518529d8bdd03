package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// RetryPolicy configures retry behavior.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	ShouldRetry func(error) bool                           // if nil, all errors are retried
	DelayFunc   func(attempt int, err error) time.Duration // attempt is 1-based
}

// NewRetryPolicy retries connection failures and 429/5xx answers with
// exponential backoff from base, capped at max, plus up to 50% jitter.
func NewRetryPolicy(retries int, base, max time.Duration, rnd *rand.Rand) RetryPolicy {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	source := &jitterSource{rnd: rnd}

	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: Retryable,
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := base << uint(attempt-1)
			if backoff > max || backoff <= 0 {
				backoff = max
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

// Retryable reports whether err is worth another attempt of the same batch.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var serr *SubmitError
	if errors.As(err, &serr) {
		return serr.StatusCode == http.StatusTooManyRequests || serr.StatusCode >= 500
	}
	var cerr *ConnectError
	return errors.As(err, &cerr)
}

type stopKey struct{}

// WithStop attaches a stop signal to ctx. Once stop is closed Do makes no
// further attempts and skips any remaining backoff. An attempt already running
// is not interrupted, so callers that must let the request finish pass a ctx
// that is never cancelled together with the stop channel.
func WithStop(ctx context.Context, stop <-chan struct{}) context.Context {
	return context.WithValue(ctx, stopKey{}, stop)
}

func stopSignal(ctx context.Context) <-chan struct{} {
	stop, _ := ctx.Value(stopKey{}).(<-chan struct{})
	return stop
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Do runs fn until it succeeds, the policy gives up, or ctx ends. When ctx
// carries a stop signal (see WithStop) and it fires, Do returns the last
// attempt's error without retrying.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	stop := stopSignal(ctx)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 1 && stopped(stop) {
			return lastErr
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
			return lastErr
		}
		var delay time.Duration
		if p.DelayFunc != nil {
			delay = p.DelayFunc(attempt, lastErr)
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			case <-stop:
				return lastErr
			}
		}
	}
	return lastErr
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
