package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splintercommunity/transact/internal/metrics"
	"github.com/splintercommunity/transact/internal/ratespec"
	"github.com/splintercommunity/transact/internal/runner"
	"github.com/splintercommunity/transact/internal/workload"
)

// fakeClock advances simulated time by exactly the requested wait. Once the
// time would reach stopAt it calls stop instead and never fires.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	stopAt time.Time
	stop   func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.now.Add(d)
	if !c.stopAt.IsZero() && !next.Before(c.stopAt) {
		c.now = c.stopAt
		if c.stop != nil {
			c.stop()
		}
		return make(chan time.Time)
	}
	c.now = next
	ch := make(chan time.Time, 1)
	ch <- next
	return ch
}

type fakeGenerator struct {
	calls   atomic.Int64
	failAt  int64
	failErr error
}

func (g *fakeGenerator) NextBatch() (*workload.Batch, error) {
	n := g.calls.Add(1)
	if g.failAt > 0 && n >= g.failAt {
		return nil, g.failErr
	}
	return &workload.Batch{HeaderSignature: "batch"}, nil
}

type fakeSubmitter struct {
	calls  atomic.Int64
	closed atomic.Bool
	err    error
	// block, when set, holds each submission until it is closed.
	block   chan struct{}
	entered chan struct{}
	ctxErr  atomic.Value
}

func (s *fakeSubmitter) Submit(ctx context.Context, _ *workload.Batch) error {
	s.calls.Add(1)
	if s.block != nil {
		if s.entered != nil {
			s.entered <- struct{}{}
		}
		<-s.block
		if err := ctx.Err(); err != nil {
			s.ctxErr.Store(err)
		}
	}
	return s.err
}

func (s *fakeSubmitter) Close() error {
	s.closed.Store(true)
	return nil
}

func mustRate(t *testing.T, s string) ratespec.Time {
	t.Helper()
	spec, err := ratespec.Parse(s)
	require.NoError(t, err)
	return spec.Min
}

func waitWithTimeout(t *testing.T, fn func() error, timeout time.Duration) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatalf("did not return within %s", timeout)
		return nil
	}
}

func TestWorkerFixedRateOverSimulatedTime(t *testing.T) {
	clock := newFakeClock()
	r := runner.New(runner.WithClock(clock))
	clock.stopAt = clock.now.Add(3 * time.Second)
	clock.stop = func() { _ = r.ShutdownSignaler().SignalShutdown() }

	counter := metrics.NewRequestCounter("Command-Workload-0")
	sub := &fakeSubmitter{}
	w, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: sub,
		Counter:   counter,
		Rate:      mustRate(t, "2/s"),
	})
	require.NoError(t, err)

	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 5*time.Second))
	assert.Equal(t, int64(6), counter.Attempted())
	assert.Equal(t, int64(6), counter.Succeeded())
	assert.Equal(t, "Command-Workload-0", w.Label())
	assert.Equal(t, runner.StateStopped, w.State())
	assert.True(t, sub.closed.Load())
}

func TestWorkerStopsAtDuration(t *testing.T) {
	tests := []struct {
		name     string
		rate     string
		duration time.Duration
		want     int64
	}{
		{"per second", "2/s", 3 * time.Second, 6},
		{"per minute", "60/m", 5 * time.Second, 5},
		{"span between submissions", "2s", 5 * time.Second, 3},
		{"duration shorter than interval", "1/m", 10 * time.Second, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r := runner.New(runner.WithClock(clock))
			counter := metrics.NewRequestCounter("w")
			_, err := r.AddWorkload(runner.WorkloadConfig{
				Generator: &fakeGenerator{},
				Submitter: &fakeSubmitter{},
				Counter:   counter,
				Rate:      mustRate(t, tt.rate),
				Duration:  tt.duration,
			})
			require.NoError(t, err)

			require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 5*time.Second))
			assert.Equal(t, tt.want, counter.Attempted())
			assert.Equal(t, tt.duration, clock.now.Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
				"worker idles until the duration has elapsed")
		})
	}
}

func TestSubmissionFailuresAreCountedAndTolerated(t *testing.T) {
	clock := newFakeClock()
	r := runner.New(runner.WithClock(clock))
	counter := metrics.NewRequestCounter("w")
	sub := &fakeSubmitter{err: errors.New("connection refused")}
	_, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: sub,
		Counter:   counter,
		Rate:      mustRate(t, "5/s"),
		Duration:  2 * time.Second,
		LogErrors: true,
	})
	require.NoError(t, err)

	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 5*time.Second))
	assert.Equal(t, int64(10), counter.Attempted())
	assert.Equal(t, int64(10), counter.Failed())
	assert.Zero(t, counter.Succeeded())
	assert.Equal(t, int64(10), counter.Snapshot().Errors["Submission error"])
}

func TestShutdownInterruptsWait(t *testing.T) {
	r := runner.New()
	counter := metrics.NewRequestCounter("w")
	_, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: &fakeSubmitter{},
		Counter:   counter,
		Rate:      mustRate(t, "1/m"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return counter.Attempted() == 1 }, time.Second, time.Millisecond)
	start := time.Now()
	require.NoError(t, r.ShutdownSignaler().SignalShutdown())
	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 2*time.Second))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), counter.Attempted(), "no submissions after shutdown")
}

// signalingClock requests shutdown from inside After and then fires at once,
// so the pacing timer and the stop are ready together.
type signalingClock struct {
	stop func()
}

func (signalingClock) Now() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func (c signalingClock) After(time.Duration) <-chan time.Time {
	c.stop()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestNoSubmissionWhenStopAndTimerAreReadyTogether(t *testing.T) {
	for i := 0; i < 50; i++ {
		var r *runner.Runner
		r = runner.New(runner.WithClock(signalingClock{stop: func() { _ = r.ShutdownSignaler().SignalShutdown() }}))
		counter := metrics.NewRequestCounter("w")
		_, err := r.AddWorkload(runner.WorkloadConfig{
			Generator: &fakeGenerator{},
			Submitter: &fakeSubmitter{},
			Counter:   counter,
			Rate:      mustRate(t, "1/s"),
		})
		require.NoError(t, err)

		require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 2*time.Second))
		require.Equal(t, int64(1), counter.Attempted(), "run %d submitted after shutdown", i)
	}
}

func TestInFlightSubmissionCompletes(t *testing.T) {
	r := runner.New()
	counter := metrics.NewRequestCounter("w")
	sub := &fakeSubmitter{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	w, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: sub,
		Counter:   counter,
		Rate:      mustRate(t, "100/s"),
	})
	require.NoError(t, err)

	<-sub.entered
	require.NoError(t, r.ShutdownSignaler().SignalShutdown())
	assert.Equal(t, runner.StateRunning, w.State())
	close(sub.block)

	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 2*time.Second))
	assert.Equal(t, int64(1), counter.Attempted())
	assert.Equal(t, int64(1), counter.Succeeded(), "in-flight outcome is recorded")
	assert.Nil(t, sub.ctxErr.Load(), "in-flight submission is not cancelled")
	assert.Equal(t, runner.StateStopped, w.State())
}

func TestGeneratorFailureStopsOnlyThatWorker(t *testing.T) {
	r := runner.New()
	boom := errors.New("signer unavailable")

	failing := metrics.NewRequestCounter("Command-Workload-0")
	failingSub := &fakeSubmitter{}
	_, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{failAt: 3, failErr: boom},
		Submitter: failingSub,
		Counter:   failing,
		Rate:      mustRate(t, "200/s"),
	})
	require.NoError(t, err)

	healthy := metrics.NewRequestCounter("Command-Workload-1")
	healthySub := &fakeSubmitter{}
	_, err = r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: healthySub,
		Counter:   healthy,
		Rate:      mustRate(t, "200/s"),
	})
	require.NoError(t, err)

	require.Eventually(t, failingSub.closed.Load, 2*time.Second, time.Millisecond)
	before := healthy.Attempted()
	require.Eventually(t, func() bool { return healthy.Attempted() > before }, 2*time.Second, time.Millisecond,
		"the other worker keeps submitting")
	assert.False(t, healthySub.closed.Load())

	require.NoError(t, r.ShutdownSignaler().SignalShutdown())
	err = waitWithTimeout(t, r.WaitForShutdown, 2*time.Second)
	var werr *runner.WorkerError
	require.True(t, errors.As(err, &werr))
	assert.Equal(t, "Command-Workload-0", werr.Label)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), failing.Attempted())
}

func TestShutdownIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	r := runner.New(runner.WithClock(clock))
	_, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: &fakeSubmitter{},
		Counter:   metrics.NewRequestCounter("w"),
		Rate:      mustRate(t, "1/s"),
		Duration:  time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 5*time.Second))

	signaler := r.ShutdownSignaler()
	assert.NoError(t, signaler.SignalShutdown())
	assert.NoError(t, signaler.SignalShutdown())
	assert.NoError(t, waitWithTimeout(t, r.WaitForShutdown, time.Second))
}

func TestAddWorkloadValidation(t *testing.T) {
	r := runner.New()
	base := runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: &fakeSubmitter{},
		Counter:   metrics.NewRequestCounter("w"),
		Rate:      ratespec.PerSecond(1),
	}

	noGen := base
	noGen.Generator = nil
	_, err := r.AddWorkload(noGen)
	assert.ErrorContains(t, err, "generator")

	noRate := base
	noRate.Rate = ratespec.Time{}
	_, err = r.AddWorkload(noRate)
	assert.ErrorContains(t, err, "rate")

	tooFast := base
	tooFast.Rate = ratespec.PerSecond(1e12)
	_, err = r.AddWorkload(tooFast)
	assert.ErrorContains(t, err, "too high to pace")

	require.NoError(t, r.ShutdownSignaler().SignalShutdown())
	_, err = r.AddWorkload(base)
	assert.ErrorIs(t, err, runner.ErrShutdown)
	assert.NoError(t, r.WaitForShutdown())
}

func TestParentContextStopsRunner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := runner.New(runner.WithContext(ctx))
	counter := metrics.NewRequestCounter("w")
	_, err := r.AddWorkload(runner.WorkloadConfig{
		Generator: &fakeGenerator{},
		Submitter: &fakeSubmitter{},
		Counter:   counter,
		Rate:      mustRate(t, "1/m"),
	})
	require.NoError(t, err)

	cancel()
	require.NoError(t, waitWithTimeout(t, r.WaitForShutdown, 2*time.Second))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "starting", runner.StateStarting.String())
	assert.Equal(t, "stopped", runner.StateStopped.String())
	assert.Equal(t, "unknown", runner.State(42).String())
}
