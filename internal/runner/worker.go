package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/splintercommunity/transact/internal/dispatch"
	"github.com/splintercommunity/transact/internal/metrics"
	"github.com/splintercommunity/transact/internal/ratespec"
	"github.com/splintercommunity/transact/internal/workload"
)

// State is a worker's lifecycle position.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerError is a failure that ended one worker. Other workers keep running.
type WorkerError struct {
	Label string
	Err   error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// WorkloadConfig binds everything one worker needs.
type WorkloadConfig struct {
	// Label names the worker in logs, usually the counter id.
	Label     string
	Target    string
	Generator workload.Generator
	Submitter dispatch.Submitter
	Counter   *metrics.RequestCounter
	// Rate is the concrete rate for the whole run, already sampled from the
	// configured range.
	Rate ratespec.Time
	// Duration ends the worker after this long. Zero runs until stopped.
	Duration  time.Duration
	LogErrors bool
}

func (c WorkloadConfig) validate() error {
	switch {
	case c.Generator == nil:
		return errors.New("generator is required")
	case c.Submitter == nil:
		return errors.New("submitter is required")
	case c.Counter == nil:
		return errors.New("counter is required")
	case !(c.Rate.Numeric > 0):
		return errors.New("rate must be positive")
	case c.Rate.Interval() <= 0:
		return fmt.Errorf("rate %s is too high to pace", c.Rate)
	case c.Duration < 0:
		return errors.New("duration must not be negative")
	}
	return nil
}

// Worker submits batches from one generator to one target at a fixed pace.
// Submissions are strictly sequential.
type Worker struct {
	cfg    WorkloadConfig
	clock  Clock
	logger *zap.SugaredLogger
	state  atomic.Int32
}

func newWorker(cfg WorkloadConfig, clock Clock, logger *zap.SugaredLogger) *Worker {
	if cfg.Label == "" {
		cfg.Label = cfg.Counter.ID()
	}
	return &Worker{cfg: cfg, clock: clock, logger: logger.With("worker", cfg.Label)}
}

// Label returns the worker's name.
func (w *Worker) Label() string { return w.cfg.Label }

// Rate returns the pace the worker submits at.
func (w *Worker) Rate() ratespec.Time { return w.cfg.Rate }

// State reports where the worker is in its lifecycle.
func (w *Worker) State() State { return State(w.state.Load()) }

// Run drives the submission loop until ctx is cancelled, the configured
// duration elapses or the generator fails. A cancelled ctx never interrupts a
// submission already in flight; its outcome is recorded before Run returns.
// The submitter is closed on return.
func (w *Worker) Run(ctx context.Context) error {
	defer w.stop()
	w.state.Store(int32(StateRunning))
	w.logger.Info(startMessage(w.cfg))

	limiter := rate.NewLimiter(rate.Every(w.cfg.Rate.Interval()), 1)
	var deadline time.Time
	if w.cfg.Duration > 0 {
		deadline = w.clock.Now().Add(w.cfg.Duration)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		now := w.clock.Now()
		if !deadline.IsZero() && !now.Before(deadline) {
			return nil
		}

		delay := limiter.ReserveN(now, 1).DelayFrom(now)
		if !deadline.IsZero() && !now.Add(delay).Before(deadline) {
			// The next slot falls after the deadline: idle until it passes.
			w.wait(ctx, deadline.Sub(now))
			continue
		}
		if delay > 0 && !w.wait(ctx, delay) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := w.submitNext(ctx); err != nil {
			w.logger.Errorw("Worker stopped", "error", err)
			return &WorkerError{Label: w.cfg.Label, Err: err}
		}
	}
}

// wait blocks for d or until ctx is done. It reports whether the full wait
// elapsed with ctx still live; a stop that lands together with the timer wins.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.clock.After(d):
		return ctx.Err() == nil
	}
}

func (w *Worker) submitNext(ctx context.Context) error {
	batch, err := w.cfg.Generator.NextBatch()
	if err != nil {
		return fmt.Errorf("generating batch: %w", err)
	}

	w.cfg.Counter.RecordAttempt()
	begin := w.clock.Now()
	// The request itself runs to completion; a stop only cuts retries short.
	err = w.cfg.Submitter.Submit(dispatch.WithStop(context.WithoutCancel(ctx), ctx.Done()), batch)
	w.cfg.Counter.RecordResult(w.clock.Now().Sub(begin), err)

	if err != nil {
		if w.cfg.LogErrors {
			w.logger.Warnw("Failed to submit batch", "target", w.cfg.Target, "batch", batch.ID(), "error", err)
		} else {
			w.logger.Debugw("Failed to submit batch", "target", w.cfg.Target, "error", err)
		}
	}
	return nil
}

func (w *Worker) stop() {
	w.state.Store(int32(StateStopping))
	if err := w.cfg.Submitter.Close(); err != nil {
		w.logger.Warnw("Closing submitter", "error", err)
	}
	w.state.Store(int32(StateStopped))
	w.logger.Debugw("Worker stopped",
		"attempted", w.cfg.Counter.Attempted(),
		"succeeded", w.cfg.Counter.Succeeded(),
		"failed", w.cfg.Counter.Failed())
}

func startMessage(cfg WorkloadConfig) string {
	duration := "indefinite"
	if cfg.Duration > 0 {
		duration = cfg.Duration.String()
	}
	rateText := cfg.Rate.String()
	if cfg.Rate.Numeric != float64(int64(cfg.Rate.Numeric)) {
		rateText = strconv.FormatFloat(cfg.Rate.PerSecond(), 'f', 2, 64) + "/s"
	}
	return fmt.Sprintf("Starting %s with target rate %s and duration %s", cfg.Label, rateText, duration)
}
