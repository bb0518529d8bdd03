package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splintercommunity/transact/internal/dispatch"
	"github.com/splintercommunity/transact/internal/metrics"
	"github.com/splintercommunity/transact/internal/output"
	"github.com/splintercommunity/transact/internal/ratespec"
	"github.com/splintercommunity/transact/internal/workload"
)

// ErrCounterMismatch is returned when a plan has a different number of
// counters and targets.
var ErrCounterMismatch = errors.New("number of request counters does not match number of targets")

// Plan is everything Start needs to launch a run.
type Plan struct {
	// RunID names the run in logs and reports. A random UUID when empty.
	RunID string
	Kind  workload.Kind
	// Targets holds one failover group of addresses per worker.
	Targets  [][]string
	Rate     ratespec.Spec
	Duration time.Duration
	Seed     uint64
	// Workload carries the signer and kind specific settings. Seed is
	// overwritten with Plan.Seed.
	Workload workload.Options
	Counters []*metrics.RequestCounter
	// NewSubmitter builds the dispatch sink for one target group.
	NewSubmitter func(group []string) (dispatch.Submitter, error)
	// Rand samples ranged rates. Seeded from Seed when nil.
	Rand      *rand.Rand
	LogErrors bool

	// Update is the progress report interval; Output receives the reports.
	Update          time.Duration
	Output          io.Writer
	ReporterOptions []output.ReporterOption

	// FinalReportGrace bounds how long the final report waits for workers to
	// finish their in-flight submissions after a shutdown signal. 30s when zero.
	FinalReportGrace time.Duration
}

const defaultFinalReportGrace = 30 * time.Second

// NewCounters creates n counters labelled for kind.
func NewCounters(kind workload.Kind, n int) ([]*metrics.RequestCounter, error) {
	label, err := workload.Label(kind)
	if err != nil {
		return nil, err
	}
	counters := make([]*metrics.RequestCounter, n)
	for i := range counters {
		counters[i] = metrics.NewRequestCounter(workload.CounterID(label, i))
	}
	return counters, nil
}

// Run is a started set of workers plus the progress reporter.
type Run struct {
	ID       string
	Started  time.Time
	Runner   *Runner
	Reporter *output.Reporter
	Counters []*metrics.RequestCounter

	logger      *zap.SugaredLogger
	startErrs   []error
	workersDone chan struct{}
	grace       time.Duration
	graceOnce   sync.Once
}

// Start builds one worker per target and the reporter over all counters, and
// starts them. Configuration problems are returned before anything starts.
// A worker that cannot be built is logged and skipped; Start fails only when
// no worker could be built.
func Start(ctx context.Context, plan Plan, opts ...Option) (*Run, error) {
	if len(plan.Targets) == 0 {
		return nil, errors.New("at least one target is required")
	}
	if len(plan.Counters) != len(plan.Targets) {
		return nil, fmt.Errorf("%w: %d counters for %d targets", ErrCounterMismatch, len(plan.Counters), len(plan.Targets))
	}
	if _, err := workload.Label(plan.Kind); err != nil {
		return nil, err
	}
	if plan.NewSubmitter == nil {
		return nil, errors.New("submitter factory is required")
	}
	if !(plan.Rate.Min.Numeric > 0) || !(plan.Rate.Max.Numeric > 0) {
		return nil, fmt.Errorf("invalid target rate %q", plan.Rate)
	}

	rng := plan.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(plan.Seed)))
	}

	runID := plan.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := New(append([]Option{WithContext(ctx)}, opts...)...)
	run := &Run{
		ID:       runID,
		Started:  time.Now(),
		Runner:   r,
		Counters: plan.Counters,
		logger:   r.logger,

		workersDone: make(chan struct{}),
		grace:       plan.FinalReportGrace,
	}
	if run.grace <= 0 {
		run.grace = defaultFinalReportGrace
	}

	wopts := plan.Workload
	wopts.Seed = plan.Seed
	for i, group := range plan.Targets {
		counter := plan.Counters[i]
		rate := plan.Rate.Sample(rng)
		if err := run.addWorker(plan, wopts, group, counter, rate); err != nil {
			werr := &WorkerError{Label: counter.ID(), Err: err}
			run.logger.Errorw("Unable to start workload", "workload", counter.ID(), "error", err)
			run.startErrs = append(run.startErrs, werr)
			r.recordError(werr)
		}
	}
	if len(run.startErrs) == len(plan.Targets) {
		r.cancel()
		return nil, fmt.Errorf("no workload could be started: %w", errors.Join(run.startErrs...))
	}

	// The reporter has no duration of its own: it stops once the last worker
	// has, so its final report covers every recorded attempt.
	ropts := append([]output.ReporterOption{output.WithLogger(r.logger)}, plan.ReporterOptions...)
	run.Reporter = output.NewReporter(plan.Counters, plan.Update, 0, plan.Output, ropts...)
	run.Reporter.Start()
	go func() {
		r.wg.Wait()
		close(run.workersDone)
		run.stopReporter()
	}()
	return run, nil
}

func (run *Run) addWorker(plan Plan, wopts workload.Options, group []string, counter *metrics.RequestCounter, rate ratespec.Time) error {
	gen, err := workload.New(plan.Kind, wopts)
	if err != nil {
		return fmt.Errorf("building generator: %w", err)
	}
	sub, err := plan.NewSubmitter(group)
	if err != nil {
		return fmt.Errorf("building submitter: %w", err)
	}
	_, err = run.Runner.AddWorkload(WorkloadConfig{
		Label:     counter.ID(),
		Target:    strings.Join(group, ";"),
		Generator: gen,
		Submitter: sub,
		Counter:   counter,
		Rate:      rate,
		Duration:  plan.Duration,
		LogErrors: plan.LogErrors,
	})
	if err != nil {
		_ = sub.Close()
	}
	return err
}

// StartErrors returns the workers that could not be built.
func (run *Run) StartErrors() []error {
	return append([]error(nil), run.startErrs...)
}

// ShutdownSignaler stops the workers and the reporter. The reporter's final
// report is written once the workers have recorded their last outcome, or after
// the final report grace period if they have not, whether or not the workers
// could be signaled.
func (run *Run) ShutdownSignaler() Signaler {
	workers := run.Runner.ShutdownSignaler()
	return SignalerFunc(func() error {
		err := workers.SignalShutdown()
		if err != nil {
			run.logger.Errorw("Unable to signal workers to stop", "error", err)
		}
		run.graceOnce.Do(func() {
			go func() {
				select {
				case <-run.workersDone:
				case <-time.After(run.grace):
					run.logger.Warnw("Workers still running, writing final report", "grace", run.grace)
					run.stopReporter()
				}
			}()
		})
		return err
	})
}

func (run *Run) stopReporter() {
	if err := run.Reporter.SignalShutdown(); err != nil {
		run.logger.Errorw("Unable to signal reporter to stop", "error", err)
	}
}

// WaitForShutdown blocks until the workers and the reporter have stopped.
// Each is waited on independently so one never holds up the other's result.
func (run *Run) WaitForShutdown() error {
	var (
		wg                   sync.WaitGroup
		workerErr, reportErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if workerErr = run.Runner.WaitForShutdown(); workerErr != nil {
			run.logger.Errorw("Workers stopped with errors", "error", workerErr)
		}
	}()
	go func() {
		defer wg.Done()
		if reportErr = run.Reporter.WaitForShutdown(); reportErr != nil {
			run.logger.Errorw("Reporter stopped with errors", "error", reportErr)
		}
	}()
	wg.Wait()
	return errors.Join(workerErr, reportErr)
}

// Summary snapshots the counters for the final report.
func (run *Run) Summary(kind workload.Kind, seed uint64, rate ratespec.Spec) output.Summary {
	s := output.NewSummary(run.ID, string(kind), seed, rate.String(), time.Since(run.Started), run.Counters)
	for _, err := range run.startErrs {
		s.Errors = append(s.Errors, err.Error())
	}
	return s
}
