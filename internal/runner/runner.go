package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrShutdown is returned by AddWorkload once shutdown has been signaled.
var ErrShutdown = errors.New("runner is shutting down")

// Signaler requests a coordinated stop. SignalShutdown never blocks and may be
// called any number of times, including after the run has finished.
type Signaler interface {
	SignalShutdown() error
}

// SignalerFunc adapts a function to Signaler.
type SignalerFunc func() error

func (f SignalerFunc) SignalShutdown() error { return f() }

// Runner owns a set of workers and stops them together.
type Runner struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	clock  Clock
	logger *zap.SugaredLogger

	wg      sync.WaitGroup
	mu      sync.Mutex
	workers []*Worker
	errs    []error
}

// New builds an idle runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		parent: context.Background(),
		clock:  SystemClock,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(r.parent)
	return r
}

// AddWorkload validates cfg and starts a worker for it.
func (r *Runner) AddWorkload(cfg WorkloadConfig) (*Worker, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("workload %q: %w", cfg.Label, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return nil, ErrShutdown
	}

	w := newWorker(cfg, r.clock, r.logger)
	r.workers = append(r.workers, w)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := w.Run(r.ctx); err != nil {
			r.recordError(err)
		}
	}()
	return w, nil
}

// Workers returns the workers added so far.
func (r *Runner) Workers() []*Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Worker(nil), r.workers...)
}

// ShutdownSignaler returns a Signaler that stops every worker. Workers finish
// the submission they are in before stopping.
func (r *Runner) ShutdownSignaler() Signaler {
	return SignalerFunc(func() error {
		r.cancel()
		return nil
	})
}

// WaitForShutdown blocks until every worker has stopped and returns the
// errors that ended workers early.
func (r *Runner) WaitForShutdown() error {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

func (r *Runner) recordError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}
