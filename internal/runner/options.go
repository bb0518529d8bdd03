package runner

import (
	"context"

	"go.uber.org/zap"
)

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock, mainly for simulated time in tests.
func WithClock(clock Clock) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger workers report lifecycle events to.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithContext derives the runner's stop signal from parent, so cancelling
// parent stops every worker as if shutdown had been signaled.
func WithContext(parent context.Context) Option {
	return func(r *Runner) {
		if parent != nil {
			r.parent = parent
		}
	}
}
