// Package output prints periodic throughput reports while a run is in
// progress and the summary once it has stopped.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/splintercommunity/transact/internal/metrics"
)

// DefaultInterval is the report period when none is configured.
const DefaultInterval = 30 * time.Second

// ErrNotStarted is returned by WaitForShutdown on a reporter that never ran.
var ErrNotStarted = errors.New("reporter was not started")

// Line is one target's counters at report time. Rate is attempts per second
// since the previous report.
type Line struct {
	Label     string
	Attempted int64
	Succeeded int64
	Failed    int64
	Rate      float64
}

// Reporter writes one line per counter plus a total every interval. It stops
// when the run duration elapses or on SignalShutdown, and always writes a final
// report before stopping.
type Reporter struct {
	counters []*metrics.RequestCounter
	interval time.Duration
	duration time.Duration
	writer   io.Writer
	logger   *zap.SugaredLogger

	label  *color.Color
	failed *color.Color
	total  *color.Color

	active    int32
	done      chan struct{}
	finished  chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	prev     []int64
	prevTime time.Time
	last     []Line
	reports  int
}

// ReporterOption customizes a Reporter.
type ReporterOption func(*Reporter)

// WithColor forces colored output on or off. By default lines are colored only
// when the writer is a terminal.
func WithColor(enabled bool) ReporterOption {
	return func(r *Reporter) { r.setColor(enabled) }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *zap.SugaredLogger) ReporterOption {
	return func(r *Reporter) { r.logger = logger }
}

// NewReporter builds a reporter over counters. A zero duration reports until
// shutdown is signaled.
func NewReporter(counters []*metrics.RequestCounter, interval, duration time.Duration, writer io.Writer, opts ...ReporterOption) *Reporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	r := &Reporter{
		counters: counters,
		interval: interval,
		duration: duration,
		writer:   writer,
		logger:   zap.NewNop().Sugar(),
		label:    color.New(color.FgCyan),
		failed:   color.New(color.FgRed),
		total:    color.New(color.Bold),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		prev:     make([]int64, len(counters)),
	}
	r.setColor(isTerminal(writer))
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *Reporter) setColor(enabled bool) {
	for _, c := range []*color.Color{r.label, r.failed, r.total} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Start begins reporting in a background goroutine.
func (r *Reporter) Start() {
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return
	}
	r.mu.Lock()
	r.prevTime = time.Now()
	r.mu.Unlock()
	go r.run()
}

// SignalShutdown asks the reporter to write its final report and stop. It does
// not block and may be called any number of times.
func (r *Reporter) SignalShutdown() error {
	r.closeOnce.Do(func() { close(r.done) })
	return nil
}

// WaitForShutdown blocks until the final report has been written.
func (r *Reporter) WaitForShutdown() error {
	if atomic.LoadInt32(&r.active) == 0 {
		return ErrNotStarted
	}
	<-r.finished
	return nil
}

func (r *Reporter) run() {
	defer close(r.finished)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var expired <-chan time.Time
	if r.duration > 0 {
		timer := time.NewTimer(r.duration)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-expired:
			r.logger.Debugw("reporter duration elapsed")
			r.report()
			return
		case <-r.done:
			r.report()
			return
		}
	}
}

// report snapshots every counter and writes the lines.
func (r *Reporter) report() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.prevTime).Seconds()
	lines := make([]Line, 0, len(r.counters)+1)
	var sum Line
	sum.Label = "Total"
	for i, c := range r.counters {
		s := c.Snapshot()
		line := Line{Label: s.ID, Attempted: s.Attempted, Succeeded: s.Succeeded, Failed: s.Failed}
		if elapsed > 0 {
			line.Rate = float64(s.Attempted-r.prev[i]) / elapsed
		}
		r.prev[i] = s.Attempted
		lines = append(lines, line)

		sum.Attempted += line.Attempted
		sum.Succeeded += line.Succeeded
		sum.Failed += line.Failed
		sum.Rate += line.Rate
	}
	r.prevTime = now
	r.last = lines
	r.reports++

	for _, line := range lines {
		r.writeLine(r.label, line)
	}
	r.writeLine(r.total, sum)
}

func (r *Reporter) writeLine(labelColor *color.Color, line Line) {
	failed := fmt.Sprintf("failed=%d", line.Failed)
	if line.Failed > 0 {
		failed = r.failed.Sprint(failed)
	}
	fmt.Fprintf(r.writer, "%s: attempted=%d succeeded=%d %s rate=%.2f/s\n",
		labelColor.Sprint(line.Label), line.Attempted, line.Succeeded, failed, line.Rate)
}

// LastReport returns the lines of the most recent report.
func (r *Reporter) LastReport() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.last...)
}

// Reports returns how many reports have been written.
func (r *Reporter) Reports() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports
}
