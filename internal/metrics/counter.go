package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestCounter tracks submission outcomes for one workload. A single worker
// writes to it while the reporter and the exporter read it concurrently.
type RequestCounter struct {
	id string

	attempted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
}

// Snapshot is a point-in-time copy of a RequestCounter.
type Snapshot struct {
	ID        string `json:"id"`
	Attempted int64  `json:"attempted"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`

	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`

	MeanLatencyMs float64          `json:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms"`
	Errors        map[string]int64 `json:"errors,omitempty"`
}

// NewRequestCounter creates a counter with a stable label such as "Command-Workload-0".
func NewRequestCounter(id string) *RequestCounter {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &RequestCounter{
		id:           id,
		hist:         hdrhistogram.New(1, 60_000_000, 3),
		errorsByType: make(map[string]int64),
	}
}

// ID returns the counter's label.
func (c *RequestCounter) ID() string {
	return c.id
}

// RecordAttempt counts a submission about to be sent.
func (c *RequestCounter) RecordAttempt() {
	c.attempted.Add(1)
}

// RecordResult counts the outcome of a submission previously passed to RecordAttempt.
func (c *RequestCounter) RecordResult(latency time.Duration, err error) {
	if err == nil {
		c.succeeded.Add(1)
	} else {
		c.failed.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
	if err != nil {
		c.errorsByType[FriendlyErrorName(fmt.Sprintf("%T", err))]++
	}
}

// Attempted returns the number of submissions started so far.
func (c *RequestCounter) Attempted() int64 { return c.attempted.Load() }

// Succeeded returns the number of accepted submissions.
func (c *RequestCounter) Succeeded() int64 { return c.succeeded.Load() }

// Failed returns the number of failed submissions.
func (c *RequestCounter) Failed() int64 { return c.failed.Load() }

// Snapshot copies the current state of the counter.
func (c *RequestCounter) Snapshot() Snapshot {
	s := Snapshot{
		ID:        c.id,
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
		Attempted: c.attempted.Load(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if done := s.Succeeded + s.Failed; done > 0 {
		s.MeanLatency = time.Duration(int64(c.sumLatency) / done)
	}
	if c.hist.TotalCount() > 0 {
		s.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	s.MaxLatency = c.maxLatency

	s.MeanLatencyMs = toMillis(s.MeanLatency)
	s.P50LatencyMs = toMillis(s.P50Latency)
	s.P99LatencyMs = toMillis(s.P99Latency)
	s.MaxLatencyMs = toMillis(s.MaxLatency)

	if len(c.errorsByType) > 0 {
		s.Errors = make(map[string]int64, len(c.errorsByType))
		for k, v := range c.errorsByType {
			s.Errors[k] = v
		}
	}
	return s
}

// Sum adds the counts of several snapshots into one labelled id.
func Sum(id string, snaps []Snapshot) Snapshot {
	total := Snapshot{ID: id}
	for _, s := range snaps {
		total.Attempted += s.Attempted
		total.Succeeded += s.Succeeded
		total.Failed += s.Failed
		if s.MaxLatency > total.MaxLatency {
			total.MaxLatency = s.MaxLatency
		}
		for k, v := range s.Errors {
			if total.Errors == nil {
				total.Errors = map[string]int64{}
			}
			total.Errors[k] += v
		}
	}
	total.MaxLatencyMs = toMillis(total.MaxLatency)
	return total
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
