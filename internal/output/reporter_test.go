package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReporterFinalFlushOnShutdown(t *testing.T) {
	counters := testCounters()
	var out syncBuffer
	r := NewReporter(counters, time.Hour, 0, &out, WithColor(false))
	r.Start()

	require.NoError(t, r.SignalShutdown())
	require.NoError(t, r.SignalShutdown(), "signaling twice is harmless")
	require.NoError(t, r.WaitForShutdown())

	assert.Equal(t, 1, r.Reports())
	text := out.String()
	assert.Contains(t, text, "Command-Workload-0: attempted=4 succeeded=4 failed=0 rate=")
	assert.Contains(t, text, "Command-Workload-1: attempted=1 succeeded=0 failed=1 rate=")
	assert.Contains(t, text, "Total: attempted=5 succeeded=4 failed=1 rate=")

	last := r.LastReport()
	require.Len(t, last, 2)
	assert.Equal(t, int64(4), last[0].Attempted)
}

func TestReporterTicksAndStopsAtDuration(t *testing.T) {
	counters := testCounters()
	var out syncBuffer
	r := NewReporter(counters, 20*time.Millisecond, 150*time.Millisecond, &out, WithColor(false))
	r.Start()

	done := make(chan error, 1)
	go func() { done <- r.WaitForShutdown() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reporter did not stop when its duration elapsed")
	}
	assert.GreaterOrEqual(t, r.Reports(), 3)
	assert.GreaterOrEqual(t, strings.Count(out.String(), "Total:"), 3)
}

func TestReporterRateSincePreviousReport(t *testing.T) {
	counters := testCounters()
	r := NewReporter(counters[:1], time.Hour, 0, nil)
	r.prevTime = time.Now().Add(-2 * time.Second)
	r.report()

	last := r.LastReport()
	require.Len(t, last, 1)
	assert.InDelta(t, 2.0, last[0].Rate, 0.1)

	r.report()
	assert.Zero(t, r.LastReport()[0].Rate, "no new attempts since the previous report")
}

func TestReporterWaitWithoutStart(t *testing.T) {
	r := NewReporter(nil, time.Second, 0, nil)
	assert.ErrorIs(t, r.WaitForShutdown(), ErrNotStarted)
}

func TestReporterColor(t *testing.T) {
	counters := testCounters()
	var out syncBuffer
	r := NewReporter(counters[1:], time.Hour, 0, &out, WithColor(true))
	r.report()
	assert.Contains(t, out.String(), "\x1b[31mfailed=1")
}

func TestReporterWritesTotalForSingleTarget(t *testing.T) {
	counters := testCounters()
	var out syncBuffer
	r := NewReporter(counters[:1], time.Hour, 0, &out, WithColor(false))
	r.report()

	text := out.String()
	assert.Contains(t, text, "Command-Workload-0: attempted=4 succeeded=4 failed=0 rate=")
	assert.Contains(t, text, "Total: attempted=4 succeeded=4 failed=0 rate=")
}
