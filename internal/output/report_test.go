package output

import (
	"bytes"
	"errors"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splintercommunity/transact/internal/metrics"
)

func testCounters() []*metrics.RequestCounter {
	a := metrics.NewRequestCounter("Command-Workload-0")
	b := metrics.NewRequestCounter("Command-Workload-1")
	for i := 0; i < 4; i++ {
		a.RecordAttempt()
		a.RecordResult(10*time.Millisecond, nil)
	}
	b.RecordAttempt()
	b.RecordResult(time.Millisecond, errors.New("refused"))
	return []*metrics.RequestCounter{a, b}
}

func TestPrintReport(t *testing.T) {
	s := NewSummary("run-1", "command", 42, "2/s", 2*time.Second, testCounters())
	s.Errors = []string{"Command-Workload-2: dial failed"}

	var buf bytes.Buffer
	PrintReport(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "Workload Results")
	assert.Contains(t, out, "Seed:              42")
	assert.Contains(t, out, "Attempted:         5")
	assert.Contains(t, out, "Succeeded:         4")
	assert.Contains(t, out, "Failed:            1")
	assert.Contains(t, out, "Batches/sec:       2.50")
	assert.Contains(t, out, "Command-Workload-1: attempted=1, succeeded=0, failed=1")
	assert.Contains(t, out, "Submission error: 1")
	assert.Contains(t, out, "Command-Workload-2: dial failed")
}

func TestPrintJSONReport(t *testing.T) {
	s := NewSummary("run-1", "smallbank", 7, "1/s", 1500*time.Millisecond, testCounters())

	var buf bytes.Buffer
	require.NoError(t, PrintJSONReport(&buf, s))
	data := buf.Bytes()

	assert.Equal(t, "run-1", jsoniter.Get(data, "run_id").ToString())
	assert.Equal(t, uint64(7), jsoniter.Get(data, "seed").ToUint64())
	assert.Equal(t, 1.5, jsoniter.Get(data, "elapsed_seconds").ToFloat64())
	assert.Equal(t, int64(5), jsoniter.Get(data, "total", "attempted").ToInt64())
	assert.Equal(t, "Command-Workload-0", jsoniter.Get(data, "targets", 0, "id").ToString())
	assert.Equal(t, int64(1), jsoniter.Get(data, "total", "errors", "Submission error").ToInt64())
}
