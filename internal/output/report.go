package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/splintercommunity/transact/internal/metrics"
)

// Summary describes a finished run.
type Summary struct {
	RunID      string             `json:"run_id"`
	Workload   string             `json:"workload"`
	Seed       uint64             `json:"seed"`
	TargetRate string             `json:"target_rate"`
	Elapsed    time.Duration      `json:"-"`
	ElapsedSec float64            `json:"elapsed_seconds"`
	Targets    []metrics.Snapshot `json:"targets"`
	Total      metrics.Snapshot   `json:"total"`
	Errors     []string           `json:"worker_errors,omitempty"`
}

// NewSummary snapshots counters after the run has stopped.
func NewSummary(runID, kind string, seed uint64, rate string, elapsed time.Duration, counters []*metrics.RequestCounter) Summary {
	snaps := make([]metrics.Snapshot, len(counters))
	for i, c := range counters {
		snaps[i] = c.Snapshot()
	}
	return Summary{
		RunID:      runID,
		Workload:   kind,
		Seed:       seed,
		TargetRate: rate,
		Elapsed:    elapsed,
		ElapsedSec: elapsed.Seconds(),
		Targets:    snaps,
		Total:      metrics.Sum("Total", snaps),
	}
}

// PrintReport writes a human-readable summary.
func PrintReport(w io.Writer, s Summary) {
	fmt.Fprintln(w, "\n--- Workload Results ---")
	fmt.Fprintf(w, "Run:               %s\n", s.RunID)
	fmt.Fprintf(w, "Workload:          %s\n", s.Workload)
	fmt.Fprintf(w, "Seed:              %d\n", s.Seed)
	fmt.Fprintf(w, "Target rate:       %s\n", s.TargetRate)
	fmt.Fprintf(w, "Elapsed:           %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Attempted:         %d\n", s.Total.Attempted)
	fmt.Fprintf(w, "Succeeded:         %d\n", s.Total.Succeeded)
	fmt.Fprintf(w, "Failed:            %d\n", s.Total.Failed)
	if secs := s.Elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Batches/sec:       %.2f\n", float64(s.Total.Attempted)/secs)
	}

	if len(s.Targets) > 0 {
		fmt.Fprintln(w, "\nTargets:")
		for _, t := range s.Targets {
			fmt.Fprintf(w, "  - %s: attempted=%d, succeeded=%d, failed=%d, mean=%s, p50=%s, p99=%s, max=%s\n",
				t.ID, t.Attempted, t.Succeeded, t.Failed,
				t.MeanLatency.Round(time.Microsecond), t.P50Latency, t.P99Latency, t.MaxLatency.Round(time.Microsecond))
		}
	}

	if len(s.Total.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		names := make([]string, 0, len(s.Total.Errors))
		for name := range s.Total.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if s.Total.Errors[names[i]] != s.Total.Errors[names[j]] {
				return s.Total.Errors[names[i]] > s.Total.Errors[names[j]]
			}
			return names[i] < names[j]
		})
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", name, s.Total.Errors[name])
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nWorkers that did not start:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// PrintJSONReport writes the summary as indented JSON.
func PrintJSONReport(w io.Writer, s Summary) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
