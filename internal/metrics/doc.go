// Package metrics counts batch submissions per workload.
//
// Each worker owns one [RequestCounter] and is its only writer. The reporter and
// the Prometheus [Exporter] read the same counters concurrently, so the counts are
// kept in atomics and the latency histogram behind a mutex:
//
//	counter := metrics.NewRequestCounter("Command-Workload-0")
//	counter.RecordAttempt()
//	counter.RecordResult(latency, err)
//	snap := counter.Snapshot()
//
// Failures are grouped by error type using [FriendlyErrorName].
package metrics
