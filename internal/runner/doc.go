// Package runner drives workload submission against a set of targets.
//
// The runner package runs one worker per target. Each worker:
//   - Paces itself at a fixed rate sampled once at start from the configured range
//   - Pulls the next batch from its generator and hands it to its submitter
//   - Records every attempt and outcome in its own request counter
//   - Stops when its duration elapses or shutdown is signaled
//
// # Basic Usage
//
// [Start] builds the workers and the progress reporter from a [Plan]:
//
//	counters, err := runner.NewCounters(workload.KindCommand, len(targets))
//	run, err := runner.Start(ctx, runner.Plan{
//		Kind:         workload.KindCommand,
//		Targets:      targets,
//		Rate:         spec,
//		Duration:     time.Minute,
//		Seed:         seed,
//		Workload:     workload.Options{Signer: signer},
//		Counters:     counters,
//		NewSubmitter: newSubmitter,
//	})
//	...
//	run.ShutdownSignaler().SignalShutdown()
//	err = run.WaitForShutdown()
//
// # Shutdown
//
// A [Signaler] only cancels; it never blocks, so it is safe to call from a
// signal handler goroutine. A worker that is in the middle of a submission
// finishes it and records the outcome before stopping. WaitForShutdown waits
// for the workers and the reporter independently.
//
// # Errors
//
// A worker whose generator fails stops with a [WorkerError]; the others keep
// running. Submission failures are counted and never stop a worker.
package runner
