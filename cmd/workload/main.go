// Command workload submits generated batches to one or more targets at a
// configured rate and reports throughput until stopped.
//
//	workload --targets http://validator-0:8008 --workload command --target-rate 5/s --duration 5m
//	workload playlist --smallbank-num-accounts 10 --transactions 1000 -o playlist.yaml
package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/splintercommunity/transact/internal/auth"
	"github.com/splintercommunity/transact/internal/config"
	"github.com/splintercommunity/transact/internal/dispatch"
	"github.com/splintercommunity/transact/internal/logging"
	"github.com/splintercommunity/transact/internal/metrics"
	"github.com/splintercommunity/transact/internal/output"
	"github.com/splintercommunity/transact/internal/runner"
	"github.com/splintercommunity/transact/internal/tracing"
	"github.com/splintercommunity/transact/internal/workload"
	_ "github.com/splintercommunity/transact/internal/workload/command"
	"github.com/splintercommunity/transact/internal/workload/smallbank"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "playlist" {
		return runPlaylist(args[1:], stdout)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return execute(ctx, cfg, logger, stdout, stderr)
}

// execute runs the workload described by cfg until its duration elapses or
// ctx is cancelled, then prints the summary.
func execute(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, stdout, stderr io.Writer) error {
	spec, err := cfg.Rate()
	if err != nil {
		return err
	}
	duration, err := cfg.RunDuration()
	if err != nil {
		return err
	}
	kind := workload.Kind(strings.ToLower(strings.TrimSpace(cfg.Workload)))

	seed := cfg.Seed
	if !cfg.SeedSet {
		if seed, err = randomSeed(); err != nil {
			return err
		}
	}
	logger.Infow("Using seed", "seed", seed)

	signer, err := workload.LoadSigner(cfg.KeyFile)
	if err != nil {
		return err
	}
	provider, err := newAuthProvider(cfg, signer)
	if err != nil {
		return err
	}
	defer provider.Close()

	runID := uuid.NewString()
	tp, err := tracing.Init(ctx, cfg.Tracing,
		attribute.String("workload.kind", string(kind)),
		attribute.String("workload.run_id", runID))
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnw("Tracing shutdown", "error", err)
		}
	}()

	targets := cfg.TargetGroups()
	counters, err := runner.NewCounters(kind, len(targets))
	if err != nil {
		return err
	}
	stopMetrics, err := serveMetrics(cfg.MetricsAddr, counters, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	opts := dispatch.Options{
		Client:  dispatch.NewHTTPClient(cfg.Timeout),
		Timeout: cfg.Timeout,
		Auth:    provider,
		Retries: cfg.Retries,
		Tracing: tp,
		Logger:  logger,
	}

	// Keep stdout parseable when the summary is JSON.
	progress := stdout
	if cfg.JSONOutput {
		progress = stderr
	}

	plan := runner.Plan{
		RunID:    runID,
		Kind:     kind,
		Targets:  targets,
		Rate:     spec,
		Duration: duration,
		Seed:     seed,
		Workload: workload.Options{
			Signer:       signer,
			Accounts:     cfg.SmallbankAccounts,
			PlaylistPath: cfg.SmallbankPlaylist,
		},
		Counters: counters,
		NewSubmitter: func(group []string) (dispatch.Submitter, error) {
			return dispatch.New(group, opts)
		},
		LogErrors: cfg.LogErrors,
		Update:    cfg.Update,
		Output:    progress,
	}

	started, err := runner.Start(ctx, plan, runner.WithLogger(logger))
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Received interrupt, shutting down")
			if err := started.ShutdownSignaler().SignalShutdown(); err != nil {
				logger.Errorw("Unable to signal shutdown", "error", err)
			}
		case <-finished:
		}
	}()

	if err := started.WaitForShutdown(); err != nil {
		logger.Warnw("Run finished with errors", "error", err)
	}
	close(finished)

	summary := started.Summary(kind, seed, spec)
	if cfg.JSONOutput {
		return output.PrintJSONReport(stdout, summary)
	}
	output.PrintReport(stdout, summary)
	return nil
}

func newAuthProvider(cfg *config.Config, signer workload.Signer) (auth.Provider, error) {
	if token := strings.TrimSpace(cfg.AuthToken); token != "" {
		return auth.NewStaticTokenProvider(token), nil
	}
	return auth.NewSignedTokenProvider(signer, time.Now())
}

// serveMetrics exposes the counters on addr until the returned func is called.
// An empty addr disables the endpoint.
func serveMetrics(addr string, counters []*metrics.RequestCounter, logger *zap.SugaredLogger) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	exporter, err := metrics.NewExporter(counters)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("Metrics server stopped", "error", err)
		}
	}()
	logger.Infow("Serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func runPlaylist(args []string, stdout io.Writer) error {
	cfg, err := config.NewLoader().LoadPlaylist(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	seed := cfg.Seed
	if !cfg.SeedSet {
		if seed, err = randomSeed(); err != nil {
			return err
		}
	}

	source := smallbank.NewPayloadIter(cfg.Accounts, seed)
	if cfg.Output == "" {
		return smallbank.WritePlaylist(stdout, source, cfg.Transactions)
	}
	f, err := os.Create(cfg.Output)
	if err != nil {
		return err
	}
	if err := smallbank.WritePlaylist(f, source, cfg.Transactions); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func randomSeed() (uint64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generating seed: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
