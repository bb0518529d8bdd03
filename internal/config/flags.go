package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/splintercommunity/transact/internal/ratespec"
)

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workload [flags] | workload playlist [flags]",
		Short:         "Submit generated batches to one or more targets at a controlled rate",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func newPlaylistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workload playlist [flags]",
		Short:         "Write a smallbank playlist",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	fs := cmd.Flags()
	fs.Int("smallbank-num-accounts", DefaultAccounts, "Number of smallbank accounts to create")
	fs.Int("transactions", 0, "Number of playlist entries to write")
	fs.Uint64("seed", 0, "Random seed (random when omitted)")
	fs.StringP("output", "o", "", "Playlist file to write (stdout when omitted)")
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Targets and pacing
	flags.StringSliceP("targets", "t", nil, "Target URLs (repeatable or comma separated; separate failover addresses with ';')")
	flags.String("target-rate", ratespec.DefaultRate, "Submission rate per target, fixed (5/s) or a range (2/s-10/s)")
	flags.String("workload", "", "Workload to run: command or smallbank")
	flags.Uint64("seed", 0, "Random seed for the generators (random when omitted)")
	flags.String("duration", "", "How long to run (e.g. 30s, 5m, 1h); runs until interrupted when omitted")
	flags.Int("update", int(DefaultUpdate/time.Second), "Seconds between progress reports")

	// Signing and auth
	flags.String("key", "", "Private key file used to sign batches (generated when omitted)")
	flags.String("auth-token", "", "Static bearer token; a signed token is derived from the key when omitted")

	// Smallbank
	flags.Int("smallbank-num-accounts", DefaultAccounts, "Number of smallbank accounts to create")
	flags.String("smallbank-playlist", "", "Replay a smallbank playlist file instead of generating payloads")

	// Submission
	flags.Duration("timeout", DefaultTimeout, "Per-submission timeout")
	flags.Int("retries", 0, "Connection retries per submission")

	// Output
	flags.Bool("json-output", false, "Print the final summary as JSON")
	flags.Bool("log-errors", false, "Log each failed submission")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", DefaultLogFormat, "Log format: console or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of submissions traced (0.0-1.0)")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies every flag the user set onto cfg, overriding file
// values.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}

	set("targets", func() error {
		v, e := fs.GetStringSlice("targets")
		cfg.Targets = v
		return e
	})
	set("target-rate", func() error {
		v, e := fs.GetString("target-rate")
		cfg.TargetRate = strings.TrimSpace(v)
		return e
	})
	set("workload", func() error {
		v, e := fs.GetString("workload")
		cfg.Workload = strings.ToLower(strings.TrimSpace(v))
		return e
	})
	set("seed", func() error {
		v, e := fs.GetUint64("seed")
		cfg.Seed, cfg.SeedSet = v, true
		return e
	})
	set("duration", func() error {
		v, e := fs.GetString("duration")
		cfg.Duration = strings.TrimSpace(v)
		return e
	})
	set("update", func() error {
		v, e := fs.GetInt("update")
		cfg.Update = time.Duration(v) * time.Second
		return e
	})
	set("key", func() error {
		v, e := fs.GetString("key")
		cfg.KeyFile = v
		return e
	})
	set("auth-token", func() error {
		v, e := fs.GetString("auth-token")
		cfg.AuthToken = v
		return e
	})
	set("smallbank-num-accounts", func() error {
		v, e := fs.GetInt("smallbank-num-accounts")
		cfg.SmallbankAccounts = v
		return e
	})
	set("smallbank-playlist", func() error {
		v, e := fs.GetString("smallbank-playlist")
		cfg.SmallbankPlaylist = v
		return e
	})
	set("timeout", func() error {
		v, e := fs.GetDuration("timeout")
		cfg.Timeout = v
		return e
	})
	set("retries", func() error {
		v, e := fs.GetInt("retries")
		cfg.Retries = v
		return e
	})
	set("json-output", func() error {
		v, e := fs.GetBool("json-output")
		cfg.JSONOutput = v
		return e
	})
	set("log-errors", func() error {
		v, e := fs.GetBool("log-errors")
		cfg.LogErrors = v
		return e
	})
	set("log-level", func() error {
		v, e := fs.GetString("log-level")
		cfg.LogLevel = v
		return e
	})
	set("log-format", func() error {
		v, e := fs.GetString("log-format")
		cfg.LogFormat = v
		return e
	})
	set("metrics-addr", func() error {
		v, e := fs.GetString("metrics-addr")
		cfg.MetricsAddr = v
		return e
	})
	set("tracing-endpoint", func() error {
		v, e := fs.GetString("tracing-endpoint")
		cfg.Tracing.Endpoint = v
		return e
	})
	set("tracing-protocol", func() error {
		v, e := fs.GetString("tracing-protocol")
		cfg.Tracing.Protocol = v
		return e
	})
	set("tracing-insecure", func() error {
		v, e := fs.GetBool("tracing-insecure")
		cfg.Tracing.Insecure = v
		return e
	})
	set("tracing-sample-rate", func() error {
		v, e := fs.GetFloat64("tracing-sample-rate")
		cfg.Tracing.SampleRate = v
		return e
	})
	set("tracing-service-name", func() error {
		v, e := fs.GetString("tracing-service-name")
		cfg.Tracing.ServiceName = v
		return e
	})
	return err
}
