// Package config loads workload run options from flags and an optional JSON or
// YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/splintercommunity/transact/internal/ratespec"
)

const (
	DefaultUpdate    = 30 * time.Second
	DefaultTimeout   = 30 * time.Second
	DefaultAccounts  = 100
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

type Config struct {
	Targets           []string      `mapstructure:"targets"`
	TargetRate        string        `mapstructure:"target_rate"`
	Workload          string        `mapstructure:"workload"`
	Seed              uint64        `mapstructure:"seed"`
	SeedSet           bool          `mapstructure:"-"`
	Duration          string        `mapstructure:"duration"`
	Update            time.Duration `mapstructure:"update"`
	KeyFile           string        `mapstructure:"key"`
	AuthToken         string        `mapstructure:"auth_token"`
	SmallbankAccounts int           `mapstructure:"smallbank_num_accounts"`
	SmallbankPlaylist string        `mapstructure:"smallbank_playlist"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Retries           int           `mapstructure:"retries"`
	JSONOutput        bool          `mapstructure:"json_output"`
	LogErrors         bool          `mapstructure:"log_errors"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	Tracing           TracingConfig `mapstructure:"tracing"`
	ConfigFile        string        `mapstructure:"-"`
}

// TracingConfig controls OTLP export of submission spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, directly or through
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless Propagate is set.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// PlaylistConfig holds the options of the playlist subcommand.
type PlaylistConfig struct {
	Accounts     int
	Transactions int
	Seed         uint64
	SeedSet      bool
	Output       string
}

// ValidationError collects every problem found in a Config. Causes carrying
// their own type, such as a rate parse error, remain reachable with errors.As.
type ValidationError struct {
	issues []string
	causes []error
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (e ValidationError) Unwrap() []error {
	return e.causes
}

func (e *ValidationError) add(format string, args ...any) {
	e.issues = append(e.issues, fmt.Sprintf(format, args...))
}

func (e *ValidationError) addErr(err error) {
	e.issues = append(e.issues, err.Error())
	e.causes = append(e.causes, err)
}

// TargetGroups splits each target value on ';' into a failover group. Empty
// entries are dropped.
func (c Config) TargetGroups() [][]string {
	var groups [][]string
	for _, raw := range c.Targets {
		var group []string
		for _, addr := range strings.Split(raw, ";") {
			if addr = strings.TrimSpace(addr); addr != "" {
				group = append(group, addr)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

// Rate parses the target rate, defaulting to ratespec.DefaultRate.
func (c Config) Rate() (ratespec.Spec, error) {
	return ratespec.Parse(c.TargetRate)
}

// RunDuration parses the duration; zero means run until interrupted.
func (c Config) RunDuration() (time.Duration, error) {
	return ratespec.ParseDuration(c.Duration)
}

func (c Config) Validate() error {
	var v ValidationError

	if len(c.TargetGroups()) == 0 {
		v.add("targets are required")
	}
	if strings.TrimSpace(c.Workload) == "" {
		v.add("workload is required")
	}
	if _, err := c.Rate(); err != nil {
		v.addErr(err)
	}
	if _, err := c.RunDuration(); err != nil {
		v.addErr(err)
	}
	if c.Update <= 0 {
		v.add("update must be > 0")
	}
	if c.Timeout < 0 {
		v.add("timeout must be >= 0")
	}
	if c.Retries < 0 {
		v.add("retries must be >= 0")
	}
	if c.SmallbankAccounts <= 0 {
		v.add("smallbank-num-accounts must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		v.add("log-level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		v.add("log-format must be console or json")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		v.add("tracing sample rate must be between 0 and 1")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		v.add("tracing protocol must be grpc or http")
	}

	if len(v.issues) > 0 {
		return v
	}
	return nil
}

func (c PlaylistConfig) Validate() error {
	var v ValidationError
	if c.Accounts <= 0 {
		v.add("smallbank-num-accounts must be > 0")
	}
	if c.Transactions <= 0 {
		v.add("transactions must be > 0")
	}
	if len(v.issues) > 0 {
		return v
	}
	return nil
}

// ErrHelpRequested is returned when the user asked for usage.
var ErrHelpRequested = errors.New("help requested")
