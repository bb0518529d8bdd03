package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader builds a Config from command-line arguments and an optional config
// file. Flags override file values.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses run arguments. It returns ErrHelpRequested after printing usage
// when asked for help or given no arguments at all.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	flagSet, err := parseFlags(cmd, args)
	if err != nil {
		return nil, err
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Update:            DefaultUpdate,
		Timeout:           DefaultTimeout,
		SmallbankAccounts: DefaultAccounts,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		ConfigFile:        configPath,
		Tracing:           TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPlaylist parses the arguments of the playlist subcommand.
func (Loader) LoadPlaylist(args []string) (*PlaylistConfig, error) {
	cmd := newPlaylistCommand()
	fs, err := parseFlags(cmd, args)
	if err != nil {
		return nil, err
	}

	cfg := &PlaylistConfig{}
	if cfg.Accounts, err = fs.GetInt("smallbank-num-accounts"); err != nil {
		return nil, err
	}
	if cfg.Transactions, err = fs.GetInt("transactions"); err != nil {
		return nil, err
	}
	if cfg.Seed, err = fs.GetUint64("seed"); err != nil {
		return nil, err
	}
	cfg.SeedSet = fs.Changed("seed")
	if cfg.Output, err = fs.GetString("output"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFlags(cmd *cobra.Command, args []string) (*pflag.FlagSet, error) {
	flagSet := cmd.Flags()
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return flagSet, nil
}

func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "targets", "target"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		cfg.Targets = val
	}

	strFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"target_rate", "target-rate"}, &cfg.TargetRate},
		{[]string{"workload"}, &cfg.Workload},
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"key"}, &cfg.KeyFile},
		{[]string{"auth_token", "auth-token"}, &cfg.AuthToken},
		{[]string{"smallbank_playlist", "smallbank-playlist"}, &cfg.SmallbankPlaylist},
		{[]string{"log_level", "log-level"}, &cfg.LogLevel},
		{[]string{"log_format", "log-format"}, &cfg.LogFormat},
		{[]string{"metrics_addr", "metrics-addr"}, &cfg.MetricsAddr},
	}
	for _, f := range strFields {
		raw, ok := lookupSetting(settings, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}
	cfg.Workload = strings.ToLower(cfg.Workload)

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asUint64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed, cfg.SeedSet = val, true
	}

	if raw, ok := lookupSetting(settings, "update"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		cfg.Update = val
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = val
	}

	if raw, ok := lookupSetting(settings, "smallbank_num_accounts", "smallbank-num-accounts"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("smallbank_num_accounts: %w", err)
		}
		cfg.SmallbankAccounts = val
	}
	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.Retries = val
	}

	if raw, ok := lookupSetting(settings, "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}
	if raw, ok := lookupSetting(settings, "log_errors", "log-errors"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("log_errors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}
	return nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	tc := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if tc.Endpoint, err = asString(raw); err != nil {
			return tc, fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if tc.Protocol, err = asString(raw); err != nil {
			return tc, fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name", "service-name"); ok {
		if tc.ServiceName, err = asString(raw); err != nil {
			return tc, fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return tc, fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "sample-rate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return tc, fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return tc, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
