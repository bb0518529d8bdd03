// Package logging builds the zap logger shared by every component of a run.
package logging

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared logger writing to stderr, leaving stdout to the
// progress reports. format is "console" or "json".
func New(level, format string) (*zap.SugaredLogger, error) {
	return build(level, format, "stderr")
}

func build(level, format string, output string) (*zap.SugaredLogger, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	rawJSON := []byte(fmt.Sprintf(`{
	  "level": %q,
	  "encoding": %q,
	  "outputPaths": [%q],
	  "errorOutputPaths": ["stderr"],
	  "encoderConfig": {
	    "messageKey": "message",
	    "levelKey": "level",
	    "levelEncoder": "uppercase",
	    "timeKey": "time",
	    "timeEncoder": "ISO8601",
	    "nameKey": "logger",
	    "callerKey": "caller",
	    "callerEncoder": "short"
	  }
	}`, strings.ToLower(level), format, output))

	var cfg zap.Config
	if err := jsoniter.Unmarshal(rawJSON, &cfg); err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}
	if format == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
