// Package logging builds the zap logger shared by nodekeeper's binaries.
//
// Each component receives the root logger and names its own subsystem
// (logger.Named("bootnode")), so a line's origin is visible in both the
// console and JSON encodings.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Subsystem names used with zap.Logger.Named.
const (
	Bootnode     = "bootnode"
	Registration = "registration"
	Supervisor   = "supervisor"
	Coordinator  = "coordinator"
	Launcher     = "launcher"
	Registry     = "registry"
)

// Format selects the encoder.
type Format string

const (
	// FormatConsole is a human-readable, colourless line format.
	FormatConsole Format = "console"
	// FormatJSON emits one JSON object per line.
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	// Level is a zap level name: debug, info, warn, error. Empty means info.
	Level string
	// Format is console or json. Empty means console.
	Format Format
}

// New builds a logger writing to stderr.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var cfg zap.Config
	switch opts.Format {
	case FormatJSON:
		cfg = zap.NewProductionConfig()
	case FormatConsole, "":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("log format %q: must be console or json", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = level > zapcore.DebugLevel

	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
