// Package config provides configuration management for the ownsim CLI.
package config

import (
	"fmt"
	"time"
)

// Config holds all CLI configuration options.
type Config struct {
	Verbose      bool           `koanf:"verbose"`
	OutputFormat string         `koanf:"output"`
	TracePath    string         `koanf:"trace_path"`
	Record       bool           `koanf:"record"`
	REPL         REPLConfig     `koanf:"repl"`
	Check        CheckConfig    `koanf:"check"`
	Watch        WatchConfig    `koanf:"watch"`
	Starlark     StarlarkConfig `koanf:"starlark"`

	// BaseDir is the directory relative paths are resolved against: the
	// config file's directory, or the working directory without one.
	BaseDir string `koanf:"-"`
}

// REPLConfig configures the interactive session.
type REPLConfig struct {
	HistoryFile string `koanf:"history_file"`
	Prompt      string `koanf:"prompt"`
}

// CheckConfig configures scenario checking.
type CheckConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// WatchConfig configures file watching.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// StarlarkConfig configures the Starlark host.
type StarlarkConfig struct {
	// MaxSteps bounds each script run; 0 means unlimited.
	MaxSteps uint64 `koanf:"max_steps"`
}

// Default configuration values.
const (
	DefaultTracePath   = ".ownsim/trace.db"
	DefaultHistoryFile = ".ownsim/history"
	DefaultPrompt      = "own> "
	DefaultConcurrency = 4
	DefaultDebounce    = 200 * time.Millisecond
	DefaultMaxSteps    = 10_000_000
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.OutputFormat {
	case "auto", "text", "markdown", "json":
	default:
		return &ValueError{Key: "output", Value: c.OutputFormat, Reason: "must be one of auto, text, markdown, json"}
	}
	if c.Check.Concurrency < 1 {
		return &ValueError{Key: "check.concurrency", Value: c.Check.Concurrency, Reason: "must be at least 1"}
	}
	if c.Watch.Debounce < 0 {
		return &ValueError{Key: "watch.debounce", Value: c.Watch.Debounce, Reason: "must not be negative"}
	}
	return nil
}

// ValueError reports an invalid configuration value.
type ValueError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Key, fmt.Sprint(e.Value), e.Reason)
}
