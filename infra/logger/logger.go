package logger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/railsched/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// Config selects the process wide level and output format.
type Config struct {
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"`
}

func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("logging level %q: %w", c.Level, err)
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("logging format %q must be json or console", c.Format)
}

var (
	mu      sync.RWMutex
	console bool
)

// Configure applies cfg to every logger created afterwards. An empty format
// keeps the APP_ENV based detection.
func Configure(cfg Config) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, _ := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	zerolog.SetGlobalLevel(lvl)
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(cfg.Format) {
	case "console":
		console = true
	case "json":
		console = false
	default:
		console = envConsole()
	}
	return nil
}

// New returns a Logger for the given component.
func New(component string) Logger {
	return NewZerologLogger(component)
}
