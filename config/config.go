// Package config carries the runtime knobs of the dispatcher and scheduler,
// loadable from YAML.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const defaultShutdownTimeout = 5 * time.Second

type SchedulerConfig struct {
	// ShutdownTimeout bounds how long teardown waits for detached units.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UnmarshalYAML reads durations in time.ParseDuration notation ("2s",
// "150ms"), which yaml.v3 does not decode on its own.
func (sc *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.ShutdownTimeout == "" {
		return nil
	}
	d, err := time.ParseDuration(raw.ShutdownTimeout)
	if err != nil {
		return fmt.Errorf("config: scheduler.shutdown_timeout: %w", err)
	}
	sc.ShutdownTimeout = d
	return nil
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration used when nothing is supplied.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{ShutdownTimeout: defaultShutdownTimeout},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// FromYAML decodes a config document, filling absent fields from Default and
// clamping non-positive durations back to their defaults.
func FromYAML(r io.Reader) (Config, error) {
	cfg := Default()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Scheduler.ShutdownTimeout <= 0 {
		c.Scheduler.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if _, parseErr := zapcore.ParseLevel(c.Logging.Level); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("config: logging.level %q: %w", c.Logging.Level, parseErr))
	}
	if c.Scheduler.ShutdownTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("config: scheduler.shutdown_timeout must be positive"))
	}
	return err
}

// BuildLogger constructs a console zap logger at the configured level.
func (c LoggingConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("config: logging.level %q: %w", c.Level, err)
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.Lock(os.Stdout),
		level,
	)
	return zap.New(core), nil
}
