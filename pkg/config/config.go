// Package config loads harness configuration from a yaml file, with
// defaults matching the standard test run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cosiner/argv"
	"gopkg.in/yaml.v2"

	"github.com/go-warden/warden/pkg/inferior"
)

// Config defines all options available through the config file.
type Config struct {
	// CrashTries is the number of fault cycles per CRASH request. The
	// value is passed to the inferior so both sides agree.
	CrashTries int `yaml:"crash-tries"`

	// ExtraThreads is the number of parked worker threads requested in
	// the thread list scenario.
	ExtraThreads int `yaml:"extra-threads"`

	// WatchdogTicks and WatchdogTick bound the whole run to
	// WatchdogTicks*WatchdogTick.
	WatchdogTicks int           `yaml:"watchdog-ticks"`
	WatchdogTick  time.Duration `yaml:"watchdog-tick"`

	// TTY, when set, becomes the inferior's controlling terminal.
	TTY string `yaml:"tty"`

	// InferiorArgs is a shell-style string of extra arguments appended
	// to the inferior command line.
	InferiorArgs string `yaml:"inferior-args"`
}

// Default returns the standard configuration: four fault cycles, four
// extra threads, a 5 second deadline in 0.5 second ticks.
func Default() *Config {
	return &Config{
		CrashTries:    inferior.DefaultCrashTries,
		ExtraThreads:  inferior.ExtraThreads,
		WatchdogTicks: 10,
		WatchdogTick:  500 * time.Millisecond,
	}
}

// Load populates a Config from the yaml file at path, over defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if c.CrashTries <= 0 || c.ExtraThreads <= 0 || c.WatchdogTicks <= 0 || c.WatchdogTick <= 0 {
		return nil, fmt.Errorf("config %s: counts and durations must be positive", path)
	}
	return c, nil
}

// ParsedInferiorArgs splits InferiorArgs into an argument vector.
func (c *Config) ParsedInferiorArgs() ([]string, error) {
	if c.InferiorArgs == "" {
		return nil, nil
	}
	v, err := argv.Argv(c.InferiorArgs,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in %q", s)
		},
		nil)
	if err != nil {
		return nil, fmt.Errorf("parse inferior-args: %w", err)
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("illegal inferior-args %q", c.InferiorArgs)
	}
	return v[0], nil
}
