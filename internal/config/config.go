// Package config loads sandterm settings from an optional YAML file with
// environment variable overrides (prefix SANDTERM_). Precedence, lowest to
// highest: built-in defaults, file, environment. Binary flags may override
// individual fields on top of the loaded settings.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files accept "3ms" style values the
// same way the environment does.
type Duration time.Duration

// Std returns the standard library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText satisfies envconfig.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML satisfies yaml.v3.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Settings holds every tunable for both the server and the client CLI.
type Settings struct {
	// Addr is the HTTP API + command channel listen address.
	Addr string `yaml:"addr" envconfig:"ADDR"`
	// PTYAddr is the interactive PTY bridge listen address.
	PTYAddr string `yaml:"pty_addr" envconfig:"PTY_ADDR"`
	// Production enables the PTY input rate limiter.
	Production bool `yaml:"production" envconfig:"PRODUCTION"`
	// DataDir is where per-sandbox working directories live.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// Shell is the default PTY command line when init names none.
	Shell string `yaml:"shell" envconfig:"PTY_SHELL"`
	Cols  int    `yaml:"cols" envconfig:"COLS"`
	Rows  int    `yaml:"rows" envconfig:"ROWS"`

	CommandTimeout Duration `yaml:"command_timeout" envconfig:"COMMAND_TIMEOUT"`
	HealthTimeout  Duration `yaml:"health_timeout" envconfig:"HEALTH_TIMEOUT"`
	FlushDelay     Duration `yaml:"flush_delay" envconfig:"FLUSH_DELAY"`
	FlushHighWater int      `yaml:"flush_high_water" envconfig:"FLUSH_HIGH_WATER"`

	// Client side.
	ServerURL           string   `yaml:"server_url" envconfig:"SERVER_URL"`
	PTYURL              string   `yaml:"pty_url" envconfig:"PTY_URL"`
	WarmupInterval      Duration `yaml:"warmup_interval" envconfig:"WARMUP_INTERVAL"`
	ReconnectDelay      Duration `yaml:"reconnect_delay" envconfig:"RECONNECT_DELAY"`
	PingInterval        Duration `yaml:"ping_interval" envconfig:"PING_INTERVAL"`
	ConnectTimeout      Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	StreamingCommands   []string `yaml:"streaming_commands" envconfig:"STREAMING_COMMANDS"`
	InteractiveCommands []string `yaml:"interactive_commands" envconfig:"INTERACTIVE_COMMANDS"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Addr:                ":8080",
		PTYAddr:             ":8081",
		DataDir:             os.TempDir() + "/sandterm",
		Shell:               "/bin/bash --norc --noprofile",
		Cols:                120,
		Rows:                32,
		CommandTimeout:      Duration(25 * time.Second),
		HealthTimeout:       Duration(5 * time.Second),
		FlushDelay:          Duration(3 * time.Millisecond),
		FlushHighWater:      256 * 1024,
		ServerURL:           "http://localhost:8080",
		PTYURL:              "ws://localhost:8081/terminal",
		WarmupInterval:      Duration(4 * time.Minute),
		ReconnectDelay:      Duration(2 * time.Second),
		PingInterval:        Duration(30 * time.Second),
		ConnectTimeout:      Duration(10 * time.Second),
		StreamingCommands:   []string{"anvil"},
		InteractiveCommands: []string{"chisel", "node"},
	}
}

// Load builds Settings from defaults, the optional YAML file at path, and
// SANDTERM_* environment variables, in that order.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process("sandterm", &s); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings the server cannot run with.
func (s Settings) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if s.PTYAddr == "" {
		return fmt.Errorf("pty_addr must not be empty")
	}
	if s.Cols <= 0 || s.Rows <= 0 {
		return fmt.Errorf("cols and rows must be positive, got %dx%d", s.Cols, s.Rows)
	}
	if s.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive")
	}
	if s.FlushHighWater <= 0 {
		return fmt.Errorf("flush_high_water must be positive")
	}
	return nil
}
