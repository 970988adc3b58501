// Package config provides configuration types and defaults for botweave.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"botweave/internal/log"
)

// Config holds all configuration options for the daemon.
type Config struct {
	// DataDir is the root directory for persistent state (database, logs,
	// Data/, Snippets/, Render/). Empty means resolve at runtime.
	DataDir   string          `mapstructure:"data_dir"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	KV        KVConfig        `mapstructure:"kv"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig holds the HTTP listener settings shared by the webhook
// routes and the management API.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	Dir   string `mapstructure:"dir"`   // Empty derives <data_dir>/logs
}

// KVConfig selects the key-value backend used for event dedup, debug
// records, and the globals mirror.
type KVConfig struct {
	Backend string      `mapstructure:"backend"` // "memory" (default) or "redis"
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig holds schedule-trigger settings.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"` // IANA name, e.g. "Asia/Shanghai"
}

// EngineConfig holds workflow engine limits.
type EngineConfig struct {
	// MaxSteps bounds one engine run; loops count each iteration.
	MaxSteps int `mapstructure:"max_steps"`
	// SnippetTimeout bounds one external snippet execution, in seconds.
	SnippetTimeout int `mapstructure:"snippet_timeout"`
	// SnippetRunner is the interpreter invoked for snippet scripts.
	SnippetRunner string `mapstructure:"snippet_runner"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: <data_dir>/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// 1.0 = all traces, 0.1 = 10% of traces
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		DataDir: "",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "",
		},
		KV: KVConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Timezone: "Asia/Shanghai",
		},
		Engine: EngineConfig{
			MaxSteps:       200,
			SnippetTimeout: 10,
			SnippetRunner:  "python3",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from data dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration for errors.
func (c Config) Validate() error {
	if err := ValidateServer(c.Server); err != nil {
		return err
	}
	if err := ValidateKV(c.KV); err != nil {
		return err
	}
	if err := ValidateScheduler(c.Scheduler); err != nil {
		return err
	}
	if err := ValidateEngine(c.Engine); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateServer checks listener configuration for errors.
func ValidateServer(s ServerConfig) error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}
	return nil
}

// ValidateKV checks key-value backend configuration for errors.
func ValidateKV(kv KVConfig) error {
	switch kv.Backend {
	case "", "memory":
		// Valid
	case "redis":
		if kv.Redis.Addr == "" {
			return fmt.Errorf("kv.redis.addr is required when backend is \"redis\"")
		}
	default:
		return fmt.Errorf("kv.backend must be \"memory\" or \"redis\", got %q", kv.Backend)
	}
	return nil
}

// ValidateScheduler checks scheduler configuration for errors.
func ValidateScheduler(s SchedulerConfig) error {
	if s.Timezone == "" {
		return nil // Uses local time
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone %q is not a valid IANA zone: %w", s.Timezone, err)
	}
	return nil
}

// ValidateEngine checks engine limits for errors.
func ValidateEngine(e EngineConfig) error {
	if e.MaxSteps < 1 {
		return fmt.Errorf("engine.max_steps must be positive, got %d", e.MaxSteps)
	}
	if e.SnippetTimeout < 1 {
		return fmt.Errorf("engine.snippet_timeout must be positive, got %d", e.SnippetTimeout)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Botweave Configuration

# Root directory for persistent state: database, logs, Data/, Snippets/, Render/.
# Default: ~/.botweave (or the directory named by a .botweave-data redirect file)
# data_dir: /var/lib/botweave

# HTTP listener shared by webhook callbacks and the management API
server:
  host: 0.0.0.0
  port: 8080

# Logging
log:
  level: info   # debug, info, warn, error
  # dir: /var/log/botweave   # default: <data_dir>/logs

# Key-value store for event dedup, workflow debug records, and the
# global-variable mirror
kv:
  backend: memory   # "memory" (default) or "redis"
  # redis:
  #   addr: localhost:6379
  #   password: ""
  #   db: 0

# Schedule-triggered workflows
scheduler:
  enabled: true
  timezone: Asia/Shanghai   # All cron expressions run in this zone

# Workflow engine limits
engine:
  max_steps: 200       # Abort a run after this many node executions
  snippet_timeout: 10  # Seconds before an external snippet is killed
  snippet_runner: python3

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.botweave/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
