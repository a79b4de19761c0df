// Package config loads the syncboard configuration: a YAML file with
// environment-variable overrides layered on top. The zero config is usable
// for local development against a backend on localhost.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	Backend   BackendConfig   `yaml:"backend"`
	Sync      SyncConfig      `yaml:"sync"`
	Retention RetentionConfig `yaml:"retention"`
	Provider  ProviderConfig  `yaml:"provider"`

	// Workspace is the directory for local state (sqlite database).
	Workspace string `yaml:"workspace" env:"SYNCBOARD_WORKSPACE"`

	// LogLevel controls logger verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"SYNCBOARD_LOG_LEVEL"`
}

// GatewayConfig configures the dashboard-facing HTTP server.
type GatewayConfig struct {
	Host   string `yaml:"host" env:"SYNCBOARD_HOST"`
	Port   int    `yaml:"port" env:"SYNCBOARD_PORT"`
	APIKey string `yaml:"api_key" env:"SYNCBOARD_API_KEY"`
}

// BackendConfig configures the orchestration backend client.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" env:"SYNCBOARD_BACKEND_URL"`
	Token   string        `yaml:"token" env:"SYNCBOARD_BACKEND_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"SYNCBOARD_BACKEND_TIMEOUT"`
}

// SyncConfig tunes the event bus and job poller.
type SyncConfig struct {
	// DebounceWindow is how long identical dispatches are suppressed.
	DebounceWindow time.Duration `yaml:"debounce_window" env:"SYNCBOARD_DEBOUNCE_WINDOW"`
	// DedupRetention is how long dedup entries are kept before GC.
	DedupRetention time.Duration `yaml:"dedup_retention" env:"SYNCBOARD_DEDUP_RETENTION"`
	// PollInterval is the default decomposition poll interval.
	PollInterval time.Duration `yaml:"poll_interval" env:"SYNCBOARD_POLL_INTERVAL"`
	// PollTimeout is the default decomposition poll budget.
	PollTimeout time.Duration `yaml:"poll_timeout" env:"SYNCBOARD_POLL_TIMEOUT"`
}

// RetentionConfig controls the job-store sweep.
type RetentionConfig struct {
	// Cron is a standard 5-field cron expression for the sweep schedule.
	Cron string `yaml:"cron" env:"SYNCBOARD_RETENTION_CRON"`
	// MaxAge removes finished job records older than this.
	MaxAge time.Duration `yaml:"max_age" env:"SYNCBOARD_RETENTION_MAX_AGE"`
}

// ProviderConfig configures the chat-turn ingestion provider.
type ProviderConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
}

// Default returns the baseline configuration applied before file and env.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{Host: "127.0.0.1", Port: 8790},
		Backend: BackendConfig{BaseURL: "http://127.0.0.1:8710", Timeout: 15 * time.Second},
		Sync: SyncConfig{
			DebounceWindow: 500 * time.Millisecond,
			DedupRetention: 10 * time.Second,
			PollInterval:   2 * time.Second,
			PollTimeout:    5 * time.Minute,
		},
		Retention: RetentionConfig{Cron: "0 * * * *", MaxAge: 7 * 24 * time.Hour},
		LogLevel:  "info",
	}
}

// Load reads the YAML config at path (missing file is fine — defaults apply)
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: defaults + env only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	return cfg, nil
}

// WorkspacePath returns the state directory, defaulting to ~/.syncboard.
func (c *Config) WorkspacePath() string {
	if c.Workspace != "" {
		return expandHome(c.Workspace)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syncboard"
	}
	return filepath.Join(home, ".syncboard")
}

// ListenAddr returns the gateway host:port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
