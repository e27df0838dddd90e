// Package config loads and validates orchestrator configuration via viper:
// defaults, then an optional YAML config file, then environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete orchestrator configuration.
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Session SessionConfig `mapstructure:"session"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PathsConfig controls where the orchestrator stores data.
type PathsConfig struct {
	// StateFile is the JSON document holding all durable orchestrator
	// state. Supports ~ for home directory expansion.
	StateFile string `mapstructure:"state_file"`

	// LogDir holds one append-only log file per task.
	LogDir string `mapstructure:"log_dir"`

	// WorktreeDir is where task worktrees are created when the caller
	// does not pass an explicit path.
	WorktreeDir string `mapstructure:"worktree_dir"`

	// RepoDir is the git repository task worktrees are created from.
	// Empty disables automatic worktree creation; callers must then pass
	// explicit worktree paths.
	RepoDir string `mapstructure:"repo_dir"`
}

// SessionConfig controls worker session launch behavior.
type SessionConfig struct {
	// AgentBinary is the coding-agent executable to launch in each session.
	AgentBinary string `mapstructure:"agent_binary"`

	// WorkerArgs maps a worker type (opus, auto, glm) to the extra CLI
	// arguments selecting it.
	WorkerArgs map[string][]string `mapstructure:"worker_args"`

	// MachineArgs maps a machine (mac, vm) to the extra CLI arguments
	// selecting it.
	MachineArgs map[string][]string `mapstructure:"machine_args"`

	// TmuxHistoryLimit is the scrollback line count for worker sessions.
	TmuxHistoryLimit int `mapstructure:"tmux_history_limit"`

	// GracefulStopTimeoutMs is how long a cooperative termination may
	// settle before the session is force-killed.
	GracefulStopTimeoutMs int `mapstructure:"graceful_stop_timeout_ms"`
}

// WebhookConfig controls completion-notification delivery.
type WebhookConfig struct {
	// URL is the destination for task-completion notifications.
	// Empty disables webhook delivery.
	URL string `mapstructure:"url"`

	// Secret is the shared secret for request signing.
	Secret string `mapstructure:"secret"`

	// RequestTimeoutMs bounds each individual delivery attempt.
	RequestTimeoutMs int `mapstructure:"request_timeout_ms"`

	// RetrySweepIntervalMinutes is how often the pending queue is replayed.
	RetrySweepIntervalMinutes int `mapstructure:"retry_sweep_interval_minutes"`
}

// LoggingConfig controls debug logging behavior.
type LoggingConfig struct {
	// Enabled controls whether debug logging is written to a file.
	Enabled bool `mapstructure:"enabled"`

	// Level is the log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether the metrics listener is started.
	Enabled bool `mapstructure:"enabled"`

	// Addr is the listen address for the metrics endpoint.
	Addr string `mapstructure:"addr"`
}

// GracefulStopTimeout returns the graceful stop timeout as a time.Duration.
func (s *SessionConfig) GracefulStopTimeout() time.Duration {
	return time.Duration(s.GracefulStopTimeoutMs) * time.Millisecond
}

// RequestTimeout returns the per-attempt timeout as a time.Duration.
func (w *WebhookConfig) RequestTimeout() time.Duration {
	return time.Duration(w.RequestTimeoutMs) * time.Millisecond
}

// RetrySweepInterval returns the sweep interval as a time.Duration.
func (w *WebhookConfig) RetrySweepInterval() time.Duration {
	return time.Duration(w.RetrySweepIntervalMinutes) * time.Minute
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			StateFile:   "", // Empty means ConfigDir()/state.json
			LogDir:      "", // Empty means ConfigDir()/logs
			WorktreeDir: "~/worktrees",
			RepoDir:     "",
		},
		Session: SessionConfig{
			AgentBinary: "claude",
			WorkerArgs: map[string][]string{
				"opus": {"--model", "opus"},
				"auto": {},
				"glm":  {"--model", "glm"},
			},
			MachineArgs: map[string][]string{
				"mac": {},
				"vm":  {},
			},
			TmuxHistoryLimit:      10000,
			GracefulStopTimeoutMs: 500,
		},
		Webhook: WebhookConfig{
			URL:                       "",
			Secret:                    "",
			RequestTimeoutMs:          10000,
			RetrySweepIntervalMinutes: 5,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// SetDefaults registers default values with viper.
func SetDefaults() {
	defaults := Default()

	// Paths defaults
	viper.SetDefault("paths.state_file", defaults.Paths.StateFile)
	viper.SetDefault("paths.log_dir", defaults.Paths.LogDir)
	viper.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
	viper.SetDefault("paths.repo_dir", defaults.Paths.RepoDir)

	// Session defaults
	viper.SetDefault("session.agent_binary", defaults.Session.AgentBinary)
	viper.SetDefault("session.worker_args", defaults.Session.WorkerArgs)
	viper.SetDefault("session.machine_args", defaults.Session.MachineArgs)
	viper.SetDefault("session.tmux_history_limit", defaults.Session.TmuxHistoryLimit)
	viper.SetDefault("session.graceful_stop_timeout_ms", defaults.Session.GracefulStopTimeoutMs)

	// Webhook defaults
	viper.SetDefault("webhook.url", defaults.Webhook.URL)
	viper.SetDefault("webhook.secret", defaults.Webhook.Secret)
	viper.SetDefault("webhook.request_timeout_ms", defaults.Webhook.RequestTimeoutMs)
	viper.SetDefault("webhook.retry_sweep_interval_minutes", defaults.Webhook.RetrySweepIntervalMinutes)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the orchestrator's config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "intexuraos")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".intexuraos"
	}
	return filepath.Join(home, ".config", "intexuraos")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveStateFile returns the resolved state file path, defaulting to
// state.json under the config directory.
func (p *PathsConfig) ResolveStateFile() string {
	if p.StateFile == "" {
		return filepath.Join(ConfigDir(), "state.json")
	}
	return expandHome(p.StateFile)
}

// ResolveLogDir returns the resolved task-log directory, defaulting to
// logs under the config directory.
func (p *PathsConfig) ResolveLogDir() string {
	if p.LogDir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return expandHome(p.LogDir)
}

// ResolveWorktreeDir returns the resolved worktree base directory.
func (p *PathsConfig) ResolveWorktreeDir() string {
	return expandHome(p.WorktreeDir)
}

// ResolveRepoDir returns the resolved repository path, or "" when automatic
// worktree creation is disabled.
func (p *PathsConfig) ResolveRepoDir() string {
	if p.RepoDir == "" {
		return ""
	}
	return expandHome(p.RepoDir)
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
