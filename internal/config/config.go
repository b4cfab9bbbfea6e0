// Package config handles configuration loading and management for qforge.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/qforge/pkg/models"
)

// ProjectConfigName is the per-project override file searched for in the
// working directory and its parents.
const ProjectConfigName = ".qforge.yaml"

// Config holds all configuration for qforge.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Failover     FailoverConfig     `mapstructure:"failover"`
	Optimizer    OptimizerConfig    `mapstructure:"optimizer"`
	Workers      []models.Worker    `mapstructure:"workers"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Events       EventsConfig       `mapstructure:"events"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	TUI          TUIConfig          `mapstructure:"tui"`
	Log          LogConfig          `mapstructure:"log"`
}

// OrchestratorConfig holds workflow execution settings.
type OrchestratorConfig struct {
	DefaultStrategy string        `mapstructure:"default_strategy"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffUnit     time.Duration `mapstructure:"backoff_unit"`
	LoadPerTask     float64       `mapstructure:"load_per_task"`
}

// FailoverConfig holds the in-run recovery policy.
type FailoverConfig struct {
	Strategy  string `mapstructure:"strategy"`
	MaxRounds int    `mapstructure:"max_rounds"`
}

// OptimizerConfig holds local-search settings.
type OptimizerConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// AuditConfig controls the SQLite audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	Path    string `mapstructure:"path"`
}

// EventsConfig controls the NATS event publisher. An empty URL disables it.
type EventsConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// LogConfig holds debug log settings. An empty path means the project log directory.
type LogConfig struct {
	Path  string `mapstructure:"path"`
	Level string `mapstructure:"level"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, QFORGE_*)
// 2. Project config (.qforge.yaml in current directory or parent)
// 3. User config (~/.config/qforge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// LoadUser loads only the user config file over the built-in defaults,
// ignoring project overrides and the environment. A missing file yields the
// defaults. Use it when the result is going to be written back with Save.
func LoadUser() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	path := GetUserConfigPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return unmarshal(v)
		}
		return nil, fmt.Errorf("checking user config: %w", err)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading user config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Audit.Path = expandEnv(cfg.Audit.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("QFORGE")
	v.AutomaticEnv()

	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("anthropic.use_bedrock", "QFORGE_USE_BEDROCK")
	_ = v.BindEnv("anthropic.aws_region", "AWS_REGION")
	_ = v.BindEnv("anthropic.aws_profile", "AWS_PROFILE")
	_ = v.BindEnv("events.nats_url", "NATS_URL")
	_ = v.BindEnv("log.level", "QFORGE_LOG_LEVEL")
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	if s := models.Strategy(c.Orchestrator.DefaultStrategy); !s.Valid() {
		return fmt.Errorf("orchestrator.default_strategy: unknown strategy %q", c.Orchestrator.DefaultStrategy)
	}
	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("orchestrator.max_attempts: must be at least 1, got %d", c.Orchestrator.MaxAttempts)
	}
	if c.Orchestrator.LoadPerTask < 0 || c.Orchestrator.LoadPerTask > 1 {
		return fmt.Errorf("orchestrator.load_per_task: must be within [0, 1], got %v", c.Orchestrator.LoadPerTask)
	}
	switch c.Failover.Strategy {
	case "redirect", "retry", "queue", "escalate":
	default:
		return fmt.Errorf("failover.strategy: unknown strategy %q", c.Failover.Strategy)
	}
	if c.Failover.MaxRounds < 0 {
		return fmt.Errorf("failover.max_rounds: must not be negative")
	}
	switch c.Audit.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("audit.driver: expected sqlite or sqlite3, got %q", c.Audit.Driver)
	}
	for i, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("workers[%d]: id is required", i)
		}
		for _, capability := range w.Capabilities {
			if !capability.Valid() {
				return fmt.Errorf("workers[%d] (%s): unknown capability %q", i, w.ID, capability)
			}
		}
	}
	return nil
}

// Save writes every section of cfg to the user config file. Keys already in
// the file that qforge does not know about are kept.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading existing config: %w", err)
		}
	}

	v.Set("orchestrator.default_strategy", cfg.Orchestrator.DefaultStrategy)
	v.Set("orchestrator.max_attempts", cfg.Orchestrator.MaxAttempts)
	v.Set("orchestrator.backoff_unit", cfg.Orchestrator.BackoffUnit.String())
	v.Set("orchestrator.load_per_task", cfg.Orchestrator.LoadPerTask)
	v.Set("failover.strategy", cfg.Failover.Strategy)
	v.Set("failover.max_rounds", cfg.Failover.MaxRounds)
	v.Set("optimizer.max_iterations", cfg.Optimizer.MaxIterations)
	v.Set("workers", workerSettings(cfg.Workers))
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("audit.enabled", cfg.Audit.Enabled)
	v.Set("audit.driver", cfg.Audit.Driver)
	v.Set("audit.path", cfg.Audit.Path)
	v.Set("events.nats_url", cfg.Events.NATSURL)
	v.Set("events.subject", cfg.Events.Subject)
	v.Set("metrics.addr", cfg.Metrics.Addr)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)

	return v.WriteConfig()
}

// workerSettings converts workers to plain maps keyed like the config file,
// leaving out unset optional fields.
func workerSettings(workers []models.Worker) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(workers))
	for _, w := range workers {
		caps := make([]string, 0, len(w.Capabilities))
		for _, c := range w.Capabilities {
			caps = append(caps, string(c))
		}
		m := map[string]interface{}{
			"id":           w.ID,
			"capabilities": caps,
		}
		if w.Specialization != "" {
			m["specialization"] = string(w.Specialization)
		}
		if w.Status != "" {
			m["status"] = string(w.Status)
		}
		if w.Load != 0 {
			m["load"] = w.Load
		}
		if w.Performance != 0 {
			m["performance"] = w.Performance
		}
		if w.CostEfficiency != 0 {
			m["cost_efficiency"] = w.CostEfficiency
		}
		if w.Model != "" {
			m["model"] = w.Model
		}
		out = append(out, m)
	}
	return out
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("orchestrator.default_strategy", d.Orchestrator.DefaultStrategy)
	v.SetDefault("orchestrator.max_attempts", d.Orchestrator.MaxAttempts)
	v.SetDefault("orchestrator.backoff_unit", "1s")
	v.SetDefault("orchestrator.load_per_task", d.Orchestrator.LoadPerTask)

	v.SetDefault("failover.strategy", d.Failover.Strategy)
	v.SetDefault("failover.max_rounds", d.Failover.MaxRounds)

	v.SetDefault("optimizer.max_iterations", d.Optimizer.MaxIterations)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.driver", d.Audit.Driver)
	v.SetDefault("audit.path", d.Audit.Path)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject", d.Events.Subject)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("log.path", "")
	v.SetDefault("log.level", d.Log.Level)
}

// getUserConfigDir returns the XDG config directory for qforge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "qforge")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "qforge")
	}
	return filepath.Join(home, ".config", "qforge")
}

// findProjectConfig searches for .qforge.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			DefaultStrategy: string(models.StrategyAdaptive),
			MaxAttempts:     models.DefaultMaxAttempts,
			BackoffUnit:     time.Second,
			LoadPerTask:     0.1,
		},
		Failover: FailoverConfig{
			Strategy:  "redirect",
			MaxRounds: 1,
		},
		Optimizer: OptimizerConfig{
			MaxIterations: 10,
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Audit: AuditConfig{
			Enabled: true,
			Driver:  "sqlite",
			Path:    filepath.Join(".qforge", "audit.db"),
		},
		Events: EventsConfig{
			Subject: "qforge.events",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
