package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/qforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Show or change configuration",
	Long: `View or modify qforge configuration.

Without arguments, displays the effective configuration after defaults, the
user config file, project overrides and environment variables.
With one argument (key), displays the effective value for that key.
With two arguments (key value), sets the value in the user config file.

Configuration is stored at ~/.config/qforge/config.yaml
Project-specific overrides can be placed in .qforge.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			return setConfigKey(args[0], args[1])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}
		displayAllConfig(cfg)
		return nil
	},
}

// setConfigKey applies one value to the user config file only, so project
// overrides and environment variables are never persisted.
func setConfigKey(key, value string) error {
	cfg, err := config.LoadUser()
	if err != nil {
		return err
	}
	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	printStatus("✓", fmt.Sprintf("%s = %s", strings.ToLower(key), displayValue(key, value)), color.FgGreen)
	return nil
}

func displayValue(key, value string) string {
	if strings.EqualFold(key, "anthropic.api_key") {
		return config.MaskAPIKey(value)
	}
	return value
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		k, err := config.GetAPIKey(cfg)
		if err != nil {
			return "(not set)", nil
		}
		return config.MaskAPIKey(k), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "orchestrator.default_strategy":
		return cfg.Orchestrator.DefaultStrategy, nil
	case "orchestrator.max_attempts":
		return strconv.Itoa(cfg.Orchestrator.MaxAttempts), nil
	case "orchestrator.backoff_unit":
		return cfg.Orchestrator.BackoffUnit.String(), nil
	case "orchestrator.load_per_task":
		return strconv.FormatFloat(cfg.Orchestrator.LoadPerTask, 'f', -1, 64), nil
	case "failover.strategy":
		return cfg.Failover.Strategy, nil
	case "failover.max_rounds":
		return strconv.Itoa(cfg.Failover.MaxRounds), nil
	case "optimizer.max_iterations":
		return strconv.Itoa(cfg.Optimizer.MaxIterations), nil
	case "audit.enabled":
		return strconv.FormatBool(cfg.Audit.Enabled), nil
	case "audit.driver":
		return cfg.Audit.Driver, nil
	case "audit.path":
		return cfg.Audit.Path, nil
	case "events.nats_url":
		return cfg.Events.NATSURL, nil
	case "events.subject":
		return cfg.Events.Subject, nil
	case "metrics.addr":
		return cfg.Metrics.Addr, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "log.path":
		return cfg.Log.Path, nil
	case "log.level":
		return cfg.Log.Level, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for anthropic.use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "orchestrator.default_strategy":
		cfg.Orchestrator.DefaultStrategy = value
	case "orchestrator.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_attempts: %w", err)
		}
		cfg.Orchestrator.MaxAttempts = n
	case "orchestrator.backoff_unit":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for backoff_unit: %w", err)
		}
		cfg.Orchestrator.BackoffUnit = d
	case "orchestrator.load_per_task":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for load_per_task: %w", err)
		}
		cfg.Orchestrator.LoadPerTask = f
	case "failover.strategy":
		cfg.Failover.Strategy = value
	case "failover.max_rounds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_rounds: %w", err)
		}
		cfg.Failover.MaxRounds = n
	case "optimizer.max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_iterations: %w", err)
		}
		cfg.Optimizer.MaxIterations = n
	case "audit.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for audit.enabled: %w", err)
		}
		cfg.Audit.Enabled = b
	case "audit.driver":
		cfg.Audit.Driver = value
	case "audit.path":
		cfg.Audit.Path = value
	case "events.nats_url":
		cfg.Events.NATSURL = value
	case "events.subject":
		cfg.Events.Subject = value
	case "metrics.addr":
		cfg.Metrics.Addr = value
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	case "log.path":
		cfg.Log.Path = value
	case "log.level":
		cfg.Log.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("user config: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("project config: %s\n", p)
	}
	fmt.Println()

	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if key, err := config.GetAPIKey(cfg); err == nil {
		apiKeyDisplay = config.MaskAPIKey(key)
	}
	fmt.Printf("anthropic.api_key: %s (source: %s)\n", apiKeyDisplay, config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	if cfg.Anthropic.UseBedrock {
		fmt.Printf("anthropic.aws_region: %s\n", valueOrUnset(cfg.Anthropic.AWSRegion))
		fmt.Printf("anthropic.aws_profile: %s\n", valueOrUnset(cfg.Anthropic.AWSProfile))
	}
	fmt.Printf("orchestrator.default_strategy: %s\n", cfg.Orchestrator.DefaultStrategy)
	fmt.Printf("orchestrator.max_attempts: %d\n", cfg.Orchestrator.MaxAttempts)
	fmt.Printf("orchestrator.backoff_unit: %s\n", cfg.Orchestrator.BackoffUnit)
	fmt.Printf("orchestrator.load_per_task: %.2f\n", cfg.Orchestrator.LoadPerTask)
	fmt.Printf("failover.strategy: %s\n", cfg.Failover.Strategy)
	fmt.Printf("failover.max_rounds: %d\n", cfg.Failover.MaxRounds)
	fmt.Printf("optimizer.max_iterations: %d\n", cfg.Optimizer.MaxIterations)
	fmt.Printf("audit.enabled: %t\n", cfg.Audit.Enabled)
	fmt.Printf("audit.driver: %s\n", cfg.Audit.Driver)
	fmt.Printf("audit.path: %s\n", cfg.Audit.Path)
	fmt.Printf("events.nats_url: %s\n", valueOrUnset(cfg.Events.NATSURL))
	fmt.Printf("events.subject: %s\n", cfg.Events.Subject)
	fmt.Printf("metrics.addr: %s\n", valueOrUnset(cfg.Metrics.Addr))
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("log.path: %s\n", valueOrUnset(cfg.Log.Path))
	fmt.Printf("log.level: %s\n", cfg.Log.Level)

	fmt.Printf("workers: %d configured\n", len(cfg.Workers))
	for _, w := range cfg.Workers {
		fmt.Fprintf(os.Stdout, "  - %s %v (specialization: %s)\n", w.ID, w.Capabilities, valueOrUnset(string(w.Specialization)))
	}
}

func valueOrUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
