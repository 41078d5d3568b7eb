package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Runner names accepted in enabled_runners.
const (
	RunnerWatcher  = "watcher"
	RunnerPipeline = "pipeline"
)

// Config is the top-level application configuration.
type Config struct {
	// RawDir is where freshly harvested messages land.
	RawDir string `mapstructure:"raw_dir"`
	// ProcessedDir holds downstream artifacts that gate re-ingestion.
	ProcessedDir string `mapstructure:"processed_dir"`

	// InboxURL is the mailbox view the watcher drives.
	InboxURL string `mapstructure:"inbox_url"`
	// ProcessedFolder is the mailbox folder conversations are moved to.
	ProcessedFolder string `mapstructure:"processed_folder"`

	// SessionBudgetMinutes bounds one browser session's lifetime.
	SessionBudgetMinutes int `mapstructure:"session_budget_minutes"`
	// PipelineIntervalSeconds is the downstream scan cadence.
	PipelineIntervalSeconds int `mapstructure:"pipeline_interval_seconds"`
	// PipelineWorkers bounds downstream decode parallelism.
	PipelineWorkers int `mapstructure:"pipeline_workers"`

	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"log_level"`

	// EnabledRunners selects which loops this process hosts.
	EnabledRunners []string `mapstructure:"enabled_runners"`
}

// SessionBudget returns the session budget as a duration.
func (c *Config) SessionBudget() time.Duration {
	return time.Duration(c.SessionBudgetMinutes) * time.Minute
}

// PipelineInterval returns the scan cadence as a duration.
func (c *Config) PipelineInterval() time.Duration {
	return time.Duration(c.PipelineIntervalSeconds) * time.Second
}

// RunnerEnabled reports whether the named runner is enabled.
func (c *Config) RunnerEnabled(name string) bool {
	for _, r := range c.EnabledRunners {
		if r == name {
			return true
		}
	}
	return false
}

func defaults() *Config {
	return &Config{
		RawDir:                  "~/data/emails/raw",
		ProcessedDir:            "~/data/emails/processed",
		InboxURL:                "",
		ProcessedFolder:         "Processed",
		SessionBudgetMinutes:    30,
		PipelineIntervalSeconds: 5,
		PipelineWorkers:         4,
		LogLevel:                "info",
		EnabledRunners:          []string{RunnerWatcher, RunnerPipeline},
	}
}

// Load reads configuration from the given YAML file. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("raw_dir", "~/data/emails/raw")
	v.SetDefault("processed_dir", "~/data/emails/processed")
	v.SetDefault("processed_folder", "Processed")
	v.SetDefault("session_budget_minutes", 30)
	v.SetDefault("pipeline_interval_seconds", 5)
	v.SetDefault("pipeline_workers", 4)
	v.SetDefault("log_level", "info")
	v.SetDefault("enabled_runners", []string{RunnerWatcher, RunnerPipeline})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
