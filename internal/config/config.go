// Package config provides configuration loading and validation for GroupPulse.
// Values are read from config.yaml with PULSE_* environment variable overrides
// and validated with struct tags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LogConfig controls log verbosity and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds the bot credentials for the stream listener.
type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

// GeminiConfig holds settings for the Gemini-backed classifier and
// reply generator.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	Model             string        `mapstructure:"model" validate:"required"`
	Temperature       float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0"`
}

// PipelineConfig tunes the ingestion pipelines.
type PipelineConfig struct {
	OrgID           string        `mapstructure:"org_id" validate:"required"`
	PageSize        int           `mapstructure:"page_size" validate:"min=1,max=1000"`
	MaxConcurrent   int64         `mapstructure:"max_concurrent" validate:"min=1,max=100"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout" validate:"min=1s,max=5m"`
	PageRetries     int           `mapstructure:"page_retries" validate:"min=0,max=10"`
	CacheSize       int           `mapstructure:"cache_size" validate:"min=0"`
	AutoReply       bool          `mapstructure:"auto_reply"`
	ReplyContext    int           `mapstructure:"reply_context" validate:"min=1,max=100"`
}

// TaskConfig describes one scheduled task entry.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their cron configuration.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// Load reads configuration from the given path (falling back to defaults when
// the file does not exist), applies PULSE_* environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		// Missing config file is fine, defaults plus env vars apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("database.path", "grouppulse.db")

	v.SetDefault("telegram.enabled", true)

	// Registering empty defaults makes the env-only keys visible to
	// Unmarshal when no config file sets them.
	v.SetDefault("telegram.token", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("pipeline.org_id", "")

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.timeout", 2*time.Minute)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	v.SetDefault("pipeline.page_size", 200)
	v.SetDefault("pipeline.max_concurrent", 10)
	v.SetDefault("pipeline.classify_timeout", 30*time.Second)
	v.SetDefault("pipeline.page_retries", 2)
	v.SetDefault("pipeline.cache_size", 1024)
	v.SetDefault("pipeline.auto_reply", false)
	v.SetDefault("pipeline.reply_context", 30)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"sql_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
		"daily_analysis":  {Enabled: true, Schedule: "0 30 0 * * *"},
	})
}
