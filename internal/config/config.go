package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the process configuration. Runtime knobs (prompt, model,
// sync interval, process_after) live in the settings table instead, so they
// can be edited without a restart.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite database path
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// FeedsConfig holds the feed source configuration
type FeedsConfig struct {
	Sources []FeedSource `mapstructure:"sources"`
}

// FeedSource represents a single subscribed feed
type FeedSource struct {
	ID   int64  `mapstructure:"id"`
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// PipelineConfig holds ingestion/classification tuning
type PipelineConfig struct {
	BatchSize int `mapstructure:"batch_size"` // entries classified per pass
}

// SchedulerConfig holds background job settings. The sync interval itself is
// a runtime setting; classify_cron controls how often the classification
// sweep fires.
type SchedulerConfig struct {
	ClassifyCron string `mapstructure:"classify_cron"`
	HealthPort   string `mapstructure:"health_port"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// OutputConfig holds syndication feed settings
type OutputConfig struct {
	Title    string `mapstructure:"title"`
	Link     string `mapstructure:"link"`
	Author   string `mapstructure:"author"`
	MaxItems int    `mapstructure:"max_items"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in current directory and configs folder
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		// Also check user's home directory
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".feedsift"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("FEEDSIFT")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("anthropic.api_key", "FEEDSIFT_ANTHROPIC_API_KEY")
	v.BindEnv("database.dsn", "FEEDSIFT_DATABASE_DSN")
	v.BindEnv("logging.level", "FEEDSIFT_LOGGING_LEVEL")
	v.BindEnv("scheduler.health_port", "FEEDSIFT_SCHEDULER_HEALTH_PORT")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dsn", "./data/feedsift.db")

	// Anthropic defaults
	v.SetDefault("anthropic.max_tokens", 500)

	// Pipeline defaults
	v.SetDefault("pipeline.batch_size", 10)

	// Scheduler defaults
	v.SetDefault("scheduler.classify_cron", "* * * * *") // every minute
	v.SetDefault("scheduler.health_port", "10000")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	// Output feed defaults
	v.SetDefault("output.title", "feedsift signal")
	v.SetDefault("output.link", "http://localhost:8000/feed")
	v.SetDefault("output.author", "feedsift")
	v.SetDefault("output.max_items", 50)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if len(c.Feeds.Sources) == 0 {
		return fmt.Errorf("at least one feed source is required")
	}
	return nil
}
