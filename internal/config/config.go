// internal/config/config.go
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the crawl engine's external configuration, bound from an
// optional .env file and the environment via viper. No command-line flags
// are parsed.
type Config struct {
	TotalRepositories      uint64   `mapstructure:"TOTAL_REPOSITORIES"`
	SeedQueries            []string `mapstructure:"SEED_QUERIES"`
	NumberWorkers          int      `mapstructure:"NUMBER_WORKERS"`
	MaxRepositoriesPerPage int      `mapstructure:"MAX_REPOSITORY_FETCHED_PER_REQUEST"`
	PostgresConnString     string   `mapstructure:"DB_URL"`
	GithubAPIToken         string   `mapstructure:"GITHUB_API_TOKEN"`
	LogLevel               string   `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from an optional .env file and the
// environment, validating required fields before returning.
func LoadConfig() (*Config, error) {
	viper.SetDefault("TOTAL_REPOSITORIES", 100000)
	viper.SetDefault("NUMBER_WORKERS", 1)
	viper.SetDefault("MAX_REPOSITORY_FETCHED_PER_REQUEST", 100)
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // optional; environment variables still apply if absent

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Keys without a default are invisible to Unmarshal unless bound.
	_ = viper.BindEnv("SEED_QUERIES")
	_ = viper.BindEnv("DB_URL")
	_ = viper.BindEnv("GITHUB_API_TOKEN")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.PostgresConnString == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.GithubAPIToken == "" {
		return errors.New("GITHUB_API_TOKEN is a required configuration field")
	}
	if len(c.SeedQueries) == 0 {
		return errors.New("SEED_QUERIES must contain at least one query")
	}
	if c.NumberWorkers < 1 {
		return errors.New("NUMBER_WORKERS must be at least 1")
	}
	if c.MaxRepositoriesPerPage < 1 || c.MaxRepositoriesPerPage > 100 {
		return errors.New("MAX_REPOSITORY_FETCHED_PER_REQUEST must be between 1 and 100")
	}
	switch c.LogLevel {
	case "warn", "info", "debug":
	default:
		return errors.New("LOG_LEVEL must be one of: warn, info, debug")
	}
	return nil
}
