// Package config loads the stockpile configuration from a YAML file with
// environment variable overrides for credentials and connection settings.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the collection pipeline.
type Config struct {
	Alpaca      Alpaca      `yaml:"alpaca"`
	Database    Database    `yaml:"database"`
	Logging     Logging     `yaml:"logging"`
	Collect     Collect     `yaml:"collect"`
	Maintenance Maintenance `yaml:"maintenance"`
}

// Alpaca holds credentials and endpoints for the market-data provider.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Database holds PostgreSQL connection and pool settings.
type Database struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	PoolSize    int    `yaml:"pool_size"`
	MaxOverflow int    `yaml:"max_overflow"`
}

// DSN returns a PostgreSQL connection string for the configured database.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MaxConns returns the pool's connection cap: the base pool size plus the
// allowed overflow.
func (d Database) MaxConns() int32 {
	return int32(d.PoolSize + d.MaxOverflow)
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Collect holds parameters for the collection flow.
type Collect struct {
	Interval        string `yaml:"interval"`
	LookbackDays    int    `yaml:"lookback_days"`
	BatchSize       int    `yaml:"batch_size"`
	MaxWorkers      int    `yaml:"max_workers"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Maintenance holds parameters for the maintenance sweep.
type Maintenance struct {
	RetentionDays int `yaml:"retention_days"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		cfg.Alpaca.SecretKey = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.SecretKey = v
	}
}

// applyDefaults fills zero-valued fields with usable defaults so a minimal
// config file still produces a working pipeline.
func applyDefaults(cfg *Config) {
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if cfg.Alpaca.DataURL == "" {
		cfg.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.PoolSize == 0 {
		cfg.Database.PoolSize = 5
	}
	if cfg.Database.MaxOverflow == 0 {
		cfg.Database.MaxOverflow = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Collect.Interval == "" {
		cfg.Collect.Interval = "1h"
	}
	if cfg.Collect.LookbackDays == 0 {
		cfg.Collect.LookbackDays = 1
	}
	if cfg.Collect.BatchSize == 0 {
		cfg.Collect.BatchSize = 100
	}
	if cfg.Collect.MaxWorkers == 0 {
		cfg.Collect.MaxWorkers = 3
	}
	if cfg.Collect.RateLimitPerMin == 0 {
		cfg.Collect.RateLimitPerMin = 200
	}

	if cfg.Maintenance.RetentionDays == 0 {
		cfg.Maintenance.RetentionDays = 730
	}
}
