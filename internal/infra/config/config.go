package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full application configuration, loaded from a YAML
// file with environment-variable overrides.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	StatusAPI StatusAPIConfig `mapstructure:"status_api" yaml:"status_api"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
}

// CacheConfig controls where artifacts and sidecars are stored.
type CacheConfig struct {
	Root        string `mapstructure:"root" yaml:"root"`
	MaxWorkers  int64  `mapstructure:"max_workers" yaml:"max_workers"`
}

// NetworkConfig controls the ambient networking policy the connect
// phase and URL prober consult.
type NetworkConfig struct {
	AllowRedirect  bool   `mapstructure:"allow_redirect" yaml:"allow_redirect"`
	OfflineForced  bool   `mapstructure:"offline_forced" yaml:"offline_forced"`
	RequestTimeout string `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LogConfig mirrors the teacher's logging knobs.
type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// StatusAPIConfig controls the optional read-only HTTP status
// surface.
type StatusAPIConfig struct {
	Enabled       bool    `mapstructure:"enabled" yaml:"enabled"`
	Bind          string  `mapstructure:"bind" yaml:"bind"`
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
}

// CatalogConfig controls the GC ledger database.
type CatalogConfig struct {
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	SweepMinutes int   `mapstructure:"sweep_minutes" yaml:"sweep_minutes"`
}

// Load reads configuration from path (defaulting to config.yaml, then
// /config/config.yaml for containerized deployments), applies
// RESCACHE_-prefixed environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else {
				path = ""
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()

	v.SetDefault("cache.root", "./cache")
	v.SetDefault("cache.max_workers", 4)
	v.SetDefault("network.allow_redirect", true)
	v.SetDefault("network.offline_forced", false)
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("log.path", "rescache.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("status_api.enabled", false)
	v.SetDefault("status_api.bind", ":8090")
	v.SetDefault("status_api.rate_per_second", 5.0)
	v.SetDefault("status_api.burst", 10)
	v.SetDefault("catalog.sqlite_path", "./cache/catalog.db")
	v.SetDefault("catalog.sweep_minutes", 10)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RESCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Cache.Root == "" {
		return fmt.Errorf("cache.root is required")
	}
	if c.Cache.MaxWorkers <= 0 {
		c.Cache.MaxWorkers = 4
	}
	if c.Catalog.SweepMinutes <= 0 {
		c.Catalog.SweepMinutes = 10
	}
	return nil
}
