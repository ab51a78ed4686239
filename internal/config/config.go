// internal/config/config.go
package config

import (
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
	DBURL              string        `mapstructure:"DB_URL"`
	RedisURL           string        `mapstructure:"REDIS_URL"`
	ServerAddr         string        `mapstructure:"SERVER_ADDR"`
	WorkDir            string        `mapstructure:"WORK_DIR"`
	CatalogFile        string        `mapstructure:"CATALOG_FILE"`
	RefreshInterval    time.Duration `mapstructure:"REFRESH_INTERVAL"`
	RefreshConcurrency int           `mapstructure:"REFRESH_CONCURRENCY"`
	ExtractTimeout     time.Duration `mapstructure:"EXTRACT_TIMEOUT"`
	CacheTTL           time.Duration `mapstructure:"CACHE_TTL"`
	ErrorLogDir        string        `mapstructure:"ERROR_LOG_DIR"`
	GithubToken        string        `mapstructure:"GITHUB_TOKEN"`
	CORSAllowedOrigins []string      `mapstructure:"CORS_ALLOWED_ORIGINS"`
	OTelEnabled        bool          `mapstructure:"OTEL_ENABLED"`
	ServiceName        string        `mapstructure:"SERVICE_NAME"`

	v *viper.Viper
}

var keys = []string{
	"LOG_LEVEL", "DB_URL", "REDIS_URL", "SERVER_ADDR", "WORK_DIR", "CATALOG_FILE",
	"REFRESH_INTERVAL", "REFRESH_CONCURRENCY", "EXTRACT_TIMEOUT", "CACHE_TTL",
	"ERROR_LOG_DIR", "GITHUB_TOKEN", "CORS_ALLOWED_ORIGINS", "OTEL_ENABLED", "SERVICE_NAME",
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	return load(".")
}

func load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("WORK_DIR", "/tmp/rust_projects")
	v.SetDefault("CATALOG_FILE", "./data/projects.txt")
	v.SetDefault("REFRESH_INTERVAL", "0s")
	v.SetDefault("REFRESH_CONCURRENCY", runtime.NumCPU()*2)
	v.SetDefault("EXTRACT_TIMEOUT", "0s")
	v.SetDefault("CACHE_TTL", "0s")
	v.SetDefault("ERROR_LOG_DIR", "logs")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("SERVICE_NAME", "unsafe-stats")

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(configPath)
	_ = v.ReadInConfig() // Ignore error if file not found

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by Unmarshal once bound.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := Config{v: v}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.RefreshConcurrency <= 0 {
		return nil, errors.New("REFRESH_CONCURRENCY must be a positive integer")
	}
	if cfg.RefreshInterval < 0 || cfg.ExtractTimeout < 0 || cfg.CacheTTL < 0 {
		return nil, errors.New("REFRESH_INTERVAL, EXTRACT_TIMEOUT and CACHE_TTL must not be negative")
	}
	if cfg.WorkDir == "" {
		return nil, errors.New("WORK_DIR must not be empty")
	}

	return &cfg, nil
}
