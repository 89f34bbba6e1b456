package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Triage/internal/scoring"
)

type Config struct {
	Server     ServerConfig                 `yaml:"server"`
	Database   DatabaseConfig               `yaml:"database"`
	Hermes     HermesConfig                 `yaml:"hermes"`
	Analysis   AnalysisConfig               `yaml:"analysis"`
	Strategies map[string]scoring.WeightSet `yaml:"strategies"`
	Logging    LoggingConfig                `yaml:"logging"`
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	MetricsPort        int    `yaml:"metrics_port"`
	AdminToken         string `yaml:"admin_token"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL             string `yaml:"url"`
	SQLitePath      string `yaml:"sqlite_path"`
	RetentionDays   int    `yaml:"retention_days"`
	PruneIntervalMs int    `yaml:"prune_interval_ms"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type AnalysisConfig struct {
	MaxTasks        int    `yaml:"max_tasks"`
	DefaultTop      int    `yaml:"default_top"`
	CacheSize       int    `yaml:"cache_size"`
	Timezone        string `yaml:"timezone"`
	DefaultStrategy string `yaml:"default_strategy"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) PruneInterval() time.Duration {
	return time.Duration(c.Database.PruneIntervalMs) * time.Millisecond
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
}

// Location returns the zone used to decide what "today" is for requests that
// do not carry a reference date.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Analysis.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns the current calendar date in the configured zone.
// The result is midnight UTC of that date, matching scoring.ParseDate.
func (c *Config) Today() time.Time {
	y, m, d := time.Now().In(c.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               8700,
			MetricsPort:        8701,
			RateLimitPerMinute: 120,
		},
		Database: DatabaseConfig{
			SQLitePath:      "triage.db",
			RetentionDays:   30,
			PruneIntervalMs: 3600000,
		},
		Analysis: AnalysisConfig{
			MaxTasks:        1000,
			DefaultTop:      3,
			CacheSize:       256,
			Timezone:        "UTC",
			DefaultStrategy: "smart",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Analysis.MaxTasks <= 0 {
		return fmt.Errorf("analysis.max_tasks must be positive, got %d", c.Analysis.MaxTasks)
	}
	if c.Analysis.DefaultTop <= 0 {
		return fmt.Errorf("analysis.default_top must be positive, got %d", c.Analysis.DefaultTop)
	}
	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("server.rate_limit_per_minute must be positive, got %d", c.Server.RateLimitPerMinute)
	}
	if _, err := time.LoadLocation(c.Analysis.Timezone); err != nil {
		return fmt.Errorf("analysis.timezone: %w", err)
	}
	for name, w := range c.Strategies {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("strategy %q: %w", name, err)
		}
	}
	return nil
}

// NewLogger builds the process logger from the logging section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Logging.Level)}
	if strings.EqualFold(c.Logging.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TRIAGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("TRIAGE_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("TRIAGE_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("TRIAGE_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("TRIAGE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TRIAGE_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TRIAGE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.RetentionDays = n
		}
	}
	if v := os.Getenv("TRIAGE_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("TRIAGE_MAX_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.MaxTasks = n
		}
	}
	if v := os.Getenv("TRIAGE_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.CacheSize = n
		}
	}
	if v := os.Getenv("TRIAGE_TIMEZONE"); v != "" {
		cfg.Analysis.Timezone = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRIAGE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
