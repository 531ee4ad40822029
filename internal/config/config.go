package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Hermes    HermesConfig    `yaml:"hermes"`
	Selection SelectionConfig `yaml:"selection"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port               int    `yaml:"port"`
	MetricsPort        int    `yaml:"metrics_port"`
	AdminToken         string `yaml:"admin_token"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`

	// Browser origins allowed to call the API. Empty disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type HermesConfig struct {
	URL string `yaml:"url"`
}

type SelectionConfig struct {
	ExemptClient       string `yaml:"exempt_client"`
	ExemptProjectIDs   []int  `yaml:"exempt_project_ids"`
	UnknownAgentID     string `yaml:"unknown_agent_id"`
	MinDurationSeconds int    `yaml:"min_duration_seconds"`
	MinFileSizeBytes   int64  `yaml:"min_file_size_bytes"`
	InsertConcurrency  int    `yaml:"insert_concurrency"`
}

type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	RunHourUTC      int  `yaml:"run_hour_utc"`
	CheckIntervalMs int  `yaml:"check_interval_ms"`
	MaxCatchUpDays  int  `yaml:"max_catch_up_days"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Scheduler.CheckIntervalMs) * time.Millisecond
}

// LogLevel maps the configured level name to a slog level, defaulting to
// info for unknown names.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
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

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               8700,
			MetricsPort:        8701,
			RateLimitPerMinute: 120,
		},
		Database: DatabaseConfig{
			Migrate: true,
		},
		Hermes: HermesConfig{
			URL: "nats://localhost:4222",
		},
		Selection: SelectionConfig{
			ExemptClient:       "lv",
			ExemptProjectIDs:   []int{34, 35},
			UnknownAgentID:     "-1",
			MinDurationSeconds: 60,
			MinFileSizeBytes:   10240,
			InsertConcurrency:  4,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			RunHourUTC:      6,
			CheckIntervalMs: 60000,
			MaxCatchUpDays:  6,
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

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler and selector cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.RunHourUTC < 0 || c.Scheduler.RunHourUTC > 23 {
		return fmt.Errorf("scheduler.run_hour_utc must be 0-23, got %d", c.Scheduler.RunHourUTC)
	}
	if c.Scheduler.Enabled && c.Scheduler.CheckIntervalMs <= 0 {
		return fmt.Errorf("scheduler.check_interval_ms must be positive, got %d", c.Scheduler.CheckIntervalMs)
	}
	if c.Selection.ExemptClient == "" {
		return fmt.Errorf("selection.exempt_client is required")
	}
	if c.Selection.MinDurationSeconds < 0 || c.Selection.MinFileSizeBytes < 0 {
		return fmt.Errorf("selection thresholds must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CALLAUDIT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("CALLAUDIT_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("CALLAUDIT_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("CALLAUDIT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CALLAUDIT_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, part := range strings.Split(v, ",") {
			if o := strings.TrimSpace(part); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	if v := os.Getenv("CALLAUDIT_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("CALLAUDIT_DATABASE_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Migrate = b
		}
	}
	if v := os.Getenv("CALLAUDIT_HERMES_URL"); v != "" {
		cfg.Hermes.URL = v
	}
	if v := os.Getenv("CALLAUDIT_EXEMPT_CLIENT"); v != "" {
		cfg.Selection.ExemptClient = v
	}
	if v := os.Getenv("CALLAUDIT_EXEMPT_PROJECT_IDS"); v != "" {
		var ids []int
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				ids = append(ids, n)
			}
		}
		cfg.Selection.ExemptProjectIDs = ids
	}
	if v := os.Getenv("CALLAUDIT_INSERT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Selection.InsertConcurrency = n
		}
	}
	if v := os.Getenv("CALLAUDIT_SCHEDULER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = b
		}
	}
	if v := os.Getenv("CALLAUDIT_RUN_HOUR_UTC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.RunHourUTC = n
		}
	}
	if v := os.Getenv("CALLAUDIT_CHECK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.CheckIntervalMs = n
		}
	}
	if v := os.Getenv("CALLAUDIT_MAX_CATCH_UP_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.MaxCatchUpDays = n
		}
	}
	if v := os.Getenv("CALLAUDIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
