package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when WORKLOAD_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	App struct {
		Name                 string `yaml:"name"`
		Timezone             string `yaml:"timezone"`
		PasswordResetEnabled bool   `yaml:"password_reset_enabled"`
		OptionsPath          string `yaml:"options_path"`
	} `yaml:"app"`

	HTTP struct {
		Address        string  `yaml:"address"`
		APIKey         string  `yaml:"api_key"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"http"`

	Backend struct {
		BaseURL                 string `yaml:"base_url"`
		APIKey                  string `yaml:"api_key"`
		TimeoutSeconds          int    `yaml:"timeout_seconds"`
		ProjectsCacheTTLSeconds int    `yaml:"projects_cache_ttl_seconds"`
	} `yaml:"backend"`

	Redis struct {
		Address           string `yaml:"address"`
		Password          string `yaml:"password"`
		DB                int    `yaml:"db"`
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	} `yaml:"redis"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		RetentionDays int    `yaml:"retention_days"`
		ExportOnStart bool   `yaml:"export_on_start"`
		ReportDir     string `yaml:"report_dir"`
	} `yaml:"audit"`

	Telegram struct {
		Enabled  bool    `yaml:"enabled"`
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the YAML config at path, expanding ${ENV} placeholders.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if _, err = time.LoadLocation(cfg.App.Timezone); err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	if cfg.Backend.BaseURL == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}

	if cfg.Database.Path != ":memory:" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "workload"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.App.OptionsPath == "" {
		c.App.OptionsPath = "configs/options.yaml"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 20
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/workload.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 31
	}
	if c.Audit.ReportDir == "" {
		c.Audit.ReportDir = "data/reports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Location returns the zone "today" is computed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

func (c *Config) ProjectsCacheTTL() time.Duration {
	if c.Backend.ProjectsCacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Backend.ProjectsCacheTTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Redis.SessionTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.SessionTTLMinutes) * time.Minute
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
