// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // durable-source cache TTL
}

type ResolverConfig struct {
	APIKey     string  `yaml:"api_key"`
	BaseURL    string  `yaml:"base_url"`
	RatePerSec float64 `yaml:"rate_per_sec"` // upstream request budget
	Burst      int     `yaml:"burst"`
	MaxSeconds int     `yaml:"max_seconds"` // trim sources longer than this
}

type GenerationConfig struct {
	Backend      string        `yaml:"backend"` // queue | veo
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Endpoint     string        `yaml:"endpoint"` // queue path or veo model name
	PollInterval time.Duration `yaml:"poll_interval"`
}

type StorageConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Bucket  string `yaml:"bucket"`
}

type PublisherConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	ChannelID     int64  `yaml:"channel_id"`
}

type CaptionsConfig struct {
	OpenAIKey string `yaml:"openai_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
}

type WebConfig struct {
	Port          int    `yaml:"port"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
}

type SweepConfig struct {
	Interval   time.Duration `yaml:"interval"`    // recovery scan period
	StuckAfter time.Duration `yaml:"stuck_after"` // processing age before a job counts as stuck
	Workers    int           `yaml:"workers"`     // resume worker pool size
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Generation GenerationConfig `yaml:"generation"`
	Storage    StorageConfig    `yaml:"storage"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Captions   CaptionsConfig   `yaml:"captions"`
	Web        WebConfig        `yaml:"web"`
	Sweep      SweepConfig      `yaml:"sweep"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 8
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Resolver.RatePerSec <= 0 {
		cfg.Resolver.RatePerSec = 1
	}
	if cfg.Resolver.Burst <= 0 {
		cfg.Resolver.Burst = 1
	}
	if cfg.Resolver.MaxSeconds <= 0 {
		cfg.Resolver.MaxSeconds = 8
	}
	if cfg.Generation.Backend == "" {
		cfg.Generation.Backend = "queue"
	}
	if cfg.Generation.PollInterval <= 0 {
		cfg.Generation.PollInterval = 3 * time.Second
	}
	if cfg.Captions.Model == "" {
		cfg.Captions.Model = "gpt-4o-mini"
	}
	if cfg.Web.Port <= 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Sweep.Interval <= 0 {
		cfg.Sweep.Interval = 5 * time.Minute
	}
	if cfg.Sweep.StuckAfter <= 0 {
		cfg.Sweep.StuckAfter = 15 * time.Minute
	}
	if cfg.Sweep.Workers <= 0 {
		cfg.Sweep.Workers = 4
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Generation.APIKey == "" {
		return nil, errors.New("generation.api_key is required")
	}
	if cfg.Storage.BaseURL == "" {
		return nil, errors.New("storage.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
