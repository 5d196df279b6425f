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

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	StatusTTL time.Duration `yaml:"status_ttl"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	DefaultModel    string `yaml:"default_model"`
	ResearchModel   string `yaml:"research_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
}

// PipelineConfig tunes the stage orchestrator.
type PipelineConfig struct {
	QualityThreshold   float64            `yaml:"quality_threshold"`
	QualityWeights     map[string]float64 `yaml:"quality_weights"`
	MaxEnhancements    int                `yaml:"max_enhancements"`
	OnQualityExhausted string             `yaml:"on_quality_exhausted"` // continue | fail
	MaxRetries         int                `yaml:"max_retries"`
	RetryBackoff       time.Duration      `yaml:"retry_backoff"`
	MaxRetryBackoff    time.Duration      `yaml:"max_retry_backoff"`
	Workers            int                `yaml:"workers"` // dispatcher pool size
	Multimedia         bool               `yaml:"multimedia"`
	ResearchQueries    int                `yaml:"research_queries"`
	ResumeInterval     time.Duration      `yaml:"resume_interval"` // stale-run sweep period
	StaleAfter         time.Duration      `yaml:"stale_after"`
}

type NotifyConfig struct {
	TelegramToken   string  `yaml:"telegram_token"`
	TelegramChatIDs []int64 `yaml:"telegram_chat_ids"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Notify   NotifyConfig   `yaml:"notify"`
	Security SecurityConfig `yaml:"security"`

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
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.Port <= 0 {
		return nil, errors.New("server.port is required")
	}
	if cfg.Pipeline.OnQualityExhausted != "continue" && cfg.Pipeline.OnQualityExhausted != "fail" {
		return nil, fmt.Errorf("pipeline.on_quality_exhausted must be continue or fail, got %q", cfg.Pipeline.OnQualityExhausted)
	}
	if cfg.Pipeline.QualityThreshold <= 0 || cfg.Pipeline.QualityThreshold > 1 {
		return nil, fmt.Errorf("pipeline.quality_threshold must be in (0,1], got %v", cfg.Pipeline.QualityThreshold)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.StatusTTL <= 0 {
		cfg.Redis.StatusTTL = time.Hour
	}
	if cfg.Redis.LockTTL <= 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ResearchModel == "" {
		cfg.AI.ResearchModel = cfg.AI.DefaultModel
	}
	if cfg.Pipeline.QualityThreshold == 0 {
		cfg.Pipeline.QualityThreshold = 0.75
	}
	if cfg.Pipeline.MaxEnhancements <= 0 {
		cfg.Pipeline.MaxEnhancements = 3
	}
	if cfg.Pipeline.OnQualityExhausted == "" {
		cfg.Pipeline.OnQualityExhausted = "continue"
	}
	if cfg.Pipeline.MaxRetries <= 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.RetryBackoff <= 0 {
		cfg.Pipeline.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Pipeline.MaxRetryBackoff <= 0 {
		cfg.Pipeline.MaxRetryBackoff = 30 * time.Second
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 8
	}
	if cfg.Pipeline.ResearchQueries <= 0 {
		cfg.Pipeline.ResearchQueries = 4
	}
	if cfg.Pipeline.ResumeInterval <= 0 {
		cfg.Pipeline.ResumeInterval = time.Minute
	}
	if cfg.Pipeline.StaleAfter <= 0 {
		cfg.Pipeline.StaleAfter = 10 * time.Minute
	}
}
