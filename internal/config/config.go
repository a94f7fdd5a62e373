// File: internal/config/config.go
package config

import (
	"errors"
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
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Endpoint       string        `yaml:"endpoint"` // credential + object API base
	AccessKey      string        `yaml:"access_key"`
	Bucket         string        `yaml:"bucket"`
	CDNBase        string        `yaml:"cdn_base"` // optional; direct URLs when empty
	MaxAttempts    int           `yaml:"max_attempts"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	StallTimeout   time.Duration `yaml:"stall_timeout"`
}

type DownloadConfig struct {
	ScratchDir  string        `yaml:"scratch_dir"`
	YtDlpPath   string        `yaml:"yt_dlp_path"`
	Timeout     time.Duration `yaml:"timeout"`
	MinAudioKiB int64         `yaml:"min_audio_kib"` // content validation floor
}

type IngestConfig struct {
	BatchFanout   int   `yaml:"batch_fanout"` // concurrent in-flight items
	QuotaLimitMiB int64 `yaml:"quota_limit_mib"`
}

type CaptionsConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	JobsPerMinute     int           `yaml:"jobs_per_minute"`
	DailyCap          int           `yaml:"daily_cap"`
	MaxAttempts       int           `yaml:"max_attempts"`
	AvgProcessingMins int           `yaml:"avg_processing_mins"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
}

type AIConfig struct {
	GeminiKey     string        `yaml:"gemini_key"`
	GeminiURL     string        `yaml:"gemini_url"`
	MetadataModel string        `yaml:"metadata_model"`
	WhisperKey    string        `yaml:"whisper_key"`
	WhisperURL    string        `yaml:"whisper_url"`
	WhisperModel  string        `yaml:"whisper_model"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

type WebConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Captions CaptionsConfig `yaml:"captions"`
	AI       AIConfig       `yaml:"ai"`
	Web      WebConfig      `yaml:"web"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
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
	if cfg.Storage.Endpoint == "" {
		return nil, errors.New("storage.endpoint is required")
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
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Storage.MaxAttempts <= 0 {
		cfg.Storage.MaxAttempts = 3
	}
	if cfg.Storage.BackoffBase <= 0 {
		cfg.Storage.BackoffBase = time.Second
	}
	if cfg.Storage.AttemptTimeout <= 0 {
		cfg.Storage.AttemptTimeout = 10 * time.Minute
	}
	if cfg.Storage.StallTimeout <= 0 {
		cfg.Storage.StallTimeout = 30 * time.Second
	}
	if cfg.Download.ScratchDir == "" {
		cfg.Download.ScratchDir = os.TempDir()
	}
	if cfg.Download.YtDlpPath == "" {
		cfg.Download.YtDlpPath = "yt-dlp"
	}
	if cfg.Download.Timeout <= 0 {
		cfg.Download.Timeout = 15 * time.Minute
	}
	if cfg.Download.MinAudioKiB <= 0 {
		cfg.Download.MinAudioKiB = 64
	}
	if cfg.Ingest.BatchFanout <= 0 {
		cfg.Ingest.BatchFanout = 2
	}
	if cfg.Ingest.QuotaLimitMiB <= 0 {
		cfg.Ingest.QuotaLimitMiB = 10 * 1024
	}
	if cfg.Captions.TickInterval <= 0 {
		cfg.Captions.TickInterval = 10 * time.Second
	}
	if cfg.Captions.JobsPerMinute <= 0 {
		cfg.Captions.JobsPerMinute = 2
	}
	if cfg.Captions.DailyCap <= 0 {
		cfg.Captions.DailyCap = 200
	}
	if cfg.Captions.MaxAttempts <= 0 {
		cfg.Captions.MaxAttempts = 3
	}
	if cfg.Captions.AvgProcessingMins <= 0 {
		cfg.Captions.AvgProcessingMins = 2
	}
	if cfg.Captions.ShutdownGrace <= 0 {
		cfg.Captions.ShutdownGrace = 30 * time.Second
	}
	if cfg.AI.MetadataModel == "" {
		cfg.AI.MetadataModel = "gemini-2.0-flash"
	}
	if cfg.AI.WhisperURL == "" {
		cfg.AI.WhisperURL = "https://api.openai.com/v1"
	}
	if cfg.AI.WhisperModel == "" {
		cfg.AI.WhisperModel = "whisper-1"
	}
	if cfg.AI.CallTimeout <= 0 {
		cfg.AI.CallTimeout = 2 * time.Minute
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
}
