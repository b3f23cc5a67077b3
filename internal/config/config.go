package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Locks      LocksConfig      `yaml:"locks" mapstructure:"locks"`
	Base       BaseConfig       `yaml:"base" mapstructure:"base"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	PageSize    int      `yaml:"page_size" mapstructure:"page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig configures priority tier windows. ConfigPath, when set,
// points at a YAML file whose values override the inline windows.
type ScoringConfig struct {
	ConfigPath         string `yaml:"config_path" mapstructure:"config_path"`
	RejectedWindowDays int    `yaml:"rejected_window_days" mapstructure:"rejected_window_days"`
	HighWindowDays     int    `yaml:"high_window_days" mapstructure:"high_window_days"`
	NormalWindowDays   int    `yaml:"normal_window_days" mapstructure:"normal_window_days"`
}

// QueueConfig configures daily queue generation. DailyCapacity 0 means
// unbounded.
type QueueConfig struct {
	DailyCapacity int    `yaml:"daily_capacity" mapstructure:"daily_capacity"`
	Timezone      string `yaml:"timezone" mapstructure:"timezone"`
}

// EnrichConfig configures the contact enrichment provider and worker pool.
type EnrichConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	Key              string  `yaml:"key" mapstructure:"key"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	FreshnessDays    int     `yaml:"freshness_days" mapstructure:"freshness_days"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// WebhookConfig configures asynchronous webhook delivery.
type WebhookConfig struct {
	Workers     int   `yaml:"workers" mapstructure:"workers"`
	MaxAttempts int   `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffSecs []int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
	TimeoutSecs int   `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	QueueSize   int   `yaml:"queue_size" mapstructure:"queue_size"`
}

// LocksConfig configures per-owner advisory locks.
type LocksConfig struct {
	WaitMs int `yaml:"wait_ms" mapstructure:"wait_ms"`
}

// BaseConfig holds the coordinates distances are measured from.
type BaseConfig struct {
	Latitude  float64 `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64 `yaml:"longitude" mapstructure:"longitude"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the CRM mirror.
type SalesforceConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ImportConfig configures registry extract downloads.
type ImportConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.page_size", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scoring.rejected_window_days", 30)
	v.SetDefault("scoring.high_window_days", 30)
	v.SetDefault("scoring.normal_window_days", 90)
	v.SetDefault("queue.daily_capacity", 0)
	v.SetDefault("queue.timezone", "America/Sao_Paulo")
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.rate_per_sec", 2.0)
	v.SetDefault("enrich.timeout_secs", 15)
	v.SetDefault("enrich.freshness_days", 30)
	v.SetDefault("enrich.max_attempts", 2)
	v.SetDefault("enrich.initial_backoff_ms", 500)
	v.SetDefault("enrich.failure_threshold", 5)
	v.SetDefault("enrich.reset_timeout_secs", 30)
	v.SetDefault("webhook.workers", 4)
	v.SetDefault("webhook.max_attempts", 5)
	v.SetDefault("webhook.backoff_secs", []int{1, 5, 30, 300})
	v.SetDefault("webhook.timeout_secs", 10)
	v.SetDefault("webhook.queue_size", 256)
	v.SetDefault("locks.wait_ms", 5000)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_per_sec", 5.0)
	v.SetDefault("import.temp_dir", "/tmp/lead-import")
	v.SetDefault("import.timeout_secs", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
