// Package config loads webopt settings from defaults, an optional YAML file and
// the environment.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"

	"github.com/dunamismax/webopt/internal/domain"
)

// Config represents the complete webopt configuration.
type Config struct {
	Optimize  OptimizeConfig  `mapstructure:"optimize"`
	Log       LogConfig       `mapstructure:"log"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// OptimizeConfig describes one batch: where images come from, where they go
// and how they are transformed.
type OptimizeConfig struct {
	InputDir      string `mapstructure:"input_dir"`
	Output        string `mapstructure:"output"`
	MaxResolution int    `mapstructure:"max_resolution"`
	Quality       int    `mapstructure:"quality"`
	Workers       int    `mapstructure:"workers"`
	Watch         bool   `mapstructure:"watch"`
}

func (o OptimizeConfig) Params() domain.TransformParams {
	return domain.TransformParams{MaxResolution: o.MaxResolution, Quality: o.Quality}
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

type StorageConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Region       string `mapstructure:"region"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	CacheControl string `mapstructure:"cache_control"`
}

type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Name          string `mapstructure:"name"`
	MaxRetry      int    `mapstructure:"max_retry"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type WebhookConfig struct {
	URL           string `mapstructure:"url"`
	SigningSecret string `mapstructure:"signing_secret"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
}

type TelemetryConfig struct {
	Exporter     string `mapstructure:"exporter"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// legacyEnv maps keys to the unprefixed variable names deployments already set.
var legacyEnv = map[string][]string{
	"queue.redis_addr":        {"REDIS_ADDR"},
	"queue.redis_password":    {"REDIS_PASSWORD"},
	"queue.redis_db":          {"REDIS_DB"},
	"queue.name":              {"ASYNC_QUEUE"},
	"worker.concurrency":      {"WORKER_CONCURRENCY"},
	"worker.metrics_addr":     {"WORKER_METRICS_ADDR"},
	"storage.endpoint":        {"MINIO_ENDPOINT"},
	"storage.access_key":      {"MINIO_ACCESS_KEY"},
	"storage.secret_key":      {"MINIO_SECRET_KEY"},
	"storage.region":          {"MINIO_REGION"},
	"storage.use_ssl":         {"MINIO_USE_SSL"},
	"ledger.dsn":              {"LEDGER_DSN", "POSTGRES_DSN"},
	"webhook.url":             {"WEBHOOK_URL"},
	"webhook.signing_secret":  {"WEBHOOK_SIGNING_SECRET"},
	"telemetry.exporter":      {"OTEL_TRACES_EXPORTER"},
	"telemetry.otlp_endpoint": {"OTEL_EXPORTER_OTLP_ENDPOINT"},
	"metrics.textfile_path":   {"METRICS_TEXTFILE_PATH"},
}

// New returns a viper instance with defaults and environment bindings applied
// but no config file read yet. Commands bind their flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WEBOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicit names replace the prefixed lookup, so the prefixed name goes first.
	for key, names := range legacyEnv {
		prefixed := "WEBOPT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	return v
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".webopt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/webopt")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("optimize.input_dir", "input")
	v.SetDefault("optimize.output", "output")
	v.SetDefault("optimize.max_resolution", domain.DefaultMaxResolution)
	v.SetDefault("optimize.quality", domain.DefaultQuality)
	v.SetDefault("optimize.workers", 1)
	v.SetDefault("optimize.watch", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("output.colors", true)

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.cache_control", "public, max-age=31536000, immutable")

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.max_retry", 5)

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("ledger.dsn", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.max_attempts", 5)

	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)

	v.SetDefault("metrics.textfile_path", "")
}

// validate rejects settings that can never work. Transform parameters are
// checked where they are used so that the error carries domain.ErrInvalidParameter.
func validate(cfg *Config) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Log.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	if cfg.Optimize.Workers < 1 {
		return fmt.Errorf("invalid workers: %d (must be at least 1)", cfg.Optimize.Workers)
	}

	if cfg.Worker.Concurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d (must be at least 1)", cfg.Worker.Concurrency)
	}

	return nil
}
