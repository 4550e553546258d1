// Package config loads archiver settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Archive backends.
const (
	BackendS3     = "s3"
	BackendFS     = "fs"
	BackendMemory = "memory"
)

// DLQ backends.
const (
	DLQBackendFile      = "file"
	DLQBackendRedis     = "redis"
	DLQBackendJetStream = "jetstream"
)

// Config captures runtime settings for the TTL archiver.
type Config struct {
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
	DLQ     DLQConfig     `mapstructure:"dlq" yaml:"dlq"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig describes the table whose change stream is consumed.
type SourceConfig struct {
	// TableName is only used as log context.
	TableName string `mapstructure:"table_name" yaml:"table_name"`
	// ServicePrincipal is the identity the storage engine uses for TTL deletes.
	ServicePrincipal string `mapstructure:"service_principal" yaml:"service_principal"`
}

// ArchiveConfig controls where and how archive objects are written.
type ArchiveConfig struct {
	Backend         string        `mapstructure:"backend" yaml:"backend"`
	Bucket          string        `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix       string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	KeySuffix       string        `mapstructure:"key_suffix" yaml:"key_suffix"`
	BasePath        string        `mapstructure:"base_path" yaml:"base_path"`
	Region          string        `mapstructure:"region" yaml:"region"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	UsePathStyle    bool          `mapstructure:"use_path_style" yaml:"use_path_style"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// DLQConfig holds dead letter queue configuration.
type DLQConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Backend  string `mapstructure:"backend" yaml:"backend"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"` // file backend
	RedisURL string `mapstructure:"redis_url" yaml:"redis_url"` // redis backend
	RedisKey string `mapstructure:"redis_key" yaml:"redis_key"` // redis backend
	NatsURL  string `mapstructure:"nats_url" yaml:"nats_url"`   // jetstream backend
}

// MetricsConfig controls the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from configPath (optional) with environment overrides.
// Environment variables use the ARCHIVER_ prefix (ARCHIVER_ARCHIVE_BUCKET, ...);
// DYNAMODB_TABLE_NAME and BUCKET_NAME are also honoured.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ttl-archiver")
	}

	v.SetEnvPrefix("ARCHIVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("source.table_name", "DYNAMODB_TABLE_NAME")
	_ = v.BindEnv("archive.bucket", "BUCKET_NAME")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.table_name", "")
	v.SetDefault("source.service_principal", "dynamodb.amazonaws.com")

	v.SetDefault("archive.backend", BackendS3)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.key_prefix", "records/")
	v.SetDefault("archive.key_suffix", ".json")
	v.SetDefault("archive.base_path", "./archive")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.use_path_style", false)
	v.SetDefault("archive.max_attempts", 1)
	v.SetDefault("archive.initial_interval", "100ms")
	v.SetDefault("archive.max_interval", "2s")

	v.SetDefault("dlq.enabled", false)
	v.SetDefault("dlq.backend", DLQBackendFile)
	v.SetDefault("dlq.base_path", "/tmp/ttl-archiver/dlq")
	v.SetDefault("dlq.redis_url", "redis://localhost:6379/0")
	v.SetDefault("dlq.redis_key", "ttl-archiver:dlq")
	v.SetDefault("dlq.nats_url", "nats://localhost:4222")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "ttl-archiver")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the settings required by the selected backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.Archive.Backend {
	case BackendS3:
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive.bucket (BUCKET_NAME) is required for the s3 backend"))
		}
	case BackendFS:
		if c.Archive.BasePath == "" {
			errs = append(errs, errors.New("archive.base_path is required for the fs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown archive backend %q", c.Archive.Backend))
	}

	if c.Archive.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("archive.max_attempts must be >= 1, got %d", c.Archive.MaxAttempts))
	}
	if c.Source.ServicePrincipal == "" {
		errs = append(errs, errors.New("source.service_principal must not be empty"))
	}

	if c.DLQ.Enabled {
		switch c.DLQ.Backend {
		case DLQBackendFile, DLQBackendRedis, DLQBackendJetStream:
		default:
			errs = append(errs, fmt.Errorf("unknown dlq backend %q", c.DLQ.Backend))
		}
	}

	return errors.Join(errs...)
}
