package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "dynamodb.amazonaws.com", cfg.Source.ServicePrincipal)
	assert.Equal(t, BackendS3, cfg.Archive.Backend)
	assert.Equal(t, "records/", cfg.Archive.KeyPrefix)
	assert.Equal(t, ".json", cfg.Archive.KeySuffix)
	assert.Equal(t, 1, cfg.Archive.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Archive.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.Archive.MaxInterval)

	assert.False(t, cfg.DLQ.Enabled)
	assert.Equal(t, DLQBackendFile, cfg.DLQ.Backend)
	assert.Equal(t, "ttl-archiver:dlq", cfg.DLQ.RedisKey)

	assert.Empty(t, cfg.Metrics.PushgatewayURL)
	assert.Equal(t, "ttl-archiver", cfg.Metrics.Job)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_LambdaEnvironment(t *testing.T) {
	t.Setenv("DYNAMODB_TABLE_NAME", "TTLTable")
	t.Setenv("BUCKET_NAME", "report-bucket")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "TTLTable", cfg.Source.TableName)
	assert.Equal(t, "report-bucket", cfg.Archive.Bucket)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
source:
  table_name: FileTable
archive:
  backend: fs
  base_path: /var/archive
  key_prefix: expired/
  max_attempts: 3
dlq:
  enabled: true
  backend: redis
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "FileTable", cfg.Source.TableName)
	assert.Equal(t, BackendFS, cfg.Archive.Backend)
	assert.Equal(t, "/var/archive", cfg.Archive.BasePath)
	assert.Equal(t, "expired/", cfg.Archive.KeyPrefix)
	assert.Equal(t, ".json", cfg.Archive.KeySuffix, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Archive.MaxAttempts)
	assert.True(t, cfg.DLQ.Enabled)
	assert.Equal(t, DLQBackendRedis, cfg.DLQ.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ARCHIVER_ARCHIVE_MAX_ATTEMPTS", "5")
	t.Setenv("ARCHIVER_DLQ_ENABLED", "true")
	t.Setenv("ARCHIVER_LOGGING_LEVEL", "warn")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("archive:\n  max_attempts: 2\nlogging:\n  level: info\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Archive.MaxAttempts, "Environment variable should override file value")
	assert.True(t, cfg.DLQ.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level, "Environment variable should override file value")
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("archive:\n  bucket: [[[\n"), 0644))

	cfg, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Source:  SourceConfig{ServicePrincipal: "dynamodb.amazonaws.com"},
			Archive: ArchiveConfig{Backend: BackendS3, Bucket: "report-bucket", MaxAttempts: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid s3", mutate: func(*Config) {}},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Archive.Bucket = "" },
			wantErr: "archive.bucket",
		},
		{
			name:    "fs without base path",
			mutate:  func(c *Config) { c.Archive.Backend = BackendFS },
			wantErr: "archive.base_path",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Archive.Backend = "gcs" },
			wantErr: "unknown archive backend",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Archive.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "empty principal",
			mutate:  func(c *Config) { c.Source.ServicePrincipal = "" },
			wantErr: "service_principal",
		},
		{
			name: "unknown dlq backend",
			mutate: func(c *Config) {
				c.DLQ.Enabled = true
				c.DLQ.Backend = "sqs"
			},
			wantErr: "unknown dlq backend",
		},
		{
			name:   "disabled dlq backend ignored",
			mutate: func(c *Config) { c.DLQ.Backend = "sqs" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
