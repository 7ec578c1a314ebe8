package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mongo-blob-backup/internal/errors"
)

func validConfig() *Config {
	cfg := &Config{
		Server: "srv1",
		Mongo:  MongoConfig{URI: "mongodb://localhost:27017"},
		Storage: StorageConfig{
			Provider:  StorageProviderLocal,
			Container: "mongodbbackup",
			Local:     &LocalConfig{BasePath: "/var/backups"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, StorageProviderAzure, cfg.Storage.Provider)
	assert.Equal(t, "mongodbbackup", cfg.Storage.Container)
	assert.Equal(t, ScopeCollection, cfg.Backup.Scope)
	assert.Equal(t, 1, cfg.Backup.Parallel)
	assert.Equal(t, "mongodump", cfg.Backup.DumpBin)
	assert.Equal(t, 10*time.Second, cfg.Backup.Retry.Interval)
	assert.Equal(t, 0, cfg.Backup.Retry.MaxAttempts)
	assert.Equal(t, "none", cfg.Backup.Archive.Mode)
	assert.Equal(t, "mongorestore", cfg.Restore.RestoreBin)
	assert.Equal(t, "1", cfg.Restore.WriteConcern)
	assert.Equal(t, 168*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, "normal", cfg.Logging.Level)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing server", func(c *Config) { c.Server = "" }},
		{"server with slash", func(c *Config) { c.Server = "a/b" }},
		{"missing uri", func(c *Config) { c.Mongo.URI = "" }},
		{"bad uri scheme", func(c *Config) { c.Mongo.URI = "http://localhost" }},
		{"missing container", func(c *Config) { c.Storage.Container = "" }},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "ftp" }},
		{"local without base path", func(c *Config) { c.Storage.Local = nil }},
		{"bad scope", func(c *Config) { c.Backup.Scope = "cluster" }},
		{"zero parallel", func(c *Config) { c.Backup.Parallel = 0 }},
		{"zero retry interval", func(c *Config) { c.Backup.Retry.Interval = 0 }},
		{"negative retry ceiling", func(c *Config) { c.Backup.Retry.MaxAttempts = -1 }},
		{"bad archive mode", func(c *Config) { c.Backup.Archive.Mode = "zip" }},
		{"bad archive compression", func(c *Config) {
			c.Backup.Archive.Mode = "tar"
			c.Backup.Archive.Compression = "bzip2"
		}},
		{"bad encryption key source", func(c *Config) {
			c.Backup.Archive.Mode = "tar"
			c.Backup.Archive.Encryption.Enabled = true
			c.Backup.Archive.Encryption.KeySource = "vault"
		}},
		{"retention without horizon", func(c *Config) {
			c.Retention.Enabled = true
			c.Retention.MaxAge = -time.Hour
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
		})
	}
}

func TestValidateProviderSpecific(t *testing.T) {
	tests := []struct {
		name        string
		storage     StorageConfig
		expectError bool
	}{
		{
			name: "azure complete",
			storage: StorageConfig{
				Provider:  StorageProviderAzure,
				Container: "mongodbbackup",
				Azure:     &AzureConfig{AccountName: "acct", AccountKey: "a2V5"},
			},
			expectError: false,
		},
		{
			name: "azure missing key",
			storage: StorageConfig{
				Provider:  StorageProviderAzure,
				Container: "mongodbbackup",
				Azure:     &AzureConfig{AccountName: "acct"},
			},
			expectError: true,
		},
		{
			name: "s3 missing region",
			storage: StorageConfig{
				Provider:  StorageProviderS3,
				Container: "mongodbbackup",
				S3:        &S3Config{},
			},
			expectError: true,
		},
		{
			name: "gcs with defaults",
			storage: StorageConfig{
				Provider:  StorageProviderGCS,
				Container: "mongodbbackup",
				GCS:       &GCSConfig{},
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage = tt.storage

			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromViper(t *testing.T) {
	v := viper.New()
	v.Set("server", "srv1")
	v.Set("mongo.uri", "mongodb://localhost:27017")
	v.Set("storage.provider", "local")
	v.Set("storage.container", "backups")
	v.Set("storage.local.base_path", "/var/backups")
	v.Set("backup.retry.interval", "15s")
	v.Set("backup.retry.max_attempts", 4)
	v.Set("retention.max_age", "72h")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "srv1", cfg.Server)
	assert.Equal(t, StorageProviderLocal, cfg.Storage.Provider)
	assert.Equal(t, "backups", cfg.Storage.Container)
	assert.Equal(t, 15*time.Second, cfg.Backup.Retry.Interval)
	assert.Equal(t, 4, cfg.Backup.Retry.MaxAttempts)
	assert.Equal(t, 72*time.Hour, cfg.Retention.MaxAge)

	// Defaults fill the rest
	assert.Equal(t, ScopeCollection, cfg.Backup.Scope)
	assert.Equal(t, "mongodump", cfg.Backup.DumpBin)
	assert.NoError(t, cfg.Validate())
}
