package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "mongo-blob-backup/internal/errors"
)

// StorageProviderType identifies a blob storage backend
type StorageProviderType string

const (
	// StorageProviderAzure targets Azure Blob Storage
	StorageProviderAzure StorageProviderType = "azure"
	// StorageProviderS3 targets Amazon S3
	StorageProviderS3 StorageProviderType = "s3"
	// StorageProviderGCS targets Google Cloud Storage
	StorageProviderGCS StorageProviderType = "gcs"
	// StorageProviderLocal targets a local directory
	StorageProviderLocal StorageProviderType = "local"
)

// BackupScope selects the unit granularity of a backup run
type BackupScope string

const (
	// ScopeCollection backs up one unit per (database, collection) pair
	ScopeCollection BackupScope = "collection"
	// ScopeInstance backs up the whole instance in one dump; kept for
	// compatibility with trees written by earlier releases
	ScopeInstance BackupScope = "instance"
)

// Config is the complete configuration of one invocation. Every component
// receives the piece it needs from here; nothing reads the environment at the
// point of use.
type Config struct {
	Server    string          `mapstructure:"server" yaml:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo" yaml:"mongo"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Backup    BackupConfig    `mapstructure:"backup" yaml:"backup"`
	Restore   RestoreConfig   `mapstructure:"restore" yaml:"restore"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Scratch   ScratchConfig   `mapstructure:"scratch" yaml:"scratch"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// MongoConfig holds instance connection settings
type MongoConfig struct {
	URI            string        `mapstructure:"uri" yaml:"uri"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// StorageConfig selects and configures the blob storage provider
type StorageConfig struct {
	Provider  StorageProviderType `mapstructure:"provider" yaml:"provider"`
	Container string              `mapstructure:"container" yaml:"container"`
	Azure     *AzureConfig        `mapstructure:"azure" yaml:"azure,omitempty"`
	S3        *S3Config           `mapstructure:"s3" yaml:"s3,omitempty"`
	GCS       *GCSConfig          `mapstructure:"gcs" yaml:"gcs,omitempty"`
	Local     *LocalConfig        `mapstructure:"local" yaml:"local,omitempty"`
}

// AzureConfig holds Azure Blob Storage settings
type AzureConfig struct {
	AccountName string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key"`
}

// S3Config holds Amazon S3 settings
type S3Config struct {
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// GCSConfig holds Google Cloud Storage settings
type GCSConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
}

// LocalConfig holds local filesystem storage settings
type LocalConfig struct {
	BasePath    string      `mapstructure:"base_path" yaml:"base_path"`
	Permissions os.FileMode `mapstructure:"permissions" yaml:"permissions"`
}

// BackupConfig holds backup mode settings
type BackupConfig struct {
	Scope    BackupScope   `mapstructure:"scope" yaml:"scope"`
	Parallel int           `mapstructure:"parallel" yaml:"parallel"`
	Gzip     bool          `mapstructure:"gzip" yaml:"gzip"`
	DumpBin  string        `mapstructure:"dump_bin" yaml:"dump_bin"`
	Retry    RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Archive  ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// RetryConfig holds the unit retry policy. MaxAttempts 0 retries without
// bound, preserving the historical behavior.
type RetryConfig struct {
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ArchiveConfig controls optional packaging of unit artifacts before upload
type ArchiveConfig struct {
	// Mode is "none" (upload dump files as produced) or "tar"
	Mode        string           `mapstructure:"mode" yaml:"mode"`
	Compression string           `mapstructure:"compression" yaml:"compression"`
	Level       int              `mapstructure:"level" yaml:"level"`
	Encryption  EncryptionConfig `mapstructure:"encryption" yaml:"encryption"`
}

// EncryptionConfig controls client-side archive encryption
type EncryptionConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	KeySource string `mapstructure:"key_source" yaml:"key_source"` // "env" or "file"
	KeyEnvVar string `mapstructure:"key_env_var" yaml:"key_env_var"`
	KeyPath   string `mapstructure:"key_path" yaml:"key_path"`
}

// RestoreConfig holds restore mode settings
type RestoreConfig struct {
	RestoreBin string `mapstructure:"restore_bin" yaml:"restore_bin"`
	// WriteConcern passes through to the load tool; "1" trades durability
	// for speed and matches the historical restore behavior
	WriteConcern string `mapstructure:"write_concern" yaml:"write_concern"`
}

// RetentionConfig holds retention sweep settings
type RetentionConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAge         time.Duration `mapstructure:"max_age" yaml:"max_age"`
	RunAfterBackup bool          `mapstructure:"run_after_backup" yaml:"run_after_backup"`
}

// ScratchConfig holds local scratch space settings
type ScratchConfig struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	ShowCaller bool   `mapstructure:"show_caller" yaml:"show_caller"`
}

// SetDefaults fills unset fields with their defaults
func (c *Config) SetDefaults() {
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 10 * time.Second
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = StorageProviderAzure
	}
	if c.Storage.Container == "" {
		c.Storage.Container = "mongodbbackup"
	}
	if c.Storage.Local != nil && c.Storage.Local.Permissions == 0 {
		c.Storage.Local.Permissions = 0o755
	}
	if c.Backup.Scope == "" {
		c.Backup.Scope = ScopeCollection
	}
	if c.Backup.Parallel == 0 {
		c.Backup.Parallel = 1
	}
	if c.Backup.DumpBin == "" {
		c.Backup.DumpBin = "mongodump"
	}
	if c.Backup.Retry.Interval == 0 {
		c.Backup.Retry.Interval = 10 * time.Second
	}
	if c.Backup.Archive.Mode == "" {
		c.Backup.Archive.Mode = "none"
	}
	if c.Backup.Archive.Compression == "" {
		c.Backup.Archive.Compression = "gzip"
	}
	if c.Backup.Archive.Encryption.KeySource == "" {
		c.Backup.Archive.Encryption.KeySource = "env"
	}
	if c.Backup.Archive.Encryption.KeyEnvVar == "" {
		c.Backup.Archive.Encryption.KeyEnvVar = "MONGOBLOB_ARCHIVE_KEY"
	}
	if c.Restore.RestoreBin == "" {
		c.Restore.RestoreBin = "mongorestore"
	}
	if c.Restore.WriteConcern == "" {
		c.Restore.WriteConcern = "1"
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = 168 * time.Hour
	}
	if c.Scratch.BaseDir == "" {
		c.Scratch.BaseDir = os.TempDir()
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "normal"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for a runnable invocation
func (c *Config) Validate() error {
	if c.Server == "" {
		return apperrors.NewValidationError("server label is required", nil)
	}
	if strings.ContainsAny(c.Server, "/\\") {
		return apperrors.NewValidationError(
			fmt.Sprintf("server label %q must not contain path separators", c.Server), nil)
	}

	if err := c.Mongo.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	if c.Retention.Enabled && c.Retention.MaxAge <= 0 {
		return apperrors.NewValidationError("retention max_age must be positive", nil)
	}

	return nil
}

// Validate checks the instance connection settings
func (mc *MongoConfig) Validate() error {
	if mc.URI == "" {
		return apperrors.NewValidationError("mongo uri is required", nil)
	}
	if !strings.HasPrefix(mc.URI, "mongodb://") && !strings.HasPrefix(mc.URI, "mongodb+srv://") {
		return apperrors.NewValidationError(
			"mongo uri must start with mongodb:// or mongodb+srv://", nil)
	}
	return nil
}

// Validate checks the storage settings for the selected provider
func (sc *StorageConfig) Validate() error {
	if sc.Container == "" {
		return apperrors.NewValidationError("storage container is required", nil)
	}

	switch sc.Provider {
	case StorageProviderAzure:
		if sc.Azure == nil {
			return apperrors.NewValidationError("azure storage configuration is required", nil)
		}
		if sc.Azure.AccountName == "" {
			return apperrors.NewValidationError("azure account_name is required", nil)
		}
		if sc.Azure.AccountKey == "" {
			return apperrors.NewValidationError("azure account_key is required", nil)
		}
	case StorageProviderS3:
		if sc.S3 == nil {
			return apperrors.NewValidationError("s3 storage configuration is required", nil)
		}
		if sc.S3.Region == "" {
			return apperrors.NewValidationError("s3 region is required", nil)
		}
	case StorageProviderGCS:
		if sc.GCS == nil {
			return apperrors.NewValidationError("gcs storage configuration is required", nil)
		}
	case StorageProviderLocal:
		if sc.Local == nil || sc.Local.BasePath == "" {
			return apperrors.NewValidationError("local storage base_path is required", nil)
		}
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("unsupported storage provider: %s", sc.Provider), nil)
	}

	return nil
}

// Validate checks the backup mode settings
func (bc *BackupConfig) Validate() error {
	switch bc.Scope {
	case ScopeCollection, ScopeInstance:
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("backup scope must be %q or %q, got %q", ScopeCollection, ScopeInstance, bc.Scope), nil)
	}

	if bc.Parallel < 1 {
		return apperrors.NewValidationError("backup parallel must be at least 1", nil)
	}
	if bc.Retry.Interval <= 0 {
		return apperrors.NewValidationError("backup retry interval must be positive", nil)
	}
	if bc.Retry.MaxAttempts < 0 {
		return apperrors.NewValidationError("backup retry max_attempts must not be negative", nil)
	}

	switch bc.Archive.Mode {
	case "none":
	case "tar":
		switch bc.Archive.Compression {
		case "none", "gzip", "lz4", "zstd":
		default:
			return apperrors.NewValidationError(
				fmt.Sprintf("unsupported archive compression: %s", bc.Archive.Compression), nil)
		}
		if bc.Archive.Encryption.Enabled {
			switch bc.Archive.Encryption.KeySource {
			case "env", "file":
			default:
				return apperrors.NewValidationError(
					fmt.Sprintf("archive encryption key_source must be env or file, got %q",
						bc.Archive.Encryption.KeySource), nil)
			}
		}
	default:
		return apperrors.NewValidationError(
			fmt.Sprintf("archive mode must be none or tar, got %q", bc.Archive.Mode), nil)
	}

	return nil
}

// Load unmarshals the bound viper state into a Config with defaults applied.
// Validation stays with the caller so commands can report every problem in
// their own terms.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewValidationError("failed to parse configuration", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}
