package storage

import (
	"context"
	"testing"

	"mongo-blob-backup/internal/config"
)

func TestNewStore(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		config   *config.StorageConfig
		wantName string
		wantErr  bool
	}{
		{
			name: "local provider",
			config: &config.StorageConfig{
				Provider:  config.StorageProviderLocal,
				Container: "mongodbbackup",
				Local:     &config.LocalConfig{BasePath: tempDir},
			},
			wantName: "local",
		},
		{
			name: "azure provider",
			config: &config.StorageConfig{
				Provider:  config.StorageProviderAzure,
				Container: "mongodbbackup",
				Azure: &config.AzureConfig{
					AccountName: "devstoreaccount1",
					AccountKey:  "Zm9vYmFy",
				},
			},
			wantName: "azure",
		},
		{
			name: "s3 provider",
			config: &config.StorageConfig{
				Provider:  config.StorageProviderS3,
				Container: "mongodbbackup",
				S3: &config.S3Config{
					Region:    "us-east-1",
					AccessKey: "AKIAEXAMPLE",
					SecretKey: "secret",
				},
			},
			wantName: "s3",
		},
		{
			name: "unsupported provider",
			config: &config.StorageConfig{
				Provider:  "ftp",
				Container: "mongodbbackup",
			},
			wantErr: true,
		},
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name: "azure without credentials",
			config: &config.StorageConfig{
				Provider:  config.StorageProviderAzure,
				Container: "mongodbbackup",
				Azure:     nil,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(context.Background(), tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if store == nil {
				t.Fatal("Expected store to be created, got nil")
			}
			if store.Name() != tt.wantName {
				t.Errorf("Name() = %s, want %s", store.Name(), tt.wantName)
			}
		})
	}
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) != 4 {
		t.Fatalf("Expected 4 supported providers, got %d", len(providers))
	}

	seen := make(map[config.StorageProviderType]bool)
	for _, p := range providers {
		seen[p] = true
	}
	for _, want := range []config.StorageProviderType{
		config.StorageProviderAzure,
		config.StorageProviderS3,
		config.StorageProviderGCS,
		config.StorageProviderLocal,
	} {
		if !seen[want] {
			t.Errorf("Provider %s missing from SupportedProviders()", want)
		}
	}
}
