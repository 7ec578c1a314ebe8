package mongo

import (
	"context"
	"testing"
	"time"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
)

func TestNewService(t *testing.T) {
	service := NewService()
	if service == nil {
		t.Fatal("Expected service to be created")
	}
	if service.connectTimeout != 30*time.Second {
		t.Errorf("Expected default timeout to be 30s, got %v", service.connectTimeout)
	}
}

func TestNewServiceWithLogger(t *testing.T) {
	logger := logging.NewDefaultLogger()
	service := NewServiceWithLogger(logger)
	if service.logger != logger {
		t.Error("Expected custom logger to be set")
	}
}

func TestNewServiceWithOptions(t *testing.T) {
	logger := logging.NewDefaultLogger()

	service := NewServiceWithOptions(10*time.Second, logger)
	if service.connectTimeout != 10*time.Second {
		t.Errorf("Expected timeout to be 10s, got %v", service.connectTimeout)
	}

	service = NewServiceWithOptions(0, logger)
	if service.connectTimeout != 30*time.Second {
		t.Errorf("Expected zero timeout to fall back to 30s, got %v", service.connectTimeout)
	}
}

func TestCloseNilClient(t *testing.T) {
	service := NewService()
	if err := service.Close(nil); err != nil {
		t.Errorf("Close(nil) error = %v, want nil", err)
	}
}

func TestServerVersionNilClient(t *testing.T) {
	service := NewService()

	_, err := service.ServerVersion(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected error for nil client")
	}
	if apperrors.GetErrorType(err) != apperrors.ErrorTypeValidation {
		t.Errorf("Expected validation error, got %s", apperrors.GetErrorType(err))
	}
}

func TestIsSystemDatabase(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"admin", true},
		{"local", true},
		{"config", true},
		{"orders", false},
		{"Admin", false},
		{"configs", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsSystemDatabase(tt.name); got != tt.want {
			t.Errorf("IsSystemDatabase(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
