package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/logging"
)

// InstanceService defines the interface for document database operations
type InstanceService interface {
	Connect(ctx context.Context, uri string) (*mongo.Client, error)
	Close(client *mongo.Client) error
	ServerVersion(ctx context.Context, client *mongo.Client) (string, error)
}

// Service implements the InstanceService interface
type Service struct {
	connectTimeout time.Duration
	logger         *logging.Logger
	classifier     *apperrors.ErrorClassifier
}

// NewService creates a new instance service with default settings
func NewService() *Service {
	return &Service{
		connectTimeout: 30 * time.Second,
		logger:         logging.NewDefaultLogger(),
		classifier:     apperrors.NewErrorClassifier(),
	}
}

// NewServiceWithLogger creates a new instance service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectTimeout: 30 * time.Second,
		logger:         logger,
		classifier:     apperrors.NewErrorClassifier(),
	}
}

// NewServiceWithOptions creates a new instance service with a custom connect timeout
func NewServiceWithOptions(connectTimeout time.Duration, logger *logging.Logger) *Service {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &Service{
		connectTimeout: connectTimeout,
		logger:         logger,
		classifier:     apperrors.NewErrorClassifier(),
	}
}

// Connect establishes and verifies a connection to the document database
func (s *Service) Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	startTime := time.Now()
	sanitized := logging.SanitizeURI(uri)

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(s.connectTimeout).
		SetServerSelectionTimeout(s.connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err != nil {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = client.Disconnect(disconnectCtx)
			cancel()
		}
	}

	duration := time.Since(startTime)
	s.logger.LogInstanceConnection(sanitized, err == nil, duration, err)

	if err != nil {
		classified := s.classifier.ClassifyError(err)
		return nil, apperrors.NewAppError(
			apperrors.GetErrorType(classified),
			fmt.Sprintf("failed to connect to %s", sanitized),
			err,
		).WithContext("uri", sanitized)
	}

	return client, nil
}

// Close disconnects the client
func (s *Service) Close(client *mongo.Client) error {
	if client == nil {
		s.logger.Debug("Client is nil, nothing to close")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to disconnect client")
		return apperrors.NewConnectionError("failed to disconnect client", err)
	}

	s.logger.Debug("Client disconnected")
	return nil
}

// ServerVersion retrieves the server version via buildInfo
func (s *Service) ServerVersion(ctx context.Context, client *mongo.Client) (string, error) {
	if client == nil {
		return "", apperrors.NewValidationError("client is nil", nil)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	var buildInfo struct {
		Version string `bson:"version"`
	}
	if err := client.Database("admin").RunCommand(cmdCtx, bson.M{"buildInfo": 1}).Decode(&buildInfo); err != nil {
		return "", apperrors.NewConnectionError("failed to read server version", err)
	}

	s.logger.WithField("version", buildInfo.Version).Debug("Retrieved server version")
	return buildInfo.Version, nil
}
