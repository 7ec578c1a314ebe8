package logging

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level
type LogLevel string

const (
	// LogLevelQuiet suppresses all output except critical errors
	LogLevelQuiet LogLevel = "quiet"
	// LogLevelNormal shows standard operational messages
	LogLevelNormal LogLevel = "normal"
	// LogLevelVerbose shows detailed operational information
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug shows all debug information
	LogLevelDebug LogLevel = "debug"
)

// Logger provides structured logging capabilities
type Logger struct {
	logger *logrus.Logger
	level  LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Output     io.Writer
	Format     string // "text" or "json"
	ShowCaller bool
	LogFile    string
}

// NewLogger creates a new logger with the specified configuration
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	// Set output
	if config.Output != nil {
		logger.SetOutput(config.Output)
	} else {
		logger.SetOutput(os.Stdout)
	}

	// Set format
	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   false,
		})
	}

	// Set log level based on our custom levels
	switch config.Level {
	case LogLevelQuiet:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		logger.SetLevel(logrus.TraceLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// Enable caller reporting if requested
	if config.ShowCaller {
		logger.SetReportCaller(true)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	// Set up file logging if specified
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.LogFile, err)
		}

		// Use multi-writer to write to both file and stdout
		if config.Output == nil {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		} else {
			logger.SetOutput(io.MultiWriter(config.Output, file))
		}
	}

	return &Logger{
		logger: logger,
		level:  config.Level,
	}, nil
}

// NewDefaultLogger creates a logger with default configuration
func NewDefaultLogger() *Logger {
	config := Config{
		Level:      LogLevelNormal,
		Output:     os.Stdout,
		Format:     "text",
		ShowCaller: false,
	}

	logger, _ := NewLogger(config)
	return logger
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.logger.WithFields(fields)
}

// WithField returns a logger with a single additional field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.logger.WithField(key, value)
}

// Backup operation logging methods

// LogInstanceConnection logs connection attempts against the source or target instance
func (l *Logger) LogInstanceConnection(host string, success bool, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "instance_connection",
		"host":      host,
		"duration":  duration.String(),
		"success":   success,
	}

	if success {
		l.logger.WithFields(fields).Info("Instance connection established")
	} else {
		if err != nil {
			fields["error"] = err.Error()
		}
		l.logger.WithFields(fields).Error("Instance connection failed")
	}
}

// LogEnumeration logs the outcome of backup unit enumeration
func (l *Logger) LogEnumeration(server string, databases, units int, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "enumeration",
		"server":    server,
		"databases": databases,
		"units":     units,
		"duration":  duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Unit enumeration failed")
	} else {
		l.logger.WithFields(fields).Info("Unit enumeration completed")
	}
}

// LogUnitAttempt logs one dump or upload attempt for a backup unit
func (l *Logger) LogUnitAttempt(database, collection string, attempt int, stage string, err error) {
	fields := logrus.Fields{
		"operation":  "unit_attempt",
		"database":   database,
		"collection": collection,
		"attempt":    attempt,
		"stage":      stage,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Unit attempt failed, will retry")
	} else {
		l.logger.WithFields(fields).Debug("Unit attempt succeeded")
	}
}

// LogUnitResolved logs the final outcome of one backup unit
func (l *Logger) LogUnitResolved(database, collection, status string, attempts int, bytes int64, duration time.Duration) {
	fields := logrus.Fields{
		"operation":  "unit_resolved",
		"database":   database,
		"collection": collection,
		"status":     status,
		"attempts":   attempts,
		"bytes":      bytes,
		"duration":   duration.String(),
	}

	l.logger.WithFields(fields).Info("Backup unit resolved")
}

// LogTransfer logs a single upload or download against the blob store
func (l *Logger) LogTransfer(direction, key string, bytes int64, duration time.Duration, err error) {
	fields := logrus.Fields{
		"operation": "transfer",
		"direction": direction,
		"key":       key,
		"bytes":     bytes,
		"duration":  duration.String(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Error("Transfer failed")
	} else {
		l.logger.WithFields(fields).Debug("Transfer completed")
	}
}

// LogRetentionSweep logs the outcome of a retention sweep
func (l *Logger) LogRetentionSweep(server string, examined, removed int, horizon time.Duration, dryRun bool, err error) {
	fields := logrus.Fields{
		"operation": "retention_sweep",
		"server":    server,
		"examined":  examined,
		"removed":   removed,
		"horizon":   horizon.String(),
		"dry_run":   dryRun,
	}

	if err != nil {
		fields["error"] = err.Error()
		l.logger.WithFields(fields).Warn("Retention sweep failed")
	} else {
		l.logger.WithFields(fields).Info("Retention sweep completed")
	}
}

// LogRestorePhase logs restore state machine transitions
func (l *Logger) LogRestorePhase(snapshot, phase string, fields map[string]interface{}) {
	logFields := logrus.Fields{
		"operation": "restore_phase",
		"snapshot":  snapshot,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Info("Restore phase entered")
}

// Standard logging methods

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.logger.Info(msg)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.logger.Debug(msg)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.logger.Warn(msg)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.logger.Error(msg)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string) {
	l.logger.Fatal(msg)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	switch level {
	case LogLevelQuiet:
		l.logger.SetLevel(logrus.ErrorLevel)
	case LogLevelNormal:
		l.logger.SetLevel(logrus.InfoLevel)
	case LogLevelVerbose:
		l.logger.SetLevel(logrus.DebugLevel)
	case LogLevelDebug:
		l.logger.SetLevel(logrus.TraceLevel)
	}
}

// IsLevelEnabled checks if a log level is enabled
func (l *Logger) IsLevelEnabled(level LogLevel) bool {
	switch level {
	case LogLevelQuiet:
		return l.logger.IsLevelEnabled(logrus.ErrorLevel)
	case LogLevelNormal:
		return l.logger.IsLevelEnabled(logrus.InfoLevel)
	case LogLevelVerbose:
		return l.logger.IsLevelEnabled(logrus.DebugLevel)
	case LogLevelDebug:
		return l.logger.IsLevelEnabled(logrus.TraceLevel)
	default:
		return false
	}
}

// LogOperationStart logs the start of an operation and returns a function to log completion
func (l *Logger) LogOperationStart(operation string, fields map[string]interface{}) func(error) {
	startTime := time.Now()

	logFields := logrus.Fields{
		"operation": operation,
		"status":    "started",
	}

	// Add additional fields
	for k, v := range fields {
		logFields[k] = v
	}

	l.logger.WithFields(logFields).Debug("Operation started")

	return func(err error) {
		duration := time.Since(startTime)
		logFields["status"] = "completed"
		logFields["duration"] = duration.String()

		if err != nil {
			logFields["error"] = err.Error()
			logFields["success"] = false
			l.logger.WithFields(logFields).Error("Operation failed")
		} else {
			logFields["success"] = true
			l.logger.WithFields(logFields).Info("Operation completed")
		}
	}
}

// SanitizeURI masks credentials embedded in a connection URI before logging
func SanitizeURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err == nil && parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
		return parsed.String()
	}

	// Not URL-shaped; mask anything between :// user:pass@ by hand
	if at := strings.Index(uri, "@"); at != -1 {
		if scheme := strings.Index(uri, "://"); scheme != -1 && scheme < at {
			head := uri[:scheme+3]
			cred := uri[scheme+3 : at]
			if colon := strings.Index(cred, ":"); colon != -1 {
				cred = cred[:colon] + ":***"
			}
			return head + cred + uri[at:]
		}
	}

	return uri
}
