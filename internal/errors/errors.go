package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeConnection represents instance or storage connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeEnumeration represents backup unit enumeration errors
	ErrorTypeEnumeration ErrorType = "enumeration"
	// ErrorTypeDump represents external dump tool errors
	ErrorTypeDump ErrorType = "dump"
	// ErrorTypeTransfer represents blob upload or download errors
	ErrorTypeTransfer ErrorType = "transfer"
	// ErrorTypeStorage represents storage provider setup errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeRestoreUnit represents a single restore unit load failure
	ErrorTypeRestoreUnit ErrorType = "restore_unit"
	// ErrorTypePartialRestore represents a restore that completed with unit failures
	ErrorTypePartialRestore ErrorType = "partial_restore"
	// ErrorTypeBackupIncomplete represents a backup run that abandoned units
	ErrorTypeBackupIncomplete ErrorType = "backup_incomplete"
	// ErrorTypeRetriesExhausted represents a unit abandoned after the retry ceiling
	ErrorTypeRetriesExhausted ErrorType = "retries_exhausted"
	// ErrorTypeConflict represents an already-occupied snapshot root
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeArchive represents artifact packaging errors
	ErrorTypeArchive ErrorType = "archive"
	// ErrorTypeEncryption represents artifact encryption errors
	ErrorTypeEncryption ErrorType = "encryption"
	// ErrorTypeValidation represents configuration or input validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeNotFound represents a missing database, collection, or snapshot
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: false,
	}
}

// NewRecoverableError creates a new recoverable error
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: true,
	}
}

// Domain error constructors

// NewConnectionError creates a connection error
func NewConnectionError(message string, cause error) *AppError {
	return NewRecoverableError(ErrorTypeConnection, message, cause)
}

// NewEnumerationError creates an enumeration error; enumeration failures abort the run
func NewEnumerationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeEnumeration, message, cause)
}

// NewDumpError creates a dump tool error; dump failures are retried
func NewDumpError(message string, cause error) *AppError {
	return NewRecoverableError(ErrorTypeDump, message, cause)
}

// NewTransferError creates a blob transfer error; recoverability is the caller's
// policy, so transfers are marked recoverable and restore simply never retries
func NewTransferError(message string, cause error) *AppError {
	return NewRecoverableError(ErrorTypeTransfer, message, cause)
}

// NewStorageError creates a storage provider error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// NewConflictError creates a snapshot root conflict error
func NewConflictError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConflict, message, cause)
}

// NewArchiveError creates an artifact packaging error
func NewArchiveError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeArchive, message, cause)
}

// NewEncryptionError creates an artifact encryption error
func NewEncryptionError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeEncryption, message, cause)
}

// NewRestoreUnitError creates a per-unit restore error; it is recorded against
// the unit and never aborts sibling units
func NewRestoreUnitError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRestoreUnit, message, cause)
}

// NewPartialRestoreError creates the overall error for a restore that loaded
// some units and failed others
func NewPartialRestoreError(failed, total int) *AppError {
	return NewAppError(ErrorTypePartialRestore,
		fmt.Sprintf("restore completed with %d of %d units failed", failed, total), nil).
		WithContext("failed_units", failed).
		WithContext("total_units", total)
}

// NewBackupIncompleteError creates the overall error for a backup run that
// abandoned units
func NewBackupIncompleteError(failed, total int) *AppError {
	return NewAppError(ErrorTypeBackupIncomplete,
		fmt.Sprintf("backup completed with %d of %d units failed", failed, total), nil).
		WithContext("failed_units", failed).
		WithContext("total_units", total)
}

// NewRetriesExhaustedError creates the terminal error for a unit that hit the
// retry ceiling
func NewRetriesExhaustedError(attempts int, cause error) *AppError {
	return NewAppError(ErrorTypeRetriesExhausted,
		fmt.Sprintf("abandoned after %d attempts", attempts), cause).
		WithContext("attempts", attempts)
}

// ErrorClassifier provides methods to classify and handle different types of errors
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	// Check if it's already an AppError
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// Classify driver errors
	if mongoErr := ec.classifyMongoError(err); mongoErr != nil {
		return mongoErr
	}

	// Classify network errors
	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}

	// Classify context errors
	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	// Classify file system errors
	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	// Default to unknown error
	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMongoError classifies driver-specific errors
func (ec *ErrorClassifier) classifyMongoError(err error) *AppError {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13: // Unauthorized
			return NewAppError(ErrorTypePermission,
				"Instance access denied - check username and password", err).
				WithContext("mongo_error_code", cmdErr.Code)
		case 18: // AuthenticationFailed
			return NewAppError(ErrorTypePermission,
				"Authentication against the instance failed", err).
				WithContext("mongo_error_code", cmdErr.Code)
		case 26: // NamespaceNotFound
			return NewAppError(ErrorTypeNotFound,
				"Database or collection does not exist", err).
				WithContext("mongo_error_code", cmdErr.Code)
		case 11000: // DuplicateKey
			return NewAppError(ErrorTypeValidation,
				"Duplicate key - document already exists", err).
				WithContext("mongo_error_code", cmdErr.Code)
		default:
			if cmdErr.HasErrorLabel("RetryableWriteError") || cmdErr.HasErrorLabel("TransientTransactionError") {
				return NewRecoverableError(ErrorTypeConnection,
					fmt.Sprintf("Transient instance error: %s", cmdErr.Message), err).
					WithContext("mongo_error_code", cmdErr.Code)
			}
			return NewAppError(ErrorTypeUnknown,
				fmt.Sprintf("Instance command error: %s", cmdErr.Message), err).
				WithContext("mongo_error_code", cmdErr.Code)
		}
	}

	if mongo.IsTimeout(err) {
		return NewRecoverableError(ErrorTypeTimeout,
			"Instance operation timed out", err)
	}
	if mongo.IsNetworkError(err) {
		return NewRecoverableError(ErrorTypeConnection,
			"Instance network error - server may be down or unreachable", err)
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return NewRecoverableError(ErrorTypeConnection,
			"Instance client is disconnected", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return NewAppError(ErrorTypeNotFound, "No documents found", err)
	}

	return nil
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewRecoverableError(ErrorTypeTimeout,
				"Network operation timed out", err)
		}
	}

	// Check for specific network error types
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverableError(ErrorTypeConnection,
				"Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverableError(ErrorTypeConnection,
				"Network I/O error", err)
		}
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRecoverableError(ErrorTypeTimeout,
			"Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption,
			"Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewAppError(ErrorTypeNotFound,
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case syscall.EACCES:
			return NewAppError(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case syscall.ENOSPC:
			return NewAppError(ErrorTypeValidation,
				"No space left on device", err)
		}
	}

	return nil
}

// RetryPolicy holds the retry behavior for backup unit operations. The zero
// MaxAttempts means retry without bound, which matches the historical behavior
// of retrying a unit until the operator intervenes.
type RetryPolicy struct {
	// Interval is the fixed pause between attempts
	Interval time.Duration
	// MaxAttempts caps total attempts when > 0
	MaxAttempts int
	// OnAttempt is invoked before each attempt with the 1-based attempt number
	// and the error from the previous attempt (nil on the first)
	OnAttempt func(attempt int, lastErr error)
	// Sleep overrides the wait between attempts; tests use it to observe
	// backoff without waiting
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the standard unit retry policy: unbounded
// attempts with a fixed 10 second pause
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Interval:    10 * time.Second,
		MaxAttempts: 0,
	}
}

// Run executes operation under the policy. Non-recoverable errors return
// immediately; recoverable errors are retried at the fixed interval until
// success, context cancellation, or the attempt ceiling.
func (rp RetryPolicy) Run(ctx context.Context, operation func() error) error {
	classifier := NewErrorClassifier()
	sleep := rp.Sleep
	if sleep == nil {
		sleep = sleepWithContext
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled", ctx.Err())
		default:
		}

		if rp.OnAttempt != nil {
			rp.OnAttempt(attempt, lastErr)
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		appErr := classifier.ClassifyError(err)
		if !appErr.IsRecoverable() {
			return appErr
		}

		if rp.MaxAttempts > 0 && attempt >= rp.MaxAttempts {
			return NewRetriesExhaustedError(attempt, lastErr)
		}

		if err := sleep(ctx, rp.Interval); err != nil {
			return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", err)
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GracefulShutdownHandler handles graceful shutdown on interruption signals
type GracefulShutdownHandler struct {
	shutdownFuncs []func() error
	signalChan    chan os.Signal
	done          chan bool
}

// NewGracefulShutdownHandler creates a new graceful shutdown handler
func NewGracefulShutdownHandler() *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		shutdownFuncs: make([]func() error, 0),
		signalChan:    make(chan os.Signal, 1),
		done:          make(chan bool, 1),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (gsh *GracefulShutdownHandler) RegisterShutdownFunc(fn func() error) {
	gsh.shutdownFuncs = append(gsh.shutdownFuncs, fn)
}

// Start starts listening for shutdown signals
func (gsh *GracefulShutdownHandler) Start() {
	signal.Notify(gsh.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-gsh.signalChan
		gsh.shutdown()
	}()
}

// Stop stops the graceful shutdown handler
func (gsh *GracefulShutdownHandler) Stop() {
	signal.Stop(gsh.signalChan)
	close(gsh.signalChan)
}

// WaitForShutdown waits for shutdown to complete
func (gsh *GracefulShutdownHandler) WaitForShutdown() {
	<-gsh.done
}

// shutdown executes all registered shutdown functions
func (gsh *GracefulShutdownHandler) shutdown() {
	defer func() {
		gsh.done <- true
	}()

	for i := len(gsh.shutdownFuncs) - 1; i >= 0; i-- {
		if err := gsh.shutdownFuncs[i](); err != nil {
			// Log error but continue with shutdown
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}
}

// CreateContextWithTimeout creates a context with timeout and cancellation support
func CreateContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// CreateContextWithCancel creates a cancelable context
func CreateContextWithCancel() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// IsRecoverableError checks if an error is recoverable
func IsRecoverableError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRecoverable()
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// FormatUserError formats an error for display to users
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.GetUserMessage()
	}

	// For non-AppError types, provide generic message
	return "An unexpected error occurred. Please check the logs for more details."
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return NewAppError(appErr.Type, message, err)
	}

	classifier := NewErrorClassifier()
	classifiedErr := classifier.ClassifyError(err)
	classifiedErr.Message = message
	return classifiedErr
}
