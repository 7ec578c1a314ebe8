package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"mongo-blob-backup/internal/backup"
	"mongo-blob-backup/internal/config"
	"mongo-blob-backup/internal/confirmation"
	"mongo-blob-backup/internal/display"
	apperrors "mongo-blob-backup/internal/errors"
	"mongo-blob-backup/internal/execution"
	"mongo-blob-backup/internal/logging"
	"mongo-blob-backup/internal/restore"
)

// Application wires one command invocation: executor, logger, display, and
// confirmation. The command layer parses flags into a config and hands off
// here; everything below runs the same regardless of how it was invoked.
type Application struct {
	cfg             *config.Config
	executor        *execution.Executor
	logger          *logging.Logger
	display         *display.Service
	confirm         confirmation.Service
	shutdownHandler *apperrors.GracefulShutdownHandler
}

// Options holds the application configuration
type Options struct {
	Config      *config.Config
	Display     *display.Service
	ToolVersion string
}

// NewApplication creates a new application instance. The configuration is
// validated here, before any side effect.
func NewApplication(opts Options) (*Application, error) {
	executor, err := execution.NewExecutor(opts.Config, opts.ToolVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	if err := executor.ValidateConfig(); err != nil {
		return nil, err
	}

	disp := opts.Display
	if disp == nil {
		disp = display.NewService(display.Options{})
	}

	return &Application{
		cfg:             opts.Config,
		executor:        executor,
		logger:          executor.GetLogger(),
		display:         disp,
		confirm:         confirmation.NewService(disp),
		shutdownHandler: executor.GetShutdownHandler(),
	}, nil
}

// RunBackup executes a whole backup run and renders its result. A run with
// failed units still renders the full unit table before the error returns.
func (app *Application) RunBackup(ctx context.Context) error {
	app.logger.Info("Mongo Blob Backup starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.setupSignalHandling(cancel)

	result, err := app.executor.ExecuteBackup(ctx)
	app.displayBackupResult(result)
	if err != nil {
		return app.handleExecutionError(err)
	}

	app.logger.Info("Mongo Blob Backup completed")
	return nil
}

// RunRestore restores the referenced snapshot into the configured instance.
// The ref may be a snapshot timestamp, a full root path, or "latest". The
// drop phase is confirmed interactively unless assumeYes is set.
func (app *Application) RunRestore(ctx context.Context, ref string, assumeYes bool) error {
	app.logger.Info("Mongo Blob Backup restore starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.setupSignalHandling(cancel)

	info, manifest, err := app.executor.DescribeSnapshot(ctx, ref)
	if err != nil {
		return app.handleExecutionError(err)
	}

	prompt := confirmation.RestorePrompt{
		Snapshot: info.Root,
		Taken:    info.Taken,
		Target:   logging.SanitizeURI(app.cfg.Mongo.URI),
	}
	if manifest != nil {
		prompt.Units = len(manifest.Units)
	}

	confirmed, err := app.confirm.ConfirmRestore(prompt, assumeYes)
	if err != nil {
		return app.handleExecutionError(err)
	}
	if !confirmed {
		app.display.Info("Restore cancelled")
		return nil
	}

	result, err := app.executor.ExecuteRestore(ctx, info.Root)
	app.displayRestoreResult(result)
	if err != nil {
		return app.handleExecutionError(err)
	}

	app.logger.Info("Mongo Blob Backup restore completed")
	return nil
}

// setupSignalHandling cancels the run context on SIGINT/SIGTERM so the
// executor unwinds and scratch cleanup still runs. A second signal exits
// immediately.
func (app *Application) setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		app.logger.WithField("signal", sig.String()).Warn("Received shutdown signal, cancelling the run")
		cancel()

		<-sigChan
		app.logger.Error("Forced shutdown")
		os.Exit(1)
	}()
}

// handleExecutionError classifies and logs an error, then emits
// troubleshooting hints for classes an operator can usually fix on the
// spot. The classified error is returned so the exit code reflects it.
func (app *Application) handleExecutionError(err error) error {
	processed := app.executor.HandleError(err)

	var appErr *apperrors.AppError
	if errors.As(processed, &appErr) {
		app.provideTroubleshootingHints(appErr)
	}
	return processed
}

// provideTroubleshootingHints provides helpful troubleshooting information
func (app *Application) provideTroubleshootingHints(appErr *apperrors.AppError) {
	switch appErr.Type {
	case apperrors.ErrorTypeConnection:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that the MongoDB instance is running\n")
		fmt.Fprintf(os.Stderr, "- Verify the host and port in the connection URI\n")
		fmt.Fprintf(os.Stderr, "- Ensure network connectivity to the instance\n")
		fmt.Fprintf(os.Stderr, "- Check firewall settings\n")

	case apperrors.ErrorTypePermission:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Verify the credentials in the connection URI\n")
		fmt.Fprintf(os.Stderr, "- Check that the user can list and read every database\n")
		fmt.Fprintf(os.Stderr, "- Restores additionally need drop and insert rights\n")

	case apperrors.ErrorTypeStorage, apperrors.ErrorTypeTransfer:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Verify the storage account credentials\n")
		fmt.Fprintf(os.Stderr, "- Check that the container name is correct\n")
		fmt.Fprintf(os.Stderr, "- Ensure network connectivity to the storage endpoint\n")

	case apperrors.ErrorTypeValidation:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Review the command line arguments\n")
		fmt.Fprintf(os.Stderr, "- Check the configuration file for missing settings\n")
		fmt.Fprintf(os.Stderr, "- Run 'mongo-blob-backup config validate' to see the full problem\n")

	case apperrors.ErrorTypeDump, apperrors.ErrorTypeRetriesExhausted:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Check that mongodump is installed and on PATH\n")
		fmt.Fprintf(os.Stderr, "- Review the tool output above for the failing collection\n")
		fmt.Fprintf(os.Stderr, "- Verify there is enough free scratch disk space\n")

	case apperrors.ErrorTypeConflict:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- Another backup wrote this snapshot root in the same second\n")
		fmt.Fprintf(os.Stderr, "- Re-run the backup to get a fresh snapshot timestamp\n")

	case apperrors.ErrorTypeTimeout:
		fmt.Fprintf(os.Stderr, "\nTroubleshooting hints:\n")
		fmt.Fprintf(os.Stderr, "- The operation took longer than expected\n")
		fmt.Fprintf(os.Stderr, "- Try increasing mongo.connect_timeout\n")
		fmt.Fprintf(os.Stderr, "- Check instance and storage performance\n")
	}
}

// displayBackupResult renders the unit table and run summary
func (app *Application) displayBackupResult(result *backup.RunResult) {
	if result == nil {
		return
	}

	if app.display.Structured() {
		if err := app.display.Encode(result); err != nil {
			app.logger.WithField("error", err.Error()).Warn("Failed to encode backup result")
		}
		return
	}

	app.display.Header(fmt.Sprintf("Backup %s", result.Root))

	rows := make([][]string, 0, len(result.Units))
	for _, unit := range result.Units {
		rows = append(rows, []string{
			unit.Unit.Database,
			unit.Unit.Collection,
			string(unit.Status),
			strconv.Itoa(unit.Attempts),
			display.FormatBytes(unit.Bytes),
			display.FormatDuration(unit.Duration),
		})
	}
	if err := app.display.Table([]string{"Database", "Collection", "Status", "Attempts", "Size", "Duration"}, rows); err != nil {
		app.logger.WithField("error", err.Error()).Warn("Failed to render unit table")
	}

	succeeded, skipped, failed := result.Counts()
	summary := fmt.Sprintf("%d succeeded, %d skipped, %d failed, %s uploaded in %s",
		succeeded, skipped, failed,
		display.FormatBytes(result.TotalBytes()),
		display.FormatDuration(result.FinishedAt.Sub(result.StartedAt)))
	if failed > 0 {
		app.display.Warning(summary)
	} else {
		app.display.Success(summary)
	}

	if result.Retention != nil {
		app.display.Info(fmt.Sprintf("Retention sweep removed %d of %d examined objects",
			result.Retention.Removed, result.Retention.Examined))
	}
}

// displayRestoreResult renders the per-unit outcomes and restore summary
func (app *Application) displayRestoreResult(result *restore.Result) {
	if result == nil {
		return
	}

	if app.display.Structured() {
		if err := app.display.Encode(result); err != nil {
			app.logger.WithField("error", err.Error()).Warn("Failed to encode restore result")
		}
		return
	}

	app.display.Header(fmt.Sprintf("Restore %s", result.Root))

	if result.Phase == restore.PhaseAborted {
		app.display.Error("Restore aborted before touching the target instance")
		return
	}

	app.display.Info(fmt.Sprintf("Dropped %d collections", result.Dropped))

	rows := make([][]string, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		status := "loaded"
		if !outcome.Loaded {
			status = "failed"
		}
		rows = append(rows, []string{
			outcome.Unit.Database,
			outcome.Unit.Collection,
			status,
			display.FormatDuration(outcome.Duration),
		})
	}
	if err := app.display.Table([]string{"Database", "Collection", "Status", "Duration"}, rows); err != nil {
		app.logger.WithField("error", err.Error()).Warn("Failed to render outcome table")
	}

	loaded, failed := result.Counts()
	switch {
	case failed == 0:
		app.display.Success(fmt.Sprintf("%d units loaded in %s",
			loaded, display.FormatDuration(result.FinishedAt.Sub(result.StartedAt))))
	case loaded > 0:
		app.display.Warning(fmt.Sprintf("%d units loaded, %d failed", loaded, failed))
	default:
		app.display.Error(fmt.Sprintf("all %d units failed to load", failed))
	}
}

// GetLogger returns the application logger
func (app *Application) GetLogger() *logging.Logger {
	return app.logger
}

// Shutdown waits for registered cleanup to finish
func (app *Application) Shutdown() error {
	app.logger.Info("Shutting down application")
	app.shutdownHandler.WaitForShutdown()
	return nil
}
