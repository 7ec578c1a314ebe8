package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mongo-blob-backup/internal/execution"
)

var (
	// Prune flags
	pruneMaxAge time.Duration
	pruneDryRun bool
)

// pruneCmd represents the prune command
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots older than the retention horizon",
	Long: `Delete every snapshot object of a server that has aged past the
retention horizon. Snapshots age by the timestamp in their root name, so
the sweep is deterministic regardless of when their uploads finished. The
server root marker is never deleted.

The same sweep runs automatically after each successful backup when
retention is enabled in the configuration; prune runs it on demand.

Examples:
  # Sweep with the configured horizon (default 168h)
  mongo-blob-backup prune --server prod-db-01

  # Preview a sweep with a two-week horizon
  mongo-blob-backup prune --server prod-db-01 --max-age 336h --dry-run`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "retention horizon override (default from configuration)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would be deleted without deleting")
}

// runPrune is the execution function for the prune command
func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	executor, err := execution.NewExecutor(cfg, version)
	if err != nil {
		return err
	}

	result, err := executor.Prune(context.Background(), pruneMaxAge, pruneDryRun)
	if err != nil {
		return executor.HandleError(err)
	}

	disp := newDisplay()
	if disp.Structured() {
		return disp.Encode(result)
	}

	if result.DryRun {
		disp.Info(fmt.Sprintf("Examined %d objects; %d would be deleted", result.Examined, result.Removed))
		return nil
	}
	disp.Success(fmt.Sprintf("Examined %d objects; deleted %d", result.Examined, result.Removed))
	return nil
}
