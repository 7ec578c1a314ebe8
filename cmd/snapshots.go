package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mongo-blob-backup/internal/display"
	"mongo-blob-backup/internal/execution"
)

// snapshotsCmd represents the snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the server's snapshots in storage",
	Long: `List the snapshots a server holds in blob storage, newest first.

Each line aggregates one snapshot root: when it was taken, how many objects
it holds, their total size, and whether a manifest was written. The listing
never touches the MongoDB instance; only storage credentials are needed.

Examples:
  # List snapshots as a table
  mongo-blob-backup snapshots --server prod-db-01

  # List snapshots as JSON for scripting
  mongo-blob-backup snapshots --server prod-db-01 --output json`,
	RunE: runSnapshots,
}

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

// runSnapshots is the execution function for the snapshots command
func runSnapshots(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	executor, err := execution.NewExecutor(cfg, version)
	if err != nil {
		return err
	}

	infos, err := executor.ListSnapshots(context.Background())
	if err != nil {
		return executor.HandleError(err)
	}

	disp := newDisplay()
	if disp.Structured() {
		return disp.Encode(infos)
	}

	if len(infos) == 0 {
		disp.Info(fmt.Sprintf("No snapshots found for server %s", cfg.Server))
		return nil
	}

	disp.Header(fmt.Sprintf("Snapshots for %s", cfg.Server))
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		manifest := "no"
		if info.HasManifest {
			manifest = "yes"
		}
		rows = append(rows, []string{
			info.ID.String(),
			display.FormatTime(info.Taken),
			strconv.Itoa(info.Objects),
			display.FormatBytes(info.Bytes),
			manifest,
		})
	}
	if err := disp.Table([]string{"Snapshot", "Taken", "Objects", "Size", "Manifest"}, rows); err != nil {
		return err
	}
	disp.Info(fmt.Sprintf("Total snapshots: %d", len(infos)))
	return nil
}
