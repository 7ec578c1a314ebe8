package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"mongo-blob-backup/internal/application"
)

var (
	// Restore flags
	restoreSnapshot string
	restoreYes      bool
)

// restoreCmd represents the restore command
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a snapshot into the instance",
	Long: `Restore one snapshot from blob storage into a MongoDB instance.

The restore downloads every object under the chosen snapshot root into
local scratch space, drops all collections in all non-system databases of
the target instance, and loads each unit with mongorestore. A download
failure aborts the restore before anything is dropped; a unit that fails
to load is recorded without stopping its siblings, and the command exits
with code 3 when some units loaded and some did not.

The snapshot may be named by its timestamp, by its full root path, or as
"latest" for the newest snapshot of the server.

Dropping is destructive and is confirmed interactively unless --yes is set.

Examples:
  # Restore a specific snapshot
  mongo-blob-backup restore --uri mongodb://localhost:27017 --server prod-db-01 \
                            --snapshot 2024-01-02-03-04-05

  # Restore the newest snapshot without prompting
  mongo-blob-backup restore --uri mongodb://localhost:27017 --server prod-db-01 \
                            --snapshot latest --yes`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreSnapshot, "snapshot", "latest", "snapshot timestamp, full root path, or \"latest\"")
	restoreCmd.Flags().BoolVarP(&restoreYes, "yes", "y", false, "skip the confirmation prompt before dropping collections")
}

// runRestore is the execution function for the restore command
func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	app, err := application.NewApplication(application.Options{
		Config:      cfg,
		Display:     newDisplay(),
		ToolVersion: version,
	})
	if err != nil {
		return err
	}

	return app.RunRestore(context.Background(), restoreSnapshot, restoreYes)
}
