package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongo-blob-backup/internal/application"
)

var (
	// Backup flags
	backupScope    string
	backupParallel int
	backupGzip     bool
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the instance into a new snapshot",
	Long: `Back up a MongoDB instance into a timestamped snapshot in blob storage.

The backup enumerates every non-system database and collection of the live
instance, dumps each one to local scratch space with mongodump, and uploads
the artifacts under <container>/<server>/<server>_<timestamp>/<db>/<coll>.
Failed units are retried on a fixed interval; collections that vanished
between enumeration and dump are skipped. After all units resolve, a
manifest is written to the snapshot root and expired snapshots are swept
when retention is enabled.

Examples:
  # Back up an instance, one unit per collection
  mongo-blob-backup backup --uri mongodb://localhost:27017 --server prod-db-01

  # Back up four collections at a time with gzipped dumps
  mongo-blob-backup backup --uri mongodb://localhost:27017 --server prod-db-01 \
                           --parallel 4 --gzip

  # Whole-instance dump in one unit (legacy layout)
  mongo-blob-backup backup --uri mongodb://localhost:27017 --server prod-db-01 \
                           --scope instance`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)

	backupCmd.Flags().StringVar(&backupScope, "scope", "", "backup granularity (collection, instance)")
	backupCmd.Flags().IntVar(&backupParallel, "parallel", 0, "units backed up concurrently (default 1)")
	backupCmd.Flags().BoolVar(&backupGzip, "gzip", false, "pass --gzip to the dump tool")

	viper.BindPFlag("backup.scope", backupCmd.Flags().Lookup("scope"))
	viper.BindPFlag("backup.parallel", backupCmd.Flags().Lookup("parallel"))
	viper.BindPFlag("backup.gzip", backupCmd.Flags().Lookup("gzip"))
}

// runBackup is the execution function for the backup command
func runBackup(cmd *cobra.Command, args []string) error {
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

	return app.RunBackup(context.Background())
}
