package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mongo-blob-backup/internal/config"
	"mongo-blob-backup/internal/display"
	apperrors "mongo-blob-backup/internal/errors"
)

var cfgFile string

// CLI flag variables
var (
	// Connection flags
	serverLabel string
	mongoURI    string

	// Storage flags
	storageProvider string
	containerName   string

	// Operation flags
	verbose bool
	quiet   bool
	logFile string

	// Display flags
	noColor      bool
	theme        string
	outputFormat string
)

// Exit codes reported to the caller. Partial restore is distinguishable
// from total failure so schedulers can alert differently on the two.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
	exitPartial = 3
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mongo-blob-backup",
	Short: "Back up MongoDB instances to blob storage and restore them on demand",
	Long: `Mongo Blob Backup dumps every database and collection of a MongoDB
instance into a timestamped snapshot in blob storage (Azure Blob Storage,
Amazon S3, Google Cloud Storage, or a local directory) and restores any
snapshot back into an instance.

Snapshots live under <container>/<server>/<server>_<YYYY-MM-DD-HH-MM-SS>/
with one directory per database/collection pair. Expired snapshots are
swept after each successful backup and on demand with the prune command.

Examples:
  # Back up an instance, one unit per collection
  mongo-blob-backup backup --uri mongodb://localhost:27017 --server prod-db-01

  # Restore the newest snapshot without prompting
  mongo-blob-backup restore --uri mongodb://localhost:27017 --server prod-db-01 \
                            --snapshot latest --yes

  # List snapshots as JSON for scripting
  mongo-blob-backup snapshots --server prod-db-01 --output json

  # Preview a retention sweep with a two-week horizon
  mongo-blob-backup prune --server prod-db-01 --max-age 336h --dry-run

  # Write a commented starter configuration
  mongo-blob-backup config init > mongo-blob-backup.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). Failures map onto distinct
// exit codes: 1 operation failure, 2 configuration or validation failure,
// 3 partial restore.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userErrorText(err))
		os.Exit(exitCodeFor(err))
	}
}

// userErrorText keeps the typed errors' user wording and falls back to the
// raw message for everything else, flag parse errors mostly
func userErrorText(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.FormatUserError(appErr)
	}
	return err.Error()
}

// exitCodeFor maps an error to the process exit code
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	switch apperrors.GetErrorType(err) {
	case apperrors.ErrorTypeValidation:
		return exitConfig
	case apperrors.ErrorTypePartialRestore:
		return exitPartial
	default:
		return exitFailure
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Configuration file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mongo-blob-backup.yaml or $HOME/.mongo-blob-backup/)")

	// Connection flags
	rootCmd.PersistentFlags().StringVar(&serverLabel, "server", "", "server label naming this instance in storage paths")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "uri", "", "MongoDB connection URI (mongodb:// or mongodb+srv://)")

	// Storage flags
	rootCmd.PersistentFlags().StringVar(&storageProvider, "storage", "", "storage provider (azure, s3, gcs, local)")
	rootCmd.PersistentFlags().StringVar(&containerName, "container", "", "storage container or bucket name (default \"mongodbbackup\")")

	// Operation flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stderr")

	// Display flags
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "dark", "color theme (dark, light, plain)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")

	// Bind flags to viper
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("mongo.uri", rootCmd.PersistentFlags().Lookup("uri"))
	viper.BindPFlag("storage.provider", rootCmd.PersistentFlags().Lookup("storage"))
	viper.BindPFlag("storage.container", rootCmd.PersistentFlags().Lookup("container"))
	viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search the working directory first, then the per-user directory.
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join(home, ".mongo-blob-backup"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("mongo-blob-backup")
	}

	// Set environment variable prefix; nested keys map with underscores,
	// e.g. MONGOBLOB_STORAGE_AZURE_ACCOUNT_KEY -> storage.azure.account_key
	viper.SetEnvPrefix("MONGOBLOB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// buildConfig builds the invocation configuration from CLI flags, config
// file, and environment. Flags bound through viper already take precedence;
// only the flags without a single config key need explicit handling here.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	if verbose && quiet {
		return nil, apperrors.NewValidationError("--verbose and --quiet flags are mutually exclusive", nil)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if quiet {
		cfg.Logging.Level = "quiet"
	} else if verbose {
		cfg.Logging.Level = "verbose"
	}

	return cfg, nil
}

// newDisplay creates the display service for command output
func newDisplay() *display.Service {
	return display.NewService(display.Options{
		ColorEnabled: !noColor,
		Theme:        theme,
		Format:       display.OutputFormat(outputFormat),
		Quiet:        quiet,
	})
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for mongo-blob-backup",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mongo-blob-backup version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
			fmt.Printf("Go version: %s\n", goVersion)
		},
	}
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(createVersionCommand())
}
