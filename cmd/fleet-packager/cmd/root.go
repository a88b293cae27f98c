package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/service/packager"
	"github.com/mattcodi/fleet-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for building and publishing updates.
	rootCmd = &cobra.Command{
		Use:   "fleet-packager [project...]",
		Short: "Build, version and publish update archives for configured projects",
		Long: `For each selected project, builds a versioned zip archive with its checksum
sidecar, refreshes the stable "latest" alias, commits and tags the
project's repository, and publishes the archive as a GitHub release
asset.

Without arguments, every project in the configuration file is packaged.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &packager.Options{
				ConfigPath: configPath,
				Projects:   args,
			}

			return packager.Run(ctx, options)
		},
	}
)

// Execute runs the fleet-packager CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to configuration file")
}
