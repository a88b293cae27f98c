package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattcodi/fleet-updater/internal/config"
	"github.com/mattcodi/fleet-updater/internal/service/bootstrap"
	"github.com/mattcodi/fleet-updater/internal/service/distributor"
	"github.com/mattcodi/fleet-updater/internal/service/server"
	"github.com/mattcodi/fleet-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// stateFile path where apply records are persisted.
	stateFile string

	// rootCmd represents the base command for applying one project's update.
	rootCmd = &cobra.Command{
		Use:   "fleet-updater <project>",
		Short: "Fetch, verify and apply the newest update of a project",
		Long: `Downloads the project's archive from its configured source (or copies it
from a local path), verifies it against its checksum sidecar when one
exists, extracts it over the project directory, records the change in
git and restarts the project's service.

The project must be listed in the configuration file's project registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &distributor.Options{
				ConfigPath: configPath,
				Project:    args[0],
			}

			return distributor.Run(ctx, options)
		},
	}

	// serveCmd runs the HTTP server exposing the update pipeline.
	serveCmd = &cobra.Command{
		Use:   "serve [listen-address]",
		Short: "Run the HTTP server that applies updates on request",
		Long: `Starts the HTTP update server. POST /update/{name} applies an update to a
configured project, POST /create-repo/{name} bootstraps a new project
repository, and GET /status reports recorded applies.

The listen address can be provided as argument to override the
configuration (e.g., :9090, 0.0.0.0:9010).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				StateFile:     stateFile,
			}

			return server.Run(ctx, options)
		},
	}

	// createRepoCmd bootstraps a remote repository and local project directory.
	createRepoCmd = &cobra.Command{
		Use:   "create-repo <name> [description]",
		Short: "Create a project repository on GitHub and initialize it locally",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(command *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &bootstrap.Options{Name: args[0]}
			if len(args) > 1 {
				options.Description = args[1]
			}

			repositoryURL, err := bootstrap.Run(ctx, options)
			if err != nil {
				return err
			}

			command.Println(fmt.Sprintf("Repository created: %s", repositoryURL))

			return nil
		},
	}
)

// Execute runs the fleet-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to configuration file")
	serveCmd.Flags().
		StringVarP(&stateFile, "state-file", "s", "", "path to persist apply records")

	rootCmd.AddCommand(serveCmd, createRepoCmd)
}
