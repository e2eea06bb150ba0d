// Package commands defines all Cobra CLI commands for the ragkit binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ragkit-dev/ragkit/internal/audit"
	"github.com/ragkit-dev/ragkit/internal/config"
	"github.com/ragkit-dev/ragkit/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragkit",
		Short: "ragkit — a local-first documentation QA assistant",
		Long: `ragkit answers questions about your indexed documentation, grounded in the
documents themselves. Ingest documentation URLs into a local Qdrant vector
store, then ask questions from the CLI or over the streaming HTTP API.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.ragkit/config.yaml).
See 'ragkit --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file in the working directory is loaded first; real
			// environment variables still win.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragkit/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
