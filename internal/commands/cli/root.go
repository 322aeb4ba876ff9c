// Package cli provides the CLI command structure for go_wapc.
package cli

import (
	"fmt"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/internal/logging"
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCommand creates and returns the root command with all subcommands.
func NewRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "go_wapc",
		Short: "waPC WebAssembly host, server and utilities",
		Long: `A host for waPC guest modules: serve a directory of modules over TCP with
hot-swapping, invoke or inspect single modules, or explore one interactively.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Initialize configuration before running any command.
			if err := config.Initialize(cfgFile, cmd.Flags()); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg := config.Get()
			logging.InitLogger(cfg.Log.Level, cfg.Log.Format == "human")

			return nil
		},
	}

	// Add persistent flags that affect all commands.
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.go_wapc/config.yaml)")

	// Add global flags that can override config file settings.
	rootCmd.PersistentFlags().
		String("log-level", "info", "logging level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "human", "logging format (human, json)")
	rootCmd.PersistentFlags().String("modules-path", "modules", "path to module directory")
	rootCmd.PersistentFlags().String("engine-kind", "auto", "execution engine (auto, compiler, interpreter)")
	rootCmd.PersistentFlags().String("engine-cache-dir", "", "directory for the compilation cache")

	// Register all commands.
	if err := RegisterCommands(rootCmd); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return rootCmd, nil
}
