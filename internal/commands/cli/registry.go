// Package cli provides centralized command registration.
package cli

import (
	"github.com/andrei-cloud/go_wapc/internal/commands/cli/console"
	"github.com/andrei-cloud/go_wapc/internal/commands/cli/module"
	"github.com/andrei-cloud/go_wapc/internal/commands/cli/server"
	"github.com/spf13/cobra"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(server.NewServeCommand())
	root.AddCommand(module.NewCallCommand())
	root.AddCommand(module.NewInspectCommand())
	root.AddCommand(module.NewListCommand())
	root.AddCommand(console.NewConsoleCommand())

	return nil
}
