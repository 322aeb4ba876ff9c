// Package console provides an interactive session against a single guest module.
package console

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/andrei-cloud/go_wapc/internal/commands/cli/module"
	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewConsoleCommand creates the console command.
func NewConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console FILE",
		Short: "Interactive session with a guest module",
		Long: `Open an interactive session with a waPC guest module. Each line is sent as
"operation payload"; :reload re-reads FILE and hot-swaps the running module.`,
		Args: cobra.ExactArgs(1),
		RunE: runConsole,
	}
}

func runConsole(cmd *cobra.Command, args []string) error {
	// Log output would corrupt the screen.
	log.Logger = log.Logger.Level(zerolog.Disabled)

	ctx := cmd.Context()
	filename := args[0]

	h, err := openHost(ctx, filename, io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(ctx) }()

	load := func() ([]byte, error) { return os.ReadFile(filename) }
	p := tea.NewProgram(newConsoleModel(filename, h, load), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console failed: %w", err)
	}

	return nil
}

// openHost opens filename with guest stdout and stderr sent to out, away from the screen.
func openHost(ctx context.Context, filename string, out io.Writer) (*wapc.Host, error) {
	return module.OpenHost(ctx, filename, engine.WithStdout(out), engine.WithStderr(out))
}
