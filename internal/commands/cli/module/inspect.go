package module

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/pkg/engine"
	"github.com/andrei-cloud/go_wapc/pkg/wapc"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show how a guest module links against the host",
		Long: `Compile a guest module without running it and print its imports in module order,
the provider each one resolves to, and the waPC exports it declares.`,
		Args: cobra.ExactArgs(1),
		RunE: runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read module: %w", err)
	}

	report, err := engine.Inspect(cmd.Context(), code, config.Get().EngineOptions()...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNamespace\tName\tKind\tResolution")
	_, _ = fmt.Fprintln(w, "-\t---------\t----\t----\t----------")
	for i, imp := range report.Imports {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, imp.Namespace, imp.Name, imp.Kind, imp.Resolution)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	entry := "missing"
	if report.HasEntry {
		entry = "ok"
	}
	starts := "none"
	if len(report.Starts) > 0 {
		starts = strings.Join(report.Starts, ", ")
	}
	_, _ = fmt.Fprintf(out, "\n%s: %s\n", wapc.GuestCall, entry)
	_, err = fmt.Fprintf(out, "start exports: %s\n", starts)

	return err
}
