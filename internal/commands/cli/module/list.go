package module

import (
	"fmt"
	"text/tabwriter"

	"github.com/andrei-cloud/go_wapc/internal/config"
	"github.com/andrei-cloud/go_wapc/internal/modules"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List guest modules",
		Long:  `List the guest modules in the configured module directory with their digest and size.`,
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	infos, err := modules.Scan(config.Get().Modules.Path)
	if err != nil {
		return fmt.Errorf("failed to scan module directory: %w", err)
	}

	// Create tabwriter for aligned output.
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "Module\tSize\tDigest\tPath")
	_, _ = fmt.Fprintln(w, "------\t----\t------\t----")
	for _, info := range infos {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", info.Name, info.Size, info.Digest[:12], info.Path)
	}

	return w.Flush()
}
