package module

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewCallCommand creates the call command.
func NewCallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call FILE OPERATION [PAYLOAD]",
		Short: "Invoke an operation on a guest module",
		Long: `Load a waPC guest module, invoke OPERATION once and print the response.
The payload is taken from the argument, or from stdin when --stdin is set.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: runCall,
	}

	cmd.Flags().Bool("stdin", false, "read the payload from stdin")
	cmd.Flags().Bool("hex", false, "payload argument is hex encoded and the response is printed as hex")

	return cmd
}

func runCall(cmd *cobra.Command, args []string) error {
	useStdin, _ := cmd.Flags().GetBool("stdin")
	useHex, _ := cmd.Flags().GetBool("hex")

	var payload []byte
	switch {
	case useStdin:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		payload = data
	case len(args) == 3 && useHex:
		data, err := hex.DecodeString(args[2])
		if err != nil {
			return fmt.Errorf("invalid hex payload: %w", err)
		}
		payload = data
	case len(args) == 3:
		payload = []byte(args[2])
	}

	ctx := cmd.Context()
	h, err := OpenHost(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = h.Close(ctx) }()

	resp, err := h.Call(ctx, args[1], payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useHex {
		_, err = fmt.Fprintln(out, hex.EncodeToString(resp))
		return err
	}
	_, err = fmt.Fprintln(out, string(resp))

	return err
}
