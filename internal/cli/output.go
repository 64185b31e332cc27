package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOK(cmd *cobra.Command, flags *rootFlags, action string, extra map[string]any) error {
	if !flags.JSON {
		return nil
	}
	out := map[string]any{
		"ok":     true,
		"action": action,
	}
	for k, v := range extra {
		out[k] = v
	}
	return writeJSON(cmd, out)
}

func writePlainLine(cmd *cobra.Command, flags *rootFlags, s string) {
	if flags.JSON {
		return
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), s)
}
