package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newVolumeCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Get, set or adjust volume",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <room>",
		Short: "Get volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			d, err := plane.Device(args[0])
			if err != nil {
				return err
			}
			st, err := d.GetState(cmd.Context())
			if err != nil {
				return err
			}
			if flags.JSON {
				return writeJSON(cmd, map[string]any{"room": d.Name, "volume": st.Volume})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), st.Volume)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <room> <0-100>",
		Short: "Set absolute volume",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("volume must be a number: %q", args[1])
			}
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			d, err := plane.Device(args[0])
			if err != nil {
				return err
			}
			if err := d.SetVolume(cmd.Context(), v); err != nil {
				return err
			}
			return writeOK(cmd, flags, "volume set", map[string]any{"room": d.Name, "volume": v})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "adjust <room> <delta>",
		Short: "Adjust volume by a relative amount (e.g. +5, -10)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta must be a number: %q", args[1])
			}
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			d, err := plane.Device(args[0])
			if err != nil {
				return err
			}
			got, err := d.AdjustVolume(cmd.Context(), delta)
			if err != nil {
				return err
			}
			if flags.JSON {
				return writeJSON(cmd, map[string]any{"room": d.Name, "volume": got})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), got)
			return nil
		},
	})

	return cmd
}
