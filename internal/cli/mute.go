package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMuteCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Mute or unmute a room",
	}

	setMute := func(target bool, action string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			d, err := plane.Device(args[0])
			if err != nil {
				return err
			}
			if err := d.SetMute(cmd.Context(), target); err != nil {
				return err
			}
			return writeOK(cmd, flags, action, map[string]any{"room": d.Name})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "on <room>",
		Short: "Mute",
		Args:  cobra.ExactArgs(1),
		RunE:  setMute(true, "mute on"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "off <room>",
		Short: "Unmute",
		Args:  cobra.ExactArgs(1),
		RunE:  setMute(false, "mute off"),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <room>",
		Short: "Show mute state",
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
				return writeJSON(cmd, map[string]any{"room": d.Name, "mute": st.Mute})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), st.Mute)
			return nil
		},
	})

	return cmd
}
