package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <room>",
		Short: "Show playback state, volume and current track for a room",
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
				return writeJSON(cmd, map[string]any{
					"room":     d.Name,
					"playback": string(st.Playback),
					"volume":   st.Volume,
					"mute":     st.Mute,
					"track":    st.Track,
				})
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s: %s, volume %d", d.Name, st.Playback, st.Volume)
			if st.Mute {
				_, _ = fmt.Fprint(out, " (muted)")
			}
			_, _ = fmt.Fprintln(out)
			if st.Track.Title != "" {
				_, _ = fmt.Fprintf(out, "  %s - %s\n", st.Track.Title, st.Track.Artist)
			} else if st.Track.URI != "" {
				_, _ = fmt.Fprintf(out, "  %s\n", st.Track.URI)
			}
			return nil
		},
	}
}
