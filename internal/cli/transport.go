package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zonehub/zonehub/internal/device"
)

// transportCmd builds one coordinator-routed transport command. The
// room argument may be any member of the group; the command executes on
// the group's coordinator.
func transportCmd(flags *rootFlags, use, short string, run func(ctx context.Context, d *device.Proxy) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <room>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			coord, err := plane.Coordinator(args[0])
			if err != nil {
				return err
			}
			if err := run(cmd.Context(), coord); err != nil {
				return err
			}
			return writeOK(cmd, flags, use, map[string]any{"coordinator": coord.Name})
		},
	}
}

func newPlayCmd(flags *rootFlags) *cobra.Command {
	return transportCmd(flags, "play", "Start playback", func(ctx context.Context, d *device.Proxy) error {
		return d.Play(ctx)
	})
}

func newPauseCmd(flags *rootFlags) *cobra.Command {
	return transportCmd(flags, "pause", "Pause playback", func(ctx context.Context, d *device.Proxy) error {
		return d.Pause(ctx)
	})
}

func newStopCmd(flags *rootFlags) *cobra.Command {
	return transportCmd(flags, "stop", "Stop playback", func(ctx context.Context, d *device.Proxy) error {
		return d.Stop(ctx)
	})
}

func newNextCmd(flags *rootFlags) *cobra.Command {
	return transportCmd(flags, "next", "Skip to the next track", func(ctx context.Context, d *device.Proxy) error {
		return d.Next(ctx)
	})
}

func newPrevCmd(flags *rootFlags) *cobra.Command {
	return transportCmd(flags, "prev", "Skip to the previous track", func(ctx context.Context, d *device.Proxy) error {
		return d.Previous(ctx)
	})
}
