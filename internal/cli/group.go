package cli

import (
	"github.com/spf13/cobra"
)

func newJoinCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room> <target-room>",
		Short: "Group a room with another room's zone",
		Long:  "Moves <room> into the zone containing <target-room>. Joining a zone the room already belongs to succeeds without any change.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			if err := plane.Join(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			writePlainLine(cmd, flags, "joined "+args[0]+" to "+args[1])
			return writeOK(cmd, flags, "join", map[string]any{"room": args[0], "target": args[1]})
		},
	}
}

func newLeaveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <room>",
		Short: "Remove a room from its zone",
		Long:  "Makes <room> a standalone zone. Removing a zone's coordinator dissolves the whole group into standalone zones.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			if err := plane.Leave(cmd.Context(), args[0]); err != nil {
				return err
			}
			writePlainLine(cmd, flags, args[0]+" is now standalone")
			return writeOK(cmd, flags, "leave", map[string]any{"room": args[0]})
		},
	}
}
