package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type discoveredDevice struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	ID   string `json:"id"`
}

func newDiscoverCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Discover devices on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			var out []discoveredDevice
			for _, d := range plane.Devices() {
				out = append(out, discoveredDevice{Name: d.Name, IP: d.IP(), ID: d.ID})
			}

			if flags.JSON {
				return writeJSON(cmd, out)
			}
			for _, d := range out {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-15s %s\n", d.Name, d.IP, d.ID)
			}
			return nil
		},
	}
}

func newZonesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "zones",
		Short: "Show current zone grouping",
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			zones := plane.Zones()
			if flags.JSON {
				type zoneOut struct {
					Coordinator string   `json:"coordinator"`
					Members     []string `json:"members"`
				}
				var out []zoneOut
				for _, z := range zones {
					zo := zoneOut{Coordinator: z.Coordinator.Name}
					for _, m := range z.VisibleMembers() {
						zo.Members = append(zo.Members, m.Name)
					}
					out = append(out, zo)
				}
				return writeJSON(cmd, out)
			}

			for _, z := range zones {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", z.Coordinator.Name)
				for _, m := range z.VisibleMembers() {
					marker := " "
					if m.IsCoordinator {
						marker = "*"
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%s)\n", marker, m.Name, m.IP)
				}
			}
			return nil
		},
	}
}
