package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zonehub/zonehub/internal/control"
	"github.com/zonehub/zonehub/internal/events"
)

type watchEvent struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Device string    `json:"device,omitempty"`
	Prev   string    `json:"prev"`
	Curr   string    `json:"curr"`
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live fleet events",
		Long:  "Subscribes to every event channel and prints state, volume, mute, track and topology changes as they arrive (Ctrl+C to stop). Devices must be able to reach this machine on the callback port.",
		RunE: func(cmd *cobra.Command, args []string) error {
			plane, stop, err := startPlane(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer stop()

			print := func(ev events.Event) {
				we := watchEvent{
					Time:   ev.At,
					Kind:   string(ev.Kind),
					Device: deviceName(plane, ev.DeviceID),
					Prev:   ev.Prev,
					Curr:   ev.Curr,
				}
				if flags.JSON {
					_ = writeJSON(cmd, we)
					return
				}
				if we.Device != "" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %-20s %s -> %s\n",
						we.Time.Format("15:04:05"), we.Kind, we.Device, we.Prev, we.Curr)
					return
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s  %-16s %s -> %s\n",
					we.Time.Format("15:04:05"), we.Kind, shorten(we.Prev), shorten(we.Curr))
			}

			hub := plane.Hub()
			for _, kind := range []events.Kind{
				events.KindState, events.KindVolume, events.KindMute,
				events.KindTrack, events.KindTopology,
			} {
				k := kind
				id := hub.Subscribe(k, print)
				defer hub.Unsubscribe(k, id)
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			var timeout <-chan time.Time
			if duration > 0 {
				t := time.NewTimer(duration)
				defer t.Stop()
				timeout = t.C
			}
			select {
			case <-sig:
			case <-timeout:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop watching after this long (0 = until interrupted)")
	return cmd
}

func deviceName(plane *control.Plane, id string) string {
	if id == "" {
		return ""
	}
	if d, err := plane.Device(id); err == nil {
		return d.Name
	}
	return id
}

// shorten keeps topology signatures readable on one line.
func shorten(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
