package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/zonehub/zonehub/internal/config"
	"github.com/zonehub/zonehub/internal/control"
	"github.com/zonehub/zonehub/internal/logging"
)

// Version is stamped by the build.
var Version = "dev"

type rootFlags struct {
	Config  string
	Timeout time.Duration
	JSON    bool
	Debug   bool
}

func Execute() error {
	cmd := newRootCmd()
	cmd.SetContext(context.Background())
	return cmd.Execute()
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:          "zonehub",
		Short:        "Control a fleet of network audio zones",
		Long:         "Discovers ZonePlayers on the local network, tracks zone topology by push notification, and drives playback, volume and grouping through their group coordinators.",
		Example:      "  zonehub discover\n  zonehub status \"Kitchen\"\n  zonehub join \"Kitchen\" \"Living Room\"\n  zonehub volume set \"Kitchen\" 25\n  zonehub serve",
		SilenceUsage: true,
		Version:      Version,
	}
	rootCmd.SetVersionTemplate("zonehub {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flags.Config, "config", "", "Path to config file")
	rootCmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 15*time.Second, "Timeout for commands and discovery")
	rootCmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "Output JSON where supported")
	rootCmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newDiscoverCmd(flags))
	rootCmd.AddCommand(newZonesCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newPlayCmd(flags))
	rootCmd.AddCommand(newPauseCmd(flags))
	rootCmd.AddCommand(newStopCmd(flags))
	rootCmd.AddCommand(newNextCmd(flags))
	rootCmd.AddCommand(newPrevCmd(flags))
	rootCmd.AddCommand(newJoinCmd(flags))
	rootCmd.AddCommand(newLeaveCmd(flags))
	rootCmd.AddCommand(newVolumeCmd(flags))
	rootCmd.AddCommand(newMuteCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))

	return rootCmd
}

// startPlane boots a control plane for one command invocation. The
// returned stop func must run before the process exits.
func startPlane(ctx context.Context, flags *rootFlags) (*control.Plane, func(), error) {
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return nil, nil, err
	}
	if flags.Debug {
		cfg.Log.Level = "debug"
	}
	// One-shot commands bind an ephemeral callback port so parallel
	// invocations never collide; serve uses the configured address.
	cfg.Listen = ":0"
	logging.Setup(cfg.Log)

	plane := control.NewPlane(cfg)
	startCtx, cancel := context.WithTimeout(ctx, flags.Timeout)
	defer cancel()
	if err := plane.Start(startCtx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		plane.Stop(stopCtx)
	}
	return plane, stop, nil
}
