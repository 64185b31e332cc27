package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zonehub/zonehub/internal/config"
	"github.com/zonehub/zonehub/internal/control"
	"github.com/zonehub/zonehub/internal/logging"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane until interrupted",
		Long:  "Discovers the fleet, subscribes to notifications on the configured listen address, and keeps the zone map and device states live until SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.Config)
			if err != nil {
				return err
			}
			if flags.Debug {
				cfg.Log.Level = "debug"
			}
			logging.Setup(cfg.Log)

			plane := control.NewPlane(cfg)
			startCtx, cancel := context.WithTimeout(cmd.Context(), flags.Timeout)
			err = plane.Start(startCtx)
			cancel()
			if err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-sig:
			case <-cmd.Context().Done():
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			plane.Stop(stopCtx)
			return nil
		},
	}
}
