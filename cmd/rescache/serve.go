package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/corvusflow/rescache/internal/gc"
	"github.com/corvusflow/rescache/internal/statusapi"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the status API and periodic GC sweeper until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := bootstrap()
			if err != nil {
				return err
			}
			defer ctx.Close()

			t := ctx.NewTracker(true)
			defer ctx.CloseTracker(t)

			sweeper := gc.New(ctx.Catalog, ctx.Logger)
			stop := make(chan struct{})
			defer close(stop)
			go sweeper.RunEvery(time.Duration(ctx.Config.Catalog.SweepMinutes)*time.Minute, stop)

			if !ctx.Config.StatusAPI.Enabled {
				ctx.Logger.Info("status API disabled; running GC sweeper only")
				select {}
			}

			server := statusapi.New(t, ctx.Logger, ctx.Config.StatusAPI.RatePerSecond, ctx.Config.StatusAPI.Burst)
			ctx.Logger.Info("status API listening on %s", ctx.Config.StatusAPI.Bind)
			return server.Start(ctx.Config.StatusAPI.Bind)
		},
	}
}
