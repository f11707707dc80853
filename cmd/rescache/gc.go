package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvusflow/rescache/internal/gc"
)

func gcCmd() *cobra.Command {
	var graceMinutes int

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Sweep tombstoned cache artifacts older than the grace period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := bootstrap()
			if err != nil {
				return err
			}
			defer ctx.Close()

			sweeper := gc.New(ctx.Catalog, ctx.Logger)
			if graceMinutes > 0 {
				sweeper.Grace = time.Duration(graceMinutes) * time.Minute
			}

			removed, err := sweeper.Run(time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("removed %d artifact(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&graceMinutes, "grace-minutes", 0, "override the default tombstone grace period")
	return cmd
}
