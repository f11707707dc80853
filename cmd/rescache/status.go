package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <url>",
		Short: "Print the current transfer status of a tracked resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := bootstrap()
			if err != nil {
				return err
			}
			defer ctx.Close()

			t := ctx.NewTracker(false)
			defer ctx.CloseTracker(t)

			transferred, err := t.AmountRead(args[0])
			if err != nil {
				return err
			}
			total, err := t.TotalSize(args[0])
			if err != nil {
				return err
			}
			path, err := t.GetCacheFile(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s: %s / %s\n", args[0], humanize.Bytes(uint64(max64(transferred, 0))), humanize.Bytes(uint64(max64(total, 0))))
			if path != "" {
				fmt.Printf("local file: %s\n", path)
			}
			return nil
		},
	}
}
