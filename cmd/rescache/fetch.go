package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/corvusflow/rescache/internal/domain"
)

func fetchCmd() *cobra.Command {
	var (
		versionFlag string
		policyFlag  string
		timeoutFlag time.Duration
		prefetch    bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <url> [url...]",
		Short: "Fetch one or more resources and wait for them to materialize locally",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := bootstrap()
			if err != nil {
				return err
			}
			defer ctx.Close()

			version, err := domain.ParseVersion(versionFlag)
			if err != nil {
				return err
			}
			policy, err := parsePolicy(policyFlag)
			if err != nil {
				return err
			}

			t := ctx.NewTracker(prefetch)
			defer ctx.CloseTracker(t)

			for _, raw := range args {
				if _, err := t.AddResource(raw, version, domain.DownloadOptions{}, policy); err != nil {
					return fmt.Errorf("add %s: %w", raw, err)
				}
			}

			ok, err := t.WaitFor(context.Background(), args, timeoutFlag)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("timed out waiting for %d resource(s)", len(args))
			}

			for _, raw := range args {
				path, err := t.GetCacheFile(context.Background(), raw)
				if err != nil {
					return err
				}
				size, _ := t.TotalSize(raw)
				if path == "" {
					fmt.Printf("%s -> FAILED\n", raw)
					continue
				}
				fmt.Printf("%s -> %s (%s)\n", raw, path, humanize.Bytes(uint64(max64(size, 0))))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&versionFlag, "version", "", "requested resource version")
	cmd.Flags().StringVar(&policyFlag, "policy", "session", "update policy: always|force|never|session")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "wait timeout (0 = no timeout)")
	cmd.Flags().BoolVar(&prefetch, "prefetch", false, "opt this tracker into speculative prefetch")
	return cmd
}

func parsePolicy(s string) (domain.UpdatePolicy, error) {
	switch s {
	case "always":
		return domain.PolicyAlways, nil
	case "force":
		return domain.PolicyForce, nil
	case "never":
		return domain.PolicyNever, nil
	case "session", "":
		return domain.PolicySession, nil
	default:
		return 0, fmt.Errorf("unknown update policy %q", s)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
