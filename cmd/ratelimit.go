package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRateLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit",
		Short: "Show the configured per-platform request budgets",
		Long: "Show the configured per-platform request budgets. Live bucket levels belong\n" +
			"to the running server: see GET /api/ratelimits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLATFORM\tMAX\tAVAILABLE\tLIMITED")
			for _, s := range a.limiter.AllStatus() {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", s.Platform, s.Max, s.Available, s.IsLimited)
			}
			b := a.cfg.RateFallback
			fmt.Fprintf(tw, "(other)\t%d\t%d per %s\t\n", b.MaxTokens, b.RefillRate, b.RefillInterval)
			return tw.Flush()
		},
	}
}
