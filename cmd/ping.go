package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/reservation"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping [platform]",
		Short: "Check platform credentials (all platforms when none is named)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			reg := a.registry()

			results := map[reservation.Platform]error{}
			if len(args) == 1 {
				p := reservation.Platform(args[0])
				provider, err := reg.Provider(p)
				if err != nil {
					return err
				}
				results[p] = provider.Ping(ctx)
			} else {
				results = reg.PingAll(ctx)
			}

			names := make([]string, 0, len(results))
			for p := range results {
				names = append(names, string(p))
			}
			sort.Strings(names)

			failed := 0
			for _, name := range names {
				if err := results[reservation.Platform(name)]; err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: FAIL %v\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d platforms failed", failed, len(results))
			}
			return nil
		},
	}
}
