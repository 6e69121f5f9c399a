package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

func newSnipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snipe",
		Short: "Manage snipes in the shared store",
		Long: "Manage snipes in the shared store. A running server picks up snipes\n" +
			"created or cancelled here on its next sync.",
	}
	cmd.AddCommand(newSnipeCreateCmd())
	cmd.AddCommand(newSnipeListCmd())
	cmd.AddCommand(newSnipeGetCmd())
	cmd.AddCommand(newSnipeCancelCmd())
	return cmd
}

func newSnipeCreateCmd() *cobra.Command {
	var (
		platform       string
		restaurantID   string
		restaurantName string
		targetDate     string
		partySize      int
		preferredTimes string
		releaseAt      string
		timezone       string
		daysOut        int
		releaseClock   string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a snipe",
		Long: "Create a snipe. The release time is either given directly with --release-at\n" +
			"or derived from --days-out, --release-time and --timezone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var release time.Time
			if releaseAt != "" {
				t, err := time.Parse(time.RFC3339, releaseAt)
				if err != nil {
					return fmt.Errorf("invalid --release-at (want RFC3339): %w", err)
				}
				release = t
			} else {
				loc, err := snipe.LoadLocation(timezone)
				if err != nil {
					return err
				}
				release, err = snipe.ReleaseAt(targetDate, daysOut, releaseClock, loc)
				if err != nil {
					return err
				}
			}

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.service().Create(ctx, snipe.Params{
				Restaurant: snipe.RestaurantRef{
					Platform: reservation.Platform(strings.ToLower(platform)),
					ID:       restaurantID,
					Name:     restaurantName,
				},
				TargetDate:     targetDate,
				PartySize:      partySize,
				PreferredTimes: splitCSV(preferredTimes),
				ReleaseTime:    release,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created snipe id=%s release_utc=%s\n",
				rec.ID, rec.ReleaseTime.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().StringVar(&platform, "platform", string(reservation.PlatformResy), "booking platform (resy or opentable)")
	c.Flags().StringVar(&restaurantID, "restaurant-id", "", "platform venue id")
	c.Flags().StringVar(&restaurantName, "restaurant-name", "", "display name")
	c.Flags().StringVar(&targetDate, "date", "", "reservation date YYYY-MM-DD")
	c.Flags().IntVar(&partySize, "party-size", 2, "party size")
	c.Flags().StringVar(&preferredTimes, "preferred-times", "7:00 PM,7:30 PM", "comma-separated times, best first")
	c.Flags().StringVar(&releaseAt, "release-at", "", "release instant (RFC3339); overrides the days-out helper")
	c.Flags().StringVar(&timezone, "timezone", "America/New_York", "timezone of --release-time")
	c.Flags().IntVar(&daysOut, "days-out", 30, "days in advance when slots open")
	c.Flags().StringVar(&releaseClock, "release-time", "00:00", "local release time HH:MM")

	_ = c.MarkFlagRequired("restaurant-id")
	_ = c.MarkFlagRequired("date")
	return c
}

func newSnipeListCmd() *cobra.Command {
	var (
		status string
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List snipes, soonest release first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var filter *snipe.Status
			if status != "" {
				st, err := snipe.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = &st
			}

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.service().List(ctx, filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPLATFORM\tRESTAURANT\tDATE\tPARTY\tRELEASE (UTC)\tSTATUS")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Restaurant.Platform, restaurantLabel(s.Restaurant), s.TargetDate,
					s.PartySize, s.ReleaseTime.Format(time.RFC3339), s.Status)
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&status, "status", "", "only list snipes in this status")
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return c
}

func newSnipeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one snipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.service().Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newSnipeCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending snipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.service().Cancel(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled snipe id=%s\n", rec.ID)
			return nil
		},
	}
}

func restaurantLabel(r snipe.RestaurantRef) string {
	if r.Name == "" {
		return r.ID
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.ID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
