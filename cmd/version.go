package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "resysniper %s (%s)\n", version.String(), version.GoVersion())
		},
	}
}
