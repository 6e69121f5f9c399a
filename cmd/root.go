package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "resysniper",
		Short:         "Books restaurant reservations the moment the platform releases them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newSealCmd())
	root.AddCommand(newServerCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newSnipeCmd())
	root.AddCommand(newRateLimitCmd())
	root.AddCommand(newPingCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
