package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/config"
	"github.com/example/resy-sniper/internal/secret"
)

func newSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a platform credential read from stdin with CRED_ENC_KEY",
		Long: "Encrypt a platform credential read from stdin with CRED_ENC_KEY. The output\n" +
			"can be used as RESY_API_KEY, RESY_AUTH_TOKEN or OPENTABLE_TOKEN.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if len(cfg.CredEncKey) == 0 {
				return fmt.Errorf("CRED_ENC_KEY is required (base64, 32 bytes; see the keys command)")
			}
			box, err := secret.New(cfg.CredEncKey)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read value: %w", err)
			}
			v := strings.TrimRight(line, "\r\n")
			if v == "" {
				return fmt.Errorf("value must not be empty")
			}

			sealed, err := box.Seal(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}
