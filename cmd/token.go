package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/lanne/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user]",
	Short: "Issue an API token for a user",
	Long: `Signs a bearer token for the given user id with LANNE_AUTH_SECRET.
Use it in the Authorization header, or as ?token= for the WebSocket endpoint,
when auth.enabled is true.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := cfg.Auth.TokenTTL
		if d, _ := cmd.Flags().GetDuration("ttl"); d > 0 {
			ttl = d
		}

		v, err := auth.NewVerifier(os.Getenv(authSecretEnvVar), cfg.Auth.Issuer, ttl)
		if err != nil {
			return fmt.Errorf("%s: %w", authSecretEnvVar, err)
		}
		token, err := v.Issue(args[0])
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
