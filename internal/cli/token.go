package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/fmueller/dictado/internal/token"
	"github.com/spf13/cobra"
)

func newTokenCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for servers that require them",
	}

	var (
		opts    serveOptions
		secret  string
		subject string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a client token with the server's token secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				cfg, err := loadServerConfig(opts)
				if err != nil {
					return err
				}
				secret = cfg.TokenSecret
			}
			if secret == "" {
				return errors.New("token secret required; set DICTADO_TOKEN_SECRET or pass --secret")
			}
			if ttl < 0 {
				return fmt.Errorf("ttl must not be negative, got %s", ttl)
			}

			signed, err := token.NewService(secret).Issue(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}

	bindLoggingFlags(issue, app)
	issue.Flags().StringVar(&opts.configFile, "config", "", "Server config file holding token_secret")
	issue.Flags().StringVar(&opts.envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	issue.Flags().StringVar(&secret, "secret", "", "Token secret; defaults to the server configuration")
	issue.Flags().StringVar(&subject, "subject", "", "Device ID the token is bound to; empty allows any device")
	issue.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime; 0 never expires")

	cmd.AddCommand(issue)
	return cmd
}
