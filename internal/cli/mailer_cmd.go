package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/leadreach/internal/config"
	"github.com/soyeahso/leadreach/internal/mailer"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newMailerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailer",
		Short: "Manage outbound mail credentials",
	}

	cmd.AddCommand(newMailerAuthCmd())
	return cmd
}

func newMailerAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail sending and store the OAuth token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			tokenPath := mailer.GmailTokenPath(cfg.Mailer.Gmail, paths)
			if _, err := os.Stat(tokenPath); err == nil && !force {
				fmt.Println("Already authenticated. Token exists at", tokenPath)
				fmt.Println("Re-run with --force to replace it.")
				return nil
			}

			oc, err := mailer.GmailOAuthConfig(cfg.Mailer.Gmail, paths)
			if err != nil {
				return err
			}

			authURL := oc.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Open the following link in your browser, then paste the authorization code:\n%s\n\nCode: ", authURL)

			code, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && code == "" {
				return fmt.Errorf("reading authorization code: %w", err)
			}
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("authorization code is required")
			}

			tok, err := oc.Exchange(context.Background(), code)
			if err != nil {
				return fmt.Errorf("exchanging authorization code: %w", err)
			}
			if err := mailer.SaveToken(tokenPath, tok); err != nil {
				return err
			}

			fmt.Println("\nAuthentication successful! Token saved to", tokenPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing token")
	return cmd
}
