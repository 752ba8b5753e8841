package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/altafino/docflow/internal/app"
	"github.com/altafino/docflow/internal/oauth2"
	"github.com/altafino/docflow/internal/types"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const loginTimeout = 5 * time.Minute

func newOAuth2Cmd() *cobra.Command {
	oauth2Cmd := &cobra.Command{
		Use:   "oauth2",
		Short: "OAuth2 token management",
		Long:  `Authorize IMAP jobs that log in with XOAUTH2.`,
	}

	urlCmd := &cobra.Command{
		Use:   "url <config-id>",
		Short: "Print the consent page of a job's account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, _, err := tokenManager(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", tm.AuthCodeURL(uuid.NewString()))
			return nil
		},
	}

	exchangeCmd := &cobra.Command{
		Use:   "exchange <config-id> <code>",
		Short: "Store the token for an authorization code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, _, err := tokenManager(args[0])
			if err != nil {
				return err
			}
			token, err := tm.Exchange(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OAuth2 token saved for %s, expires at %s\n",
				args[0], token.Expiry.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	loginCmd := &cobra.Command{
		Use:   "login <config-id>",
		Short: "Authorize in the browser and store the token",
		Long: `login serves the redirect URL of the job locally, prints the consent
page and stores the token once the provider redirects back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tm, cfg, err := tokenManager(args[0])
			if err != nil {
				return err
			}

			redirect := cfg.MailStore.Security.OAuth2.RedirectURL
			if redirect == "" {
				redirect = oauth2.DefaultRedirectURL
			}
			u, err := url.Parse(redirect)
			if err != nil {
				return fmt.Errorf("invalid redirect URL %q: %w", redirect, err)
			}

			server, err := oauth2.Listen(u.Host, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Please open the following URL in your browser:\n\n%s\n\n", tm.AuthCodeURL(uuid.NewString()))
			fmt.Fprintln(out, "Waiting for authentication...")

			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()
			code, err := server.Wait(ctx)
			if err != nil {
				return fmt.Errorf("failed to get authorization code: %w", err)
			}

			fmt.Fprintln(out, "Authorization code received, exchanging for token...")
			token, err := tm.Exchange(cmd.Context(), code)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "OAuth2 token saved for %s, expires at %s\n",
				args[0], token.Expiry.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	oauth2Cmd.AddCommand(urlCmd, exchangeCmd, loginCmd)
	return oauth2Cmd
}

func tokenManager(configID string) (*oauth2.TokenManager, *types.Config, error) {
	cfg, err := jobConfig(configID, types.KindExtract)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MailStore.Type != types.MailStoreIMAP {
		return nil, nil, fmt.Errorf("config %s does not read from IMAP", configID)
	}
	tm, err := app.NewTokenManager(afero.NewOsFs(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return tm, cfg, nil
}
