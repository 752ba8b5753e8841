package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/altafino/docflow/internal/app"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configID string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled jobs until interrupted",
		Long: `serve schedules every enabled job (or only --config-id) and follows
changes to the config directory until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := serviceLogger()
			if err != nil {
				return err
			}

			a, err := app.New(l, app.NewRunner(afero.NewOsFs(), l), configDir(), configID)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer a.Stop()

			if err := a.Start(); err != nil {
				return fmt.Errorf("failed to start application: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			l.Info("shutting down application")
			return nil
		},
	}
	cmd.Flags().StringVar(&configID, "config-id", "", "schedule only this config")
	return cmd
}
