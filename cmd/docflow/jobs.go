package main

import (
	"context"
	"fmt"

	"github.com/altafino/docflow/internal/app"
	"github.com/altafino/docflow/internal/config"
	"github.com/altafino/docflow/internal/types"
	"github.com/altafino/docflow/internal/validation"
	"github.com/altafino/docflow/internal/worker"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var dateStart, dateEnd, folder string
	var lastDays int

	cmd := &cobra.Command{
		Use:   "extract <config-id>",
		Short: "Save the attachments of matching mails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := jobConfig(args[0], types.KindExtract)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("from") || cmd.Flags().Changed("to") {
				cfg.Extract.DateStart, cfg.Extract.DateEnd, cfg.Extract.LastDays = dateStart, dateEnd, 0
			}
			if cmd.Flags().Changed("last-days") {
				cfg.Extract.LastDays = lastDays
			}
			if folder != "" {
				cfg.Extract.SourceFolder = folder
			}
			if err := validation.ValidateConfig(cfg); err != nil {
				return err
			}
			return runJob(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&dateStart, "from", "", "first mail date, YYYY-MM-DD")
	cmd.Flags().StringVar(&dateEnd, "to", "", "last mail date, YYYY-MM-DD")
	cmd.Flags().IntVar(&lastDays, "last-days", 0, "window of days ending today")
	cmd.Flags().StringVar(&folder, "folder", "", "override the source folder")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "classify <config-id>",
		Short: "Sort documents into signed, unsigned and unmatched folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := jobConfig(args[0], types.KindClassify)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Classify.Mode = mode
			}
			if err := validation.ValidateConfig(cfg); err != nil {
				return err
			}
			return runJob(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "override the mode (copy, move)")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config-id>",
		Short: "Run a job once, whatever its kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := jobConfig(args[0], "")
			if err != nil {
				return err
			}
			return runJob(cmd, cfg)
		},
	}
}

func newFoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folders <config-id>",
		Short: "List the folders of a job's mail store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := jobConfig(args[0], types.KindExtract)
			if err != nil {
				return err
			}
			l, err := jobLogger(cfg, true)
			if err != nil {
				return err
			}
			folders, err := app.NewRunner(afero.NewOsFs(), l).Folders(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for _, f := range folders {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

// jobConfig returns a copy of the job, checking its kind when kind is set.
func jobConfig(id, kind string) (*types.Config, error) {
	stored, err := config.GetConfig(id)
	if err != nil {
		return nil, err
	}
	if kind != "" && stored.Kind != kind {
		return nil, fmt.Errorf("config %s is a %s job, not %s", id, stored.Kind, kind)
	}
	cfg := *stored
	return &cfg, nil
}

func runJob(cmd *cobra.Command, cfg *types.Config) error {
	l, err := jobLogger(cfg, true)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	loop := worker.NewLoop()
	job, err := app.NewRunner(afero.NewOsFs(), l).Start(cmd.Context(), cfg, loop, consoleListeners(out))
	if err != nil {
		return err
	}

	summary, err := follow(context.WithoutCancel(cmd.Context()), out, job, loop)
	printSummary(out, summary)
	return err
}
