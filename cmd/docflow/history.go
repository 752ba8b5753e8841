package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/altafino/docflow/internal/config"
	"github.com/altafino/docflow/internal/errorlog"
	"github.com/altafino/docflow/internal/tracking"
	"github.com/altafino/docflow/internal/types"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var state, runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history [config-id]",
		Short: "Show past runs, or the failed documents of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configs := config.ListConfigs()
			if len(args) == 1 {
				cfg, err := config.GetConfig(args[0])
				if err != nil {
					return err
				}
				configs = []*types.Config{cfg}
			}

			if runID != "" {
				return printErrors(cmd.OutOrStdout(), configs, runID)
			}

			filter := tracking.Filter{State: strings.ToUpper(state), Limit: limit}
			var runs []tracking.RunRecord
			for _, cfg := range configs {
				if !cfg.Tracking.Enabled {
					continue
				}
				tm, err := tracking.NewManager(cfg, log)
				if err != nil {
					return err
				}
				filter.JobID = cfg.Meta.ID
				found, err := tm.Runs(cmd.Context(), filter)
				tm.Close()
				if err != nil {
					return fmt.Errorf("failed to read history of %s: %w", cfg.Meta.ID, err)
				}
				runs = append(runs, found...)
			}

			sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
			if limit > 0 && len(runs) > limit {
				runs = runs[:limit]
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only runs in this state (completed, cancelled, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().StringVar(&runID, "run", "", "list the failed documents of this run")
	return cmd
}

func printRuns(w io.Writer, runs []tracking.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Started", "Job", "Engine", "State", "Processed", "Skipped", "Errored", "Elapsed", "Run"})
	table.SetBorder(false)
	for _, r := range runs {
		table.Append([]string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.JobID,
			r.Engine,
			r.State,
			strconv.Itoa(r.Processed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Errored),
			(time.Duration(r.ElapsedMS) * time.Millisecond).String(),
			r.RunID,
		})
	}
	table.Render()
}

func printErrors(w io.Writer, configs []*types.Config, runID string) error {
	var entries []errorlog.Entry
	for _, cfg := range configs {
		if !cfg.ErrorLogging.Enabled {
			continue
		}
		em, err := errorlog.NewManager(cfg, log)
		if err != nil {
			return err
		}
		found, err := em.GetErrors(map[string]string{"job_id": cfg.Meta.ID, "run_id": runID})
		em.Close()
		if err != nil {
			return fmt.Errorf("failed to read error log of %s: %w", cfg.Meta.ID, err)
		}
		entries = append(entries, found...)
	}

	if len(entries) == 0 {
		fmt.Fprintf(w, "no failed documents recorded for run %s\n", runID)
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Document", "Subject", "Error"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, e := range entries {
		table.Append([]string{e.ErrorTime.Local().Format("15:04:05"), e.Item, e.Subject, e.ErrorMsg})
	}
	table.Render()
	return nil
}
