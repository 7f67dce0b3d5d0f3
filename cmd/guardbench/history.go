package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List stored runs, or the stored aggregates of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Store.Enabled {
				return &bench.SetupError{Component: "store", Detail: "history needs store.enabled and a database_url"}
			}
			st, err := a.openStore(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				return showResults(cmd.Context(), cmd.OutOrStdout(), st, args[0])
			}
			return listRuns(cmd.Context(), cmd.OutOrStdout(), st, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of runs to list")
	return cmd
}

func listRuns(ctx context.Context, w io.Writer, st *store.Store, limit int) error {
	runs, err := st.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored yet.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Kind", "Started", "Duration", "Provider", "Guardrail", "Mode", "Trials"})
	table.SetAutoFormatHeaders(false)
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt.Valid {
			duration = r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Second).String()
		}
		table.Append([]string{
			r.ID,
			r.Kind,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			duration,
			r.Provider,
			r.GuardrailID,
			r.Mode,
			strconv.FormatInt(r.TrialCount, 10),
		})
	}
	table.Render()
	return nil
}

func showResults(ctx context.Context, w io.Writer, st *store.Store, runID string) error {
	results, err := st.Results(ctx, runID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No latency results stored for run %s.\n", runID)
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Configuration", "Mode", "Success", "Mean (ms)", "P90 (ms)", "P99 (ms)", "Overhead (ms)", "Flag"})
	table.SetAutoFormatHeaders(false)
	for _, r := range results {
		overhead := "n/a"
		if r.OverheadUS.Valid {
			overhead = fmt.Sprintf("%+.1f", float64(r.OverheadUS.Int64)/1000)
		}
		flag := ""
		if r.Insufficient.Valid {
			flag = r.Insufficient.String
		}
		table.Append([]string{
			r.Configuration,
			r.Mode,
			fmt.Sprintf("%d/%d", r.Successful, r.Total),
			usMillis(r.MeanUS),
			usMillis(r.P90US),
			usMillis(r.P99US),
			overhead,
			flag,
		})
	}
	table.Render()
	return nil
}

func usMillis(us int64) string {
	return fmt.Sprintf("%.1f", float64(us)/1000)
}
