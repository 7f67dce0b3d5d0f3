package main

import (
	"fmt"

	"github.com/raaihank/guardbench/internal/bench"
	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the guardrail verdict cache",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			if !a.cfg.Cache.Enabled {
				return &bench.SetupError{Component: "cache", Detail: "cache.enabled is false"}
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := openCache(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer vc.Close()

			stats, err := vc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached verdicts: %d\n", stats.TotalKeys)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached verdict",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := openCache(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer vc.Close()

			if err := vc.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Verdict cache cleared")
			return nil
		},
	})

	return cmd
}
