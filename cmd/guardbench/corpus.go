package main

import (
	"fmt"

	"github.com/raaihank/guardbench/internal/corpus"
	"github.com/spf13/cobra"
)

func newCorpusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corpus",
		Short: "Work with labeled PII corpora",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export <file.parquet>",
		Short: "Write the built-in corpus to a Parquet file as a starting point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases := corpus.Builtin()
			if err := corpus.WriteParquet(args[0], cases); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d cases to %s\n", len(cases), args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Load a corpus file and report invalid or duplicate rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := corpus.NewLoader(a.logger).Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Rows: %d  valid: %d  invalid: %d  duplicates: %d\n",
				result.TotalRows, result.Valid, result.Invalid, result.Duplicates)
			for _, e := range result.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
			return nil
		},
	})

	return cmd
}
