package report

import (
	"fmt"
	"io"

	"github.com/raaihank/guardbench/internal/evaluator"
)

// RenderDetection writes the recall/precision table followed by the literal
// false negatives of each method
func RenderDetection(w io.Writer, result evaluator.Result, opts Options) error {
	if len(result.Summaries) == 0 {
		_, err := fmt.Fprintln(w, "No detection results.")
		return err
	}

	heading(w, opts.Format, "PII detection")

	table := newTable(w, opts.Format, []string{"Method", "Recall", "Precision", "TP", "FP", "TN", "FN", "Errors", "Mean check (ms)"})
	for _, s := range result.Summaries {
		table.Append([]string{
			string(s.Method),
			formatRatio(s.Recall, s.RecallDefined),
			formatRatio(s.Precision, s.PrecisionDefined),
			fmt.Sprint(s.TruePositives),
			fmt.Sprint(s.FalsePositives),
			fmt.Sprint(s.TrueNegatives),
			fmt.Sprint(s.FalseNegatives),
			fmt.Sprint(s.Errors),
			formatMillis(s.MeanLatency),
		})
	}
	table.Render()
	fmt.Fprintln(w)

	if opts.MaxMissed <= 0 {
		return nil
	}

	for _, s := range result.Summaries {
		if len(s.Missed) == 0 {
			continue
		}

		shown := s.Missed
		if len(shown) > opts.MaxMissed {
			shown = shown[:opts.MaxMissed]
		}
		fmt.Fprintf(w, "Missed by %s (%d of %d shown):\n", s.Method, len(shown), len(s.Missed))
		for _, c := range shown {
			if opts.Format == FormatMarkdown {
				fmt.Fprintf(w, "- `%s` %s\n", c.Category, c.Text)
			} else {
				fmt.Fprintf(w, "  - [%s] %s\n", c.Category, c.Text)
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

func formatRatio(v float64, defined bool) string {
	if !defined {
		return "undefined"
	}
	return formatPercent(v * 100)
}
