// Package report renders benchmark results as text or markdown tables and
// exports complete runs as JSON.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/raaihank/guardbench/internal/bench"
	"github.com/raaihank/guardbench/internal/stats"
)

// Format selects the table style
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat converts a label into a Format
func ParseFormat(label string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(label))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatMarkdown, "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format: %q (must be text or markdown)", label)
	}
}

// Options controls rendering
type Options struct {
	Format Format
	// MaxMissed caps the false negatives listed per method, 0 lists none
	MaxMissed int
}

// RenderLatency writes the latency table, overhead notes and the
// guardrail-vs-regex delta
func RenderLatency(w io.Writer, cmp stats.Comparison, opts Options) error {
	if len(cmp.Results) == 0 {
		_, err := fmt.Fprintln(w, "No latency results.")
		return err
	}

	mode := cmp.Results[0].Mode
	if mode == "" {
		mode = bench.ModeSequential
	}
	heading(w, opts.Format, fmt.Sprintf("Latency (%s)", mode))

	header := []string{"Method", "Mean (ms)", "Median (ms)", "P90 (ms)", "P99 (ms)", "Overhead (ms)", "Overhead %", "Failures", "Blocked"}
	if mode == bench.ModeThroughput {
		header = append(header, "Req/s")
	}

	table := newTable(w, opts.Format, header)
	var notes []string
	for _, r := range cmp.Results {
		row := []string{string(r.Configuration)}
		if r.Usable() {
			row = append(row,
				formatMillis(r.Latency.Mean),
				formatMillis(r.Latency.Median),
				formatMillis(r.Latency.P90),
				formatMillis(r.Latency.P99),
			)
		} else {
			row = append(row, "n/a", "n/a", "n/a", "n/a")
			notes = append(notes, fmt.Sprintf("%s: insufficient data, %s", r.Configuration, r.Insufficient.Reason))
		}

		if r.Overhead != nil {
			row = append(row, formatSignedMillis(r.Overhead.Absolute), formatSignedPercent(r.Overhead.Percent))
		} else {
			row = append(row, "n/a", "n/a")
		}

		row = append(row,
			fmt.Sprintf("%d/%d", r.Failed, r.Total),
			fmt.Sprintf("%d (%s)", r.Blocked, formatPercent(r.BlockRate()*100)),
		)
		if mode == bench.ModeThroughput {
			row = append(row, fmt.Sprintf("%.2f", r.Throughput))
		}
		table.Append(row)
	}
	table.Render()

	if cmp.BaselineUnavailable != "" {
		notes = append(notes, "overhead unavailable: "+cmp.BaselineUnavailable)
	}
	if regex, ok := cmp.Result(bench.ConfigRegex); ok && regex.Successful > 0 {
		notes = append(notes, fmt.Sprintf("regex mean check time: %s ms", formatMillis(regex.MeanCheck)))
	}
	if cmp.GuardrailVsRegex != nil {
		notes = append(notes, fmt.Sprintf("guardrail vs regex: %s ms", formatSignedMillis(*cmp.GuardrailVsRegex)))
	}
	if tokens := tokenNote(cmp.Results); tokens != "" {
		notes = append(notes, tokens)
	}

	writeNotes(w, opts.Format, notes)
	return nil
}

// RenderPrompts writes the per-prompt mean latency of every configuration
func RenderPrompts(w io.Writer, rows []stats.PromptRow, configurations []bench.Configuration, opts Options) error {
	if len(rows) == 0 {
		return nil
	}
	heading(w, opts.Format, "Per-prompt breakdown")

	header := []string{"Prompt"}
	for _, c := range configurations {
		header = append(header, string(c)+" (ms)")
	}
	header = append(header, "Blocked")

	table := newTable(w, opts.Format, header)
	for _, r := range rows {
		row := []string{truncate(r.Prompt, 48)}
		var blocked []string
		for _, c := range configurations {
			if mean, ok := r.Mean[c]; ok {
				row = append(row, formatMillis(mean))
			} else {
				row = append(row, "-")
			}
			if r.Blocked[c] > 0 {
				blocked = append(blocked, string(c))
			}
		}
		if len(blocked) == 0 {
			row = append(row, "no")
		} else {
			row = append(row, strings.Join(blocked, ","))
		}
		table.Append(row)
	}
	table.Render()
	fmt.Fprintln(w)
	return nil
}

func tokenNote(results []stats.Result) string {
	var parts []string
	for _, r := range results {
		if r.InputTokens == 0 && r.OutputTokens == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d in / %d out", r.Configuration, r.InputTokens, r.OutputTokens))
	}
	if len(parts) == 0 {
		return ""
	}
	return "tokens: " + strings.Join(parts, "; ")
}

func newTable(w io.Writer, format Format, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	alignment := make([]int, len(header))
	for i := range alignment {
		alignment[i] = tablewriter.ALIGN_RIGHT
	}
	alignment[0] = tablewriter.ALIGN_LEFT
	table.SetColumnAlignment(alignment)

	if format == FormatMarkdown {
		table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
		table.SetCenterSeparator("|")
	}
	return table
}

func heading(w io.Writer, format Format, title string) {
	if format == FormatMarkdown {
		fmt.Fprintf(w, "## %s\n\n", title)
		return
	}
	fmt.Fprintf(w, "%s\n%s\n", title, strings.Repeat("=", len(title)))
}

func writeNotes(w io.Writer, format Format, notes []string) {
	if len(notes) > 0 {
		fmt.Fprintln(w)
	}
	for _, n := range notes {
		if format == FormatMarkdown {
			fmt.Fprintf(w, "- %s\n", n)
		} else {
			fmt.Fprintf(w, "  %s\n", n)
		}
	}
	fmt.Fprintln(w)
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.1f", float64(d)/float64(time.Millisecond))
}

func formatSignedMillis(d time.Duration) string {
	return fmt.Sprintf("%+.1f", float64(d)/float64(time.Millisecond))
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

func formatSignedPercent(p float64) string {
	return fmt.Sprintf("%+.1f%%", p)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
