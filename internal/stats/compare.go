package stats

import (
	"errors"
	"sort"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
)

// ErrNoBaseline is returned by Compare when no baseline results exist
var ErrNoBaseline = errors.New("baseline configuration missing from results")

// Comparison is the finalized set of results with overheads resolved
type Comparison struct {
	Results []Result `json:"results"`
	// BaselineUnavailable explains why overheads could not be computed
	BaselineUnavailable string `json:"baseline_unavailable,omitempty"`
	// GuardrailVsRegex is the guardrail mean minus the regex mean, when both are usable
	GuardrailVsRegex *time.Duration `json:"guardrail_vs_regex,omitempty"`
}

// Result returns the result for a configuration
func (c Comparison) Result(configuration bench.Configuration) (Result, bool) {
	for _, r := range c.Results {
		if r.Configuration == configuration {
			return r, true
		}
	}
	return Result{}, false
}

// AggregateAll summarizes every configuration present in trials, in report order
func AggregateAll(trials []bench.Trial, policy Policy) []Result {
	present := make(map[bench.Configuration]bool)
	for _, t := range trials {
		present[t.Configuration] = true
	}

	results := make([]Result, 0, len(present))
	for _, c := range bench.AllConfigurations {
		if present[c] {
			results = append(results, Aggregate(c, trials, policy))
			delete(present, c)
		}
	}

	var rest []bench.Configuration
	for c := range present {
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, c := range rest {
		results = append(results, Aggregate(c, trials, policy))
	}

	return results
}

// Compare resolves overheads against the baseline once every configuration
// has been aggregated. The baseline's overhead is zero by construction.
// When the baseline is unusable every overhead stays unset.
func Compare(results []Result) (Comparison, error) {
	comparison := Comparison{Results: make([]Result, len(results))}
	copy(comparison.Results, results)

	var baseline *Result
	for i := range comparison.Results {
		if comparison.Results[i].Configuration == bench.ConfigBaseline {
			baseline = &comparison.Results[i]
			break
		}
	}
	if baseline == nil {
		comparison.BaselineUnavailable = ErrNoBaseline.Error()
		return comparison, ErrNoBaseline
	}
	if !baseline.Usable() {
		comparison.BaselineUnavailable = baseline.Insufficient.Error()
		return comparison, nil
	}

	base := baseline.Latency.Mean
	for i := range comparison.Results {
		r := &comparison.Results[i]
		if !r.Usable() {
			continue
		}
		overhead := r.Latency.Mean - base
		var percent float64
		if base > 0 {
			percent = float64(overhead) / float64(base) * 100
		}
		r.Overhead = &Overhead{Absolute: overhead, Percent: percent}
	}

	guardrail, gok := comparison.Result(bench.ConfigGuardrail)
	regex, rok := comparison.Result(bench.ConfigRegex)
	if gok && rok && guardrail.Usable() && regex.Usable() {
		delta := guardrail.Latency.Mean - regex.Latency.Mean
		comparison.GuardrailVsRegex = &delta
	}

	return comparison, nil
}

// PromptRow is the per-prompt mean latency of every configuration
type PromptRow struct {
	Prompt  string                                `json:"prompt"`
	Mean    map[bench.Configuration]time.Duration `json:"mean"`
	Blocked map[bench.Configuration]int           `json:"blocked"`
}

// ByPrompt breaks successful trials down by prompt, in first-seen order
func ByPrompt(trials []bench.Trial) []PromptRow {
	type acc struct {
		sum   map[bench.Configuration]time.Duration
		count map[bench.Configuration]int
		row   PromptRow
	}

	var order []string
	rows := make(map[string]*acc)
	for _, t := range trials {
		if !t.Succeeded() {
			continue
		}
		a, ok := rows[t.Prompt]
		if !ok {
			a = &acc{
				sum:   make(map[bench.Configuration]time.Duration),
				count: make(map[bench.Configuration]int),
				row: PromptRow{
					Prompt:  t.Prompt,
					Mean:    make(map[bench.Configuration]time.Duration),
					Blocked: make(map[bench.Configuration]int),
				},
			}
			rows[t.Prompt] = a
			order = append(order, t.Prompt)
		}
		a.sum[t.Configuration] += t.Latency()
		a.count[t.Configuration]++
		if t.Blocked() {
			a.row.Blocked[t.Configuration]++
		}
	}

	out := make([]PromptRow, 0, len(order))
	for _, p := range order {
		a := rows[p]
		for c, sum := range a.sum {
			a.row.Mean[c] = sum / time.Duration(a.count[c])
		}
		out = append(out, a.row)
	}
	return out
}
