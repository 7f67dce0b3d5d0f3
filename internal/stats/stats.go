// Package stats turns raw trials into per-configuration latency summaries and
// overhead comparisons against the baseline.
package stats

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/raaihank/guardbench/internal/bench"
)

// Policy decides when a configuration has too little data to summarize
type Policy struct {
	// MaxFailureRatio flags a configuration whose failed share exceeds it
	MaxFailureRatio float64
	// MinSuccessful flags a configuration with fewer successful trials
	MinSuccessful int
}

// DefaultPolicy flags configurations where most trials failed
func DefaultPolicy() Policy {
	return Policy{MaxFailureRatio: 0.5, MinSuccessful: 1}
}

// Latency summarizes the successful trials of one configuration
type Latency struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	Median time.Duration `json:"median"`
	StdDev time.Duration `json:"stddev"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
}

// Overhead is the extra mean latency relative to the baseline
type Overhead struct {
	Absolute time.Duration `json:"absolute"`
	Percent  float64       `json:"percent"`
}

// Result is the aggregate for one configuration
type Result struct {
	Configuration bench.Configuration   `json:"configuration"`
	Mode          bench.Mode            `json:"mode"`
	Total         int                   `json:"total"`
	Successful    int                   `json:"successful"`
	Failed        int                   `json:"failed"`
	Blocked       int                   `json:"blocked"`
	Outcomes      map[bench.Outcome]int `json:"outcomes"`
	Latency       Latency               `json:"latency"`
	MeanCheck     time.Duration         `json:"mean_check"`
	InputTokens   int                   `json:"input_tokens"`
	OutputTokens  int                   `json:"output_tokens"`
	// Throughput is successful requests per second of wall time, throughput mode only
	Throughput float64 `json:"throughput,omitempty"`
	// Overhead is set by Compare once the baseline is known
	Overhead *Overhead `json:"overhead,omitempty"`
	// Insufficient is set when the policy rejects this configuration's data
	Insufficient *bench.InsufficientDataError `json:"-"`
}

// Usable reports whether the latency summary may be reported
func (r Result) Usable() bool {
	return r.Insufficient == nil
}

// BlockRate is the fraction of successful trials the guardrail declined
func (r Result) BlockRate() float64 {
	if r.Successful == 0 {
		return 0
	}
	return float64(r.Blocked) / float64(r.Successful)
}

// Aggregate summarizes the trials of one configuration. Failed trials count
// towards the failure tally but never contribute latency.
func Aggregate(configuration bench.Configuration, trials []bench.Trial, policy Policy) Result {
	result := Result{
		Configuration: configuration,
		Outcomes:      make(map[bench.Outcome]int),
	}

	latencies := make([]time.Duration, 0, len(trials))
	var checkTotal time.Duration
	for _, t := range trials {
		if t.Configuration != configuration {
			continue
		}
		if result.Mode == "" {
			result.Mode = t.Mode
		}

		result.Total++
		result.Outcomes[t.Outcome]++
		result.InputTokens += t.InputTokens
		result.OutputTokens += t.OutputTokens

		if !t.Succeeded() {
			result.Failed++
			continue
		}

		result.Successful++
		if t.Blocked() {
			result.Blocked++
		}
		latencies = append(latencies, t.Latency())
		checkTotal += t.CheckDuration
	}

	result.Insufficient = checkPolicy(configuration, result.Successful, result.Total, policy)
	if len(latencies) == 0 {
		return result
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	result.Latency = Summarize(latencies)
	result.MeanCheck = checkTotal / time.Duration(result.Successful)

	if result.Mode == bench.ModeThroughput {
		if elapsed := Elapsed(trials, configuration); elapsed > 0 {
			result.Throughput = float64(result.Successful) / elapsed.Seconds()
		}
	}

	return result
}

func checkPolicy(configuration bench.Configuration, successful, total int, policy Policy) *bench.InsufficientDataError {
	minSuccessful := policy.MinSuccessful
	if minSuccessful < 1 {
		minSuccessful = 1
	}

	if successful < minSuccessful {
		return &bench.InsufficientDataError{
			Configuration: configuration,
			Successful:    successful,
			Total:         total,
			Reason:        fmt.Sprintf("fewer than %d successful trials", minSuccessful),
		}
	}

	if failed := total - successful; float64(failed)/float64(total) > policy.MaxFailureRatio {
		return &bench.InsufficientDataError{
			Configuration: configuration,
			Successful:    successful,
			Total:         total,
			Reason:        fmt.Sprintf("failure ratio %.2f exceeds %.2f", float64(failed)/float64(total), policy.MaxFailureRatio),
		}
	}

	return nil
}

// Summarize computes the latency summary of a sorted, non-empty sample
func Summarize(sorted []time.Duration) Latency {
	return Latency{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   Mean(sorted),
		Median: Median(sorted),
		StdDev: StdDev(sorted),
		P90:    Percentile(sorted, 90),
		P95:    Percentile(sorted, 95),
		P99:    Percentile(sorted, 99),
	}
}

// Mean returns the arithmetic mean of a non-empty sample
func Mean(values []time.Duration) time.Duration {
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return time.Duration(math.Round(sum / float64(len(values))))
}

// Median returns the middle value of a sorted sample, averaging the two
// middle values when the sample size is even
func Median(sorted []time.Duration) time.Duration {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev returns the sample standard deviation, zero for fewer than two values
func StdDev(values []time.Duration) time.Duration {
	if len(values) < 2 {
		return 0
	}
	mean := float64(Mean(values))
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return time.Duration(math.Round(math.Sqrt(sq / float64(len(values)-1))))
}

// Percentile returns the nearest-rank p-th percentile of a sorted sample:
// the smallest value with at least p percent of the sample at or below it
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// Elapsed returns the wall-clock span covered by one configuration's trials
func Elapsed(trials []bench.Trial, configuration bench.Configuration) time.Duration {
	var first, last time.Time
	for _, t := range trials {
		if t.Configuration != configuration {
			continue
		}
		if first.IsZero() || t.Start.Before(first) {
			first = t.Start
		}
		if last.IsZero() || t.End.After(last) {
			last = t.End
		}
	}
	return last.Sub(first)
}
