package service

import (
	"fmt"
	"sort"
	"time"
)

// BenchmarkResult is BenchmarkService.Run's structured output: per-run
// latencies for opts.Iterations repetitions of the same search, exposed
// through the same transport-agnostic surface every other service uses
// so an external harness does not need to drive storage/index internals
// directly.
type BenchmarkResult struct {
	Iterations int
	Durations  []time.Duration
	P50        time.Duration
	P99        time.Duration
	Human      string
}

// BenchmarkService repeatedly runs a search query and reports latency
// percentiles.
type BenchmarkService struct {
	search *SearchService
}

// NewBenchmarkService constructs a BenchmarkService over db.
func NewBenchmarkService(db DatabaseAccess) *BenchmarkService {
	return &BenchmarkService{search: NewSearchService(db)}
}

// Run executes opts.Iterations searches for opts.Query and reports
// latency percentiles. It does not fail on a per-iteration search error;
// that iteration is simply excluded from the duration sample.
func (s *BenchmarkService) Run(opts BenchmarkOptions) (BenchmarkResult, error) {
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = 100
	}

	durations := make([]time.Duration, 0, iterations)
	for i := 0; i < iterations; i++ {
		start := time.Now()
		if _, err := s.search.Search(SearchOptions{Query: opts.Query, Limit: 100, Quiet: true}); err != nil {
			continue
		}
		durations = append(durations, time.Since(start))
	}

	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	result := BenchmarkResult{
		Iterations: len(durations),
		Durations:  durations,
		P50:        percentile(sorted, 0.50),
		P99:        percentile(sorted, 0.99),
	}
	result.Human = formatBenchmarkHuman(opts.Query, result, opts.Quiet)
	return result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatBenchmarkHuman(query string, r BenchmarkResult, quiet bool) string {
	if quiet {
		return ""
	}
	return fmt.Sprintf("%d iteration(s) of %q: p50=%s p99=%s\n", r.Iterations, query, r.P50, r.P99)
}
