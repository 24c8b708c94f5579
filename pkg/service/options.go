package service

// ResultContext controls how much surrounding content a search hit
// carries, per SearchOptions.Context.
type ResultContext string

const (
	ContextNone    ResultContext = "none"
	ContextMinimal ResultContext = "minimal"
	ContextMedium  ResultContext = "medium"
	ContextFull    ResultContext = "full"
)

// SearchOptions enumerates the recognized document-search flags.
type SearchOptions struct {
	Query   string
	Limit   uint32
	Tags    []string
	Context ResultContext
	Quiet   bool
}

// SymbolSearchOptions enumerates the recognized symbol-search flags.
type SymbolSearchOptions struct {
	Pattern    string
	Limit      uint32
	SymbolType string // empty means unfiltered
	Quiet      bool
}

// IndexCodebaseOptions is a thin passthrough to ingest.Options; kept as
// its own type here so the service layer's public surface does not leak
// the ingestion package's internals.
type IndexCodebaseOptions struct {
	RepoPath         string
	Prefix           string
	IncludeFiles     bool
	IncludeCommits   bool
	MaxFileSizeMB    int
	MaxMemoryMB      int
	MaxParallelFiles int
	EnableChunking   bool
	ExtractSymbols   bool
	NoSymbols        bool
	Quiet            bool
}

// StatsOptions selects which stats sections to compute. The zero value
// (no flag set) means "all true".
type StatsOptions struct {
	Basic         bool
	Symbols       bool
	Relationships bool
	Quiet         bool
}

// Normalize applies the "no flag set -> all true" default.
func (o StatsOptions) Normalize() StatsOptions {
	if !o.Basic && !o.Symbols && !o.Relationships {
		return StatsOptions{Basic: true, Symbols: true, Relationships: true, Quiet: o.Quiet}
	}
	return o
}

// ValidationOptions selects which validation passes to run.
type ValidationOptions struct {
	CheckIntegrity   bool
	CheckConsistency bool
	CheckPerformance bool
	DeepScan         bool
	RepairIssues     bool
	Quiet            bool
}

// AnalysisOptions configures find-callers and analyze-impact.
type AnalysisOptions struct {
	Target string
	Limit  uint32
	Quiet  bool
}

// BenchmarkOptions configures the benchmark service; modeled on
// SearchOptions since benchmarking exercises the same search route.
type BenchmarkOptions struct {
	Query      string
	Iterations int
	Quiet      bool
}
