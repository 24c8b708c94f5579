package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kotadb/kotadb/pkg/ingest"
	"github.com/kotadb/kotadb/pkg/kerrors"
	"github.com/kotadb/kotadb/pkg/log"
	"github.com/kotadb/kotadb/pkg/metrics"
	"github.com/kotadb/kotadb/pkg/service"
	"github.com/kotadb/kotadb/pkg/types"
)

// Version information (set via ldflags during build).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the error taxonomy onto the CLI's exit codes:
// 0 success, 1 user error, 2 internal error.
func exitCodeFor(err error) int {
	switch kerrors.KindOf(err) {
	case kerrors.Validation, kerrors.NotFound, kerrors.AlreadyExists, kerrors.Timeout:
		return 1
	default:
		return 2
	}
}

var rootCmd = &cobra.Command{
	Use:   "kotadb",
	Short: "KotaDB - a code-intelligence storage engine",
	Long: `KotaDB ingests a source repository, extracts symbols and their
syntactic relationships, and answers sub-10ms queries about code
structure (symbol lookup, callers, impact) and content (substring/fuzzy
text search).`,
	Version: Version,
}

var (
	dbPath     string
	jsonOutput bool
	quietFlag  bool
	metricsAddr string
)

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("kotadb version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".kotadb", "path to the database root")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of the human-formatted result")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress the human-formatted result")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics and /health on (disabled if empty)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(
		insertCmd, getCmd, updateCmd, deleteCmd,
		searchCmd, searchCodeCmd, searchSymbolsCmd,
		findCallersCmd, analyzeImpactCmd,
		statsCmd, validateCmd, indexCodebaseCmd, benchmarkCmd,
	)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonLogs, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonLogs})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Logger.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}
}

// emit prints the JSON-serialized structured value when --json was
// passed; otherwise it prints the human string unless --quiet was passed,
// in which case it prints nothing.
func emit(human string, structured any) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(structured)
	}
	if !quietFlag {
		fmt.Print(human)
	}
	return nil
}

func withDatabase(fn func(db *database) error) error {
	db, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector(metrics.Sources{
		Documents: func() (int, error) { return db.store.Count(), nil },
		Symbols: func() (int, error) {
			if r, ok := db.SymbolDB(); ok {
				return r.Count(), nil
			}
			return 0, nil
		},
		GraphSize: func() (int, int, error) {
			if g, ok := db.Graph(); ok {
				return g.NodeCount(), g.EdgeCount(), nil
			}
			return 0, 0, nil
		},
	}, 0)
	collector.Start()
	defer collector.Stop()

	return fn(db)
}

// --- insert / get / update / delete -----------------------------------

var insertCmd = &cobra.Command{
	Use:   "insert <path> <title> <content>",
	Short: "Insert a new document",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsRaw, _ := cmd.Flags().GetStringSlice("tag")
		return withDatabase(func(db *database) error {
			path, err := types.NewPath(args[0])
			if err != nil {
				return err
			}
			title, err := types.NewTitle(args[1])
			if err != nil {
				return err
			}
			tags, err := types.NewTagSet(tagsRaw...)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			doc := &types.Document{
				ID: types.NewID(), Path: path, Title: title,
				Content: []byte(args[2]), Tags: tags, CreatedAt: now, UpdatedAt: now,
			}
			if err := db.store.Insert(doc); err != nil {
				return err
			}
			if err := db.primaryIdx.Insert(doc.ID, doc.Path); err != nil {
				return err
			}
			db.trigramIdx.Index(doc.ID, doc.Content)
			return emit(fmt.Sprintf("inserted %s\n", doc.ID), doc)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a document by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *database) error {
			id, err := types.ParseID(args[0])
			if err != nil {
				return err
			}
			doc, ok := db.store.Get(id)
			if !ok {
				return kerrors.New(kerrors.NotFound, "no document with that id")
			}
			return emit(fmt.Sprintf("%s  %s\n%s\n", doc.ID, doc.Path, doc.Content), doc)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <content>",
	Short: "Update a document's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *database) error {
			id, err := types.ParseID(args[0])
			if err != nil {
				return err
			}
			existing, ok := db.store.Get(id)
			if !ok {
				return kerrors.New(kerrors.NotFound, "no document with that id")
			}
			updated := existing.Clone()
			updated.Content = []byte(args[1])
			updated.UpdatedAt = time.Now().UTC()
			if err := db.store.Update(updated); err != nil {
				return err
			}
			db.trigramIdx.Remove(id)
			db.trigramIdx.Index(id, updated.Content)
			return emit(fmt.Sprintf("updated %s\n", id), updated)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(db *database) error {
			id, err := types.ParseID(args[0])
			if err != nil {
				return err
			}
			removed, err := db.store.Delete(id)
			if err != nil {
				return err
			}
			db.primaryIdx.Delete(id)
			db.trigramIdx.Remove(id)
			return emit(fmt.Sprintf("deleted=%v\n", removed), map[string]bool{"deleted": removed})
		})
	},
}

func init() {
	insertCmd.Flags().StringSlice("tag", nil, "tag to attach (repeatable)")
}

// --- search -------------------------------------------------------------

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search documents by content or path",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

// search-code is an alias for search, named separately to distinguish
// the document-content route from a prospective source-aware route; both
// currently resolve through the same router.
var searchCodeCmd = &cobra.Command{
	Use:   "search-code <query>",
	Short: "Search indexed source content",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetUint32("limit")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	ctx, _ := cmd.Flags().GetString("context")
	return withDatabase(func(db *database) error {
		svc := service.NewSearchService(db)
		result, err := svc.Search(service.SearchOptions{
			Query: args[0], Limit: limit, Tags: tags,
			Context: service.ResultContext(ctx), Quiet: quietFlag,
		})
		if err != nil {
			return err
		}
		return emit(result.Human, result)
	})
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, searchCodeCmd} {
		c.Flags().Uint32("limit", 100, "maximum results (0..1000; 0 returns nothing)")
		c.Flags().StringSlice("tag", nil, "require this tag (repeatable)")
		c.Flags().String("context", "minimal", "snippet context: none, minimal, medium, full")
	}
}

var searchSymbolsCmd = &cobra.Command{
	Use:   "search-symbols <pattern>",
	Short: "Search the symbol database by wildcard name pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetUint32("limit")
		symbolType, _ := cmd.Flags().GetString("type")
		return withDatabase(func(db *database) error {
			svc := service.NewSearchService(db)
			result, err := svc.SearchSymbols(service.SymbolSearchOptions{
				Pattern: args[0], Limit: limit, SymbolType: symbolType, Quiet: quietFlag,
			})
			if err != nil {
				return err
			}
			return emit(result.Human, result)
		})
	},
}

func init() {
	searchSymbolsCmd.Flags().Uint32("limit", 100, "maximum results (0..1000; 0 returns nothing)")
	searchSymbolsCmd.Flags().String("type", "", "restrict to this symbol kind")
}

// --- find-callers / analyze-impact --------------------------------------

var findCallersCmd = &cobra.Command{
	Use:   "find-callers <target>",
	Short: "Find every symbol that calls or references the target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetUint32("limit")
		return withDatabase(func(db *database) error {
			svc := service.NewAnalysisService(db)
			result, err := svc.FindCallers(service.AnalysisOptions{Target: args[0], Limit: limit, Quiet: quietFlag})
			if err != nil {
				return err
			}
			return emit(result.Human, result)
		})
	},
}

var analyzeImpactCmd = &cobra.Command{
	Use:   "analyze-impact <target>",
	Short: "Compute the transitive closure of symbols affected by changing target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetUint32("max-depth")
		return withDatabase(func(db *database) error {
			svc := service.NewAnalysisService(db)
			result, err := svc.AnalyzeImpact(service.AnalysisOptions{Target: args[0], Limit: depth, Quiet: quietFlag})
			if err != nil {
				return err
			}
			return emit(result.Human, result)
		})
	},
}

func init() {
	findCallersCmd.Flags().Uint32("limit", 100, "maximum callers returned")
	analyzeImpactCmd.Flags().Uint32("max-depth", 0, "maximum traversal depth (0 = default)")
}

// --- stats / validate ----------------------------------------------------

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report corpus-size statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		basic, _ := cmd.Flags().GetBool("basic")
		symbols, _ := cmd.Flags().GetBool("symbols")
		rels, _ := cmd.Flags().GetBool("relationships")
		return withDatabase(func(db *database) error {
			svc := service.NewStatsService(db)
			result, err := svc.Stats(service.StatsOptions{Basic: basic, Symbols: symbols, Relationships: rels, Quiet: quietFlag})
			if err != nil {
				return err
			}
			return emit(result.Human, result)
		})
	},
}

func init() {
	statsCmd.Flags().Bool("basic", false, "report document/index counts")
	statsCmd.Flags().Bool("symbols", false, "report symbol database counts")
	statsCmd.Flags().Bool("relationships", false, "report dependency graph counts")
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run structural integrity and consistency checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		integrity, _ := cmd.Flags().GetBool("check-integrity")
		consistency, _ := cmd.Flags().GetBool("check-consistency")
		perf, _ := cmd.Flags().GetBool("check-performance")
		deep, _ := cmd.Flags().GetBool("deep-scan")
		repair, _ := cmd.Flags().GetBool("repair-issues")
		degraded := false
		err := withDatabase(func(db *database) error {
			svc := service.NewValidationService(db)
			result, err := svc.Validate(service.ValidationOptions{
				CheckIntegrity: integrity, CheckConsistency: consistency,
				CheckPerformance: perf, DeepScan: deep, RepairIssues: repair, Quiet: quietFlag,
			})
			if err != nil {
				return err
			}
			degraded = !result.Healthy
			return emit(result.Human, result)
		})
		if err != nil {
			return err
		}
		// A degraded database is reported, not a CLI failure in the usual
		// sense; exit 1 without the "Error: ..." wrapping main() adds for a
		// returned error.
		if degraded {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("check-integrity", true, "validate structural invariants")
	validateCmd.Flags().Bool("check-consistency", true, "cross-check counts between store and indices")
	validateCmd.Flags().Bool("check-performance", false, "accepted for compatibility; currently a no-op")
	validateCmd.Flags().Bool("deep-scan", false, "accepted for compatibility; currently a no-op")
	validateCmd.Flags().Bool("repair-issues", false, "accepted for compatibility; KotaDB rebuilds rather than repairs in place")
}

// --- index-codebase -------------------------------------------------------

var indexCodebaseCmd = &cobra.Command{
	Use:   "index-codebase <repo-path>",
	Short: "Ingest a repository: store files, extract symbols, build the dependency graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		includeFiles, _ := cmd.Flags().GetBool("include-files")
		includeCommits, _ := cmd.Flags().GetBool("include-commits")
		maxFileSizeMB, _ := cmd.Flags().GetInt("max-file-size-mb")
		maxMemoryMB, _ := cmd.Flags().GetInt("max-memory-mb")
		maxParallel, _ := cmd.Flags().GetInt("max-parallel-files")
		chunking, _ := cmd.Flags().GetBool("enable-chunking")
		extractSymbols, _ := cmd.Flags().GetBool("extract-symbols")
		noSymbols, _ := cmd.Flags().GetBool("no-symbols")

		return withDatabase(func(db *database) error {
			svc := service.NewIndexingService(db.pipeline())
			progress := make(chan ingest.Progress, 8)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for p := range progress {
					if !quietFlag && !jsonOutput {
						fmt.Fprintf(os.Stderr, "\r%s: %d/%d files, %d symbols", p.Stage, p.FilesDone, p.FilesTotal, p.SymbolsWritten)
					}
				}
			}()

			// The service layer applies no timeout of its own; the CLI
			// bounds the whole ingestion run here.
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			result, err := svc.IndexCodebase(ctx, service.IndexCodebaseOptions{
				RepoPath: args[0], Prefix: prefix, IncludeFiles: includeFiles, IncludeCommits: includeCommits,
				MaxFileSizeMB: maxFileSizeMB, MaxMemoryMB: maxMemoryMB, MaxParallelFiles: maxParallel,
				EnableChunking: chunking, ExtractSymbols: extractSymbols, NoSymbols: noSymbols, Quiet: quietFlag,
			}, progress)
			close(progress)
			<-done
			if !quietFlag && !jsonOutput {
				fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return err
			}
			if rerr := db.reopenSymbolDB(); rerr != nil {
				log.Logger.Warn().Err(rerr).Msg("failed to reopen symbol database after ingestion")
			}
			return emit(result.Human, result)
		})
	},
}

func init() {
	f := indexCodebaseCmd.Flags()
	f.String("prefix", "", "path prefix documents are stored under")
	f.Bool("include-files", true, "store file contents as documents")
	f.Bool("include-commits", false, "accepted for compatibility; the filesystem walker reads no commit metadata, so it has no effect")
	f.Int("max-file-size-mb", 10, "skip files larger than this many MB")
	f.Int("max-memory-mb", 0, "with --enable-chunking, content volume between flushes (0 = no flushes)")
	f.Int("max-parallel-files", 8, "bounded worker pool size")
	f.Bool("enable-chunking", false, "flush storage and indices each time about --max-memory-mb of content has been processed")
	f.Bool("extract-symbols", true, "parse and store symbols")
	f.Bool("no-symbols", false, "skip symbol extraction entirely")
}

// --- benchmark -------------------------------------------------------------

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark <query>",
	Short: "Repeat a search and report latency percentiles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iterations, _ := cmd.Flags().GetInt("iterations")
		return withDatabase(func(db *database) error {
			svc := service.NewBenchmarkService(db)
			result, err := svc.Run(service.BenchmarkOptions{Query: args[0], Iterations: iterations, Quiet: quietFlag})
			if err != nil {
				return err
			}
			return emit(result.Human, result)
		})
	},
}

func init() {
	benchmarkCmd.Flags().Int("iterations", 100, "number of search repetitions")
}
