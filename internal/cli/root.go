// Package cli implements the cartographer command surface: the crawl
// subcommand's flags (spec.md §6), translating them into a
// config.Config, wiring the crawl's components, and mapping the
// scheduler's outcome onto the documented process exit codes.
//
// Grounded on the teacher's internal/cli/root.go: the same
// cobra.Command + package-level flag vars + InitConfigWithError shape
// is kept, generalized from the teacher's single implicit crawl command
// to an explicit `crawl` subcommand carrying the full flag surface
// spec.md §6 documents.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cartographer/cartographer/internal/build"
	"github.com/cartographer/cartographer/internal/checkpoint"
	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/scheduler"
	"github.com/cartographer/cartographer/internal/telemetry"
)

var (
	flagConfigFile         string
	flagSeeds              []string
	flagOut                string
	flagMode               string
	flagMaxPages           int
	flagMaxDepth           int
	flagParallel           int
	flagPerHostConcurrency int
	flagErrorBudget        float64
	flagResume             bool
	flagQuiet              bool
	flagLogFile            string
	flagUserAgent          string
	flagCheckpointDir      string
	flagCheckpointInterval int
)

var rootCmd = &cobra.Command{
	Use:     "cartographer",
	Short:   "A local-first web crawling and archival engine.",
	Version: build.FullVersion(),
	Long: `cartographer crawls a set of seed hosts within a configurable scope,
converts every page it fetches into clean Markdown, and archives pages,
edges, and assets into a versioned, content-addressed Atlas archive
suitable for downstream retrieval workflows.`,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run a crawl against one or more seed URLs",
	RunE:  runCrawl,
}

func init() {
	crawlCmd.Flags().StringVar(&flagConfigFile, "config-file", "", "config file path (overrides individual flags)")
	crawlCmd.Flags().StringSliceVar(&flagSeeds, "seeds", nil, "comma-separated starting URLs")
	crawlCmd.Flags().StringVar(&flagOut, "out", "", "output directory for the Atlas archive")
	crawlCmd.Flags().StringVar(&flagMode, "mode", "", "fetch mode: raw, prerender, or full")
	crawlCmd.Flags().IntVar(&flagMaxPages, "maxPages", 0, "maximum number of pages to fetch (0 keeps the default)")
	crawlCmd.Flags().IntVar(&flagMaxDepth, "maxDepth", 0, "maximum link depth from a seed URL (0 keeps the default)")
	crawlCmd.Flags().IntVar(&flagParallel, "parallel", 0, "global concurrent fetch-extract-write tasks (0 keeps the default)")
	crawlCmd.Flags().IntVar(&flagPerHostConcurrency, "perHostParallel", 0, "concurrent tasks per host (0 keeps the default)")
	crawlCmd.Flags().Float64Var(&flagErrorBudget, "errorBudget", 0, "error-rate threshold (0,1] that trips backpressure (0 keeps the default)")
	crawlCmd.Flags().BoolVar(&flagResume, "resume", false, "resume from the latest checkpoint in --out/--checkpointDir")
	crawlCmd.Flags().BoolVar(&flagQuiet, "quiet", false, "suppress non-error log output")
	crawlCmd.Flags().StringVar(&flagLogFile, "logFile", "", "write logs to this file instead of stderr")
	crawlCmd.Flags().StringVar(&flagUserAgent, "userAgent", "", "user agent string for HTTP/browser requests")
	crawlCmd.Flags().StringVar(&flagCheckpointDir, "checkpointDir", "", "checkpoint directory (defaults to --out)")
	crawlCmd.Flags().IntVar(&flagCheckpointInterval, "checkpointInterval", 0, "pages between checkpoints (0 keeps the default)")

	rootCmd.AddCommand(crawlCmd)
}

// Execute runs the command tree and returns the process exit code
// spec.md §6 documents for the outcome reached, rather than calling
// os.Exit itself, so cmd/cartographer stays a thin wrapper.
func Execute() int {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		var ece *exitCodeError
		if errors.As(err, &ece) {
			fmt.Fprintln(os.Stderr, ece.Error())
			return ece.code
		}
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	return exitSuccess
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	recorder, rerr := telemetry.NewProduction(cfg.LogFile(), cfg.Quiet())
	if rerr != nil {
		return exitErrf(exitConfigError, "initializing logging: %w", rerr)
	}
	defer recorder.Sync()

	return run(cmd.Context(), cfg, recorder)
}

// resolveConfig builds a config.Config from --config-file if given,
// otherwise from the individual flags layered over config.WithDefault,
// matching the teacher's InitConfigWithError precedence (file wins
// outright; flags only override defaults, never each other).
func resolveConfig() (config.Config, error) {
	if flagConfigFile != "" {
		cfg, err := config.WithConfigFile(flagConfigFile)
		if err != nil {
			return config.Config{}, exitErrf(exitConfigError, "loading config file: %w", err)
		}
		return cfg, nil
	}

	if len(flagSeeds) == 0 {
		return config.Config{}, exitErrf(exitConfigError, "--seeds is required")
	}
	seeds, err := parseSeedURLs(flagSeeds)
	if err != nil {
		return config.Config{}, exitErrf(exitConfigError, "%w", err)
	}

	builder := config.WithDefault(seeds)
	if flagOut != "" {
		builder = builder.WithOutDir(flagOut)
	}
	if flagMode != "" {
		mode, merr := parseMode(flagMode)
		if merr != nil {
			return config.Config{}, exitErrf(exitConfigError, "%w", merr)
		}
		builder = builder.WithMode(mode)
	}
	if flagMaxPages > 0 {
		builder = builder.WithMaxPages(flagMaxPages)
	}
	if flagMaxDepth > 0 {
		builder = builder.WithMaxDepth(flagMaxDepth)
	}
	if flagParallel > 0 {
		builder = builder.WithGlobalConcurrency(flagParallel)
	}
	if flagPerHostConcurrency > 0 {
		builder = builder.WithPerHostConcurrency(flagPerHostConcurrency)
	}
	if flagErrorBudget > 0 {
		builder = builder.WithErrorBudget(defaultErrorBudgetWindow, flagErrorBudget)
	}
	if flagUserAgent != "" {
		builder = builder.WithUserAgent(flagUserAgent)
	}
	if flagCheckpointDir != "" {
		builder = builder.WithCheckpointDir(flagCheckpointDir)
	}
	if flagCheckpointInterval > 0 {
		builder = builder.WithCheckpointInterval(flagCheckpointInterval)
	}
	builder = builder.WithResume(flagResume).WithLogFile(flagLogFile).WithQuiet(flagQuiet)

	cfg, err := builder.Build()
	if err != nil {
		return config.Config{}, exitErrf(exitConfigError, "%w", err)
	}
	return cfg, nil
}

// defaultErrorBudgetWindow matches config.WithDefault's own window so
// --errorBudget can override just the threshold, the only knob spec.md
// §6 names.
const defaultErrorBudgetWindow = 100

func parseMode(raw string) (config.Mode, error) {
	switch config.Mode(strings.ToLower(raw)) {
	case config.ModeRaw:
		return config.ModeRaw, nil
	case config.ModePrerender:
		return config.ModePrerender, nil
	case config.ModeFull:
		return config.ModeFull, nil
	default:
		return "", fmt.Errorf("unknown --mode %q: want raw, prerender, or full", raw)
	}
}

func parseSeedURLs(raw []string) ([]url.URL, error) {
	urls := make([]url.URL, 0, len(raw))
	for _, s := range raw {
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parsing seed URL %q: %w", s, err)
		}
		urls = append(urls, *u)
	}
	return urls, nil
}

// run builds the crawl's dependency graph, starts the scheduler, wires
// SIGINT/SIGTERM to cooperative cancellation, and maps the run's
// outcome onto spec.md §6's exit codes.
func run(ctx context.Context, cfg config.Config, recorder *telemetry.Recorder) error {
	var resumedFrom *checkpoint.Record
	if cfg.Resume() {
		rec, rerr := loadResumeState(cfg, recorder)
		if rerr != nil {
			return rerr
		}
		resumedFrom = rec
	}

	sched, berr := build(cfg, recorder, resumedFrom)
	if berr != nil {
		return berr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		sched.Cancel()
	}()

	outcome, runErr := sched.Run(ctx, cfg.SeedURLs())
	return exitForOutcome(outcome, runErr)
}

func exitForOutcome(outcome scheduler.RunOutcome, err error) error {
	switch outcome {
	case scheduler.RunCompleted:
		return nil
	case scheduler.RunBudgetExceeded:
		return exitErrf(exitErrorBudgetTripped, "error budget exceeded")
	case scheduler.RunCancelled:
		return exitErrf(exitCancelled, "crawl cancelled")
	case scheduler.RunFatal:
		var inv *scheduler.InvariantError
		if errors.As(err, &inv) {
			return exitErr(exitInvariantViolation, inv)
		}
		return exitErr(exitFatalIO, err)
	default:
		return exitErrf(exitFatalIO, "unknown run outcome %q", outcome)
	}
}
