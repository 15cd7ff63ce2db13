package cli

import (
	"net/http"
	"time"

	"github.com/cartographer/cartographer/internal/assets"
	"github.com/cartographer/cartographer/internal/atlas"
	"github.com/cartographer/cartographer/internal/budget"
	"github.com/cartographer/cartographer/internal/build"
	"github.com/cartographer/cartographer/internal/checkpoint"
	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/events"
	"github.com/cartographer/cartographer/internal/extractor"
	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/frontier"
	"github.com/cartographer/cartographer/internal/mdconvert"
	"github.com/cartographer/cartographer/internal/normalize"
	"github.com/cartographer/cartographer/internal/ratelimit"
	"github.com/cartographer/cartographer/internal/robots"
	"github.com/cartographer/cartographer/internal/robots/cache"
	"github.com/cartographer/cartographer/internal/sanitizer"
	"github.com/cartographer/cartographer/internal/scheduler"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/internal/urlnorm"
	"github.com/cartographer/cartographer/pkg/retry"
)

// build wires every component package behind scheduler.Deps from one
// resolved Config. It is the single place that knows every component
// constructor's signature; nothing else in this package reaches past
// the scheduler's public surface.
func build(cfg config.Config, recorder *telemetry.Recorder, resumedFrom *checkpoint.Record) (*scheduler.Scheduler, error) {
	robotsFetcher := robots.NewRobotsFetcher(cfg.UserAgent(), cache.NewMemoryCache())
	robotsPolicy := robots.NewPolicy(robotsFetcher, cfg.UserAgent())
	classifier := urlnorm.New(cfg, robotsPolicy)

	limiter := ratelimit.New(cfg)

	fr := frontier.NewCrawlFrontier()
	if resumedFrom != nil {
		if err := fr.Restore(cfg, resumedFrom.Snapshot.Frontier); err != nil {
			return nil, exitErrf(exitFatalIO, "restoring frontier from checkpoint: %w", err)
		}
	} else {
		fr.Init(cfg)
	}

	fetch := fetcher.New(cfg, recorder)

	domExtractor := extractor.NewDomExtractor(recorder, extractor.DefaultExtractParam())
	htmlSanitizer := sanitizer.NewHTMLSanitizer(recorder)
	converter := mdconvert.NewRule(recorder)
	resolver := assets.NewLocalResolver(recorder, &http.Client{Timeout: cfg.FetchTimeout()}, cfg.UserAgent())
	constraint := normalize.NewMarkdownConstraint(recorder)

	retryParam := retry.NewRetryParam(
		cfg.BaseDelay(), cfg.Jitter(), cfg.RandomSeed(), cfg.MaxAttempts(), cfg.BackoffParam(),
	)
	resolveConfig := extractor.ResolveConfig{
		Assets:    assets.NewResolveParamWithHash(cfg.OutDir(), cfg.MaxBodyBytes(), cfg.HashAlgo()),
		Retry:     retryParam,
		Normalize: normalize.NewNormalizeParam(build.FullVersion(), time.Now(), cfg.HashAlgo(), 0, cfg.AllowedPathPrefixes()),
	}
	pipeline := extractor.NewPipeline(recorder, classifier, domExtractor, htmlSanitizer, converter, resolver, constraint, resolveConfig)

	var writer *atlas.Writer
	var werr *atlas.WriterError
	if resumedFrom != nil {
		writer, werr = atlas.OpenForResume(cfg.OutDir(), cfg.HashAlgo(), cfg.Fingerprint(), recorder, resumedFrom.Snapshot.AtlasOffsets)
	} else {
		writer, werr = atlas.NewWriter(cfg.OutDir(), cfg.HashAlgo(), cfg.Fingerprint(), recorder)
	}
	if werr != nil {
		return nil, exitErrf(exitFatalIO, "opening atlas writer: %w", werr)
	}

	bus := events.NewBus(recorder)

	checkpointDir := cfg.CheckpointDir()
	if checkpointDir == "" {
		checkpointDir = cfg.OutDir()
	}
	checkpoints, cerr := checkpoint.NewManager(checkpointDir, 5, recorder)
	if cerr != nil {
		return nil, exitErrf(exitFatalIO, "opening checkpoint manager: %w", cerr)
	}

	ctrl := budget.NewController(cfg, limiter, recorder)

	deps := scheduler.Deps{
		Config:      cfg,
		Frontier:    fr,
		Limiter:     limiter,
		Classifier:  classifier,
		Fetcher:     fetch,
		Pipeline:    &pipeline,
		Writer:      writer,
		Bus:         bus,
		Checkpoints: checkpoints,
		Budget:      ctrl,
		Recorder:    recorder,
	}
	return scheduler.New(deps, resumedFrom), nil
}

// loadResumeState loads and validates the latest checkpoint for a
// --resume invocation. A missing checkpoint directory is not an error:
// it just means this is the first run, so resume degrades to a fresh
// crawl.
func loadResumeState(cfg config.Config, recorder *telemetry.Recorder) (*checkpoint.Record, error) {
	checkpointDir := cfg.CheckpointDir()
	if checkpointDir == "" {
		checkpointDir = cfg.OutDir()
	}
	mgr, err := checkpoint.NewManager(checkpointDir, 5, recorder)
	if err != nil {
		return nil, exitErrf(exitFatalIO, "opening checkpoint manager for resume: %w", err)
	}
	rec, err := mgr.LoadLatest()
	if err != nil {
		if err.Cause == checkpoint.ErrCauseNotFound {
			return nil, nil
		}
		return nil, exitErrf(exitFatalIO, "loading latest checkpoint: %w", err)
	}
	if verr := checkpoint.VerifySchemaVersion(rec); verr != nil {
		return nil, exitErrf(exitConfigError, "checkpoint schema: %w", verr)
	}
	if verr := checkpoint.VerifyFingerprint(rec, cfg.Fingerprint()); verr != nil {
		return nil, exitErrf(exitConfigError, "checkpoint does not match current configuration: %w", verr)
	}
	return rec, nil
}
