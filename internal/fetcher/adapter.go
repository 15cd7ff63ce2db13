package fetcher

import (
	"runtime"

	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/telemetry"
)

// New builds the Fetcher for the configured mode: raw is a bare HTTP
// GET, prerender and full drive a pooled headless browser (spec.md
// §4.4). The scheduler depends only on the Fetcher interface and never
// branches on mode itself.
func New(cfg config.Config, recorder *telemetry.Recorder) Fetcher {
	switch cfg.FetchMode() {
	case config.ModePrerender:
		return NewBrowserFetcher(
			recorder,
			cfg.UserAgent(),
			cfg.FetchTimeout(),
			cfg.MaxBodyBytes(),
			cfg.MaxSubRequestsPerPage(),
			browserPoolSize(cfg),
			false,
		)
	case config.ModeFull:
		return NewBrowserFetcher(
			recorder,
			cfg.UserAgent(),
			cfg.FetchTimeout(),
			cfg.MaxBodyBytes(),
			cfg.MaxSubRequestsPerPage(),
			browserPoolSize(cfg),
			true,
		)
	default:
		return NewRawFetcher(
			recorder,
			cfg.MaxBodyBytes(),
			cfg.FetchTimeout(),
			cfg.MaxRedirects(),
		)
	}
}

// browserPoolSize bounds the number of concurrent browser tabs to the
// configured global concurrency, capped by available CPUs since each
// tab drives its own renderer process.
func browserPoolSize(cfg config.Config) int {
	n := cfg.GlobalConcurrency()
	if cpu := runtime.NumCPU(); n > cpu {
		n = cpu
	}
	if n < 1 {
		n = 1
	}
	return n
}
