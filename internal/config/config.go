// Package config builds the crawl configuration surface from either a
// JSON file or CLI flags, using the teacher's fluent builder pattern
// (WithDefault(...).WithX(...).Build()) generalized to the full
// crawl/fetch/politeness/checkpoint/backpressure surface spec.md §6
// requires.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/cartographer/cartographer/pkg/hashutil"
	"github.com/cartographer/cartographer/pkg/timeutil"
)

// Mode selects the fetch/render strategy (spec.md §4.4).
type Mode string

const (
	ModeRaw       Mode = "raw"
	ModePrerender Mode = "prerender"
	ModeFull      Mode = "full"
)

// Config is the fully resolved, immutable crawl configuration. Use
// WithDefault(...) to start a builder chain, then Build() to validate
// and obtain a Config.
type Config struct {
	// crawl scope
	seedURLs             []url.URL
	allowedHosts         []string
	allowedPathPrefixes  []string
	maxDepth             int
	maxPages             int
	followExternal       bool
	normalizeQueryOrder  bool

	// concurrency limits
	globalConcurrency int // N
	perHostConcurrency int // K
	maxAttempts       int
	randomSeed        int64

	// politeness
	baseDelay time.Duration
	jitter    time.Duration
	userAgent string

	// fetch
	mode                  Mode
	fetchTimeout          time.Duration
	maxBodyBytes          int64
	maxSubRequestsPerPage int
	maxRedirects          int

	// error budget (C8)
	errorBudgetWindow    int
	errorBudgetThreshold float64

	// backpressure (C8)
	memoryHighWaterMarkBytes int64
	memoryLowWaterMarkBytes  int64

	// checkpoint (C7)
	checkpointInterval int
	resume             bool
	checkpointDir      string

	// output (C9)
	outDir   string
	hashAlgo hashutil.HashAlgo

	// logging
	logFile string
	quiet   bool
}

// configDTO mirrors Config for JSON file loading.
type configDTO struct {
	SeedURLs              []string `json:"seedUrls"`
	AllowedHosts          []string `json:"allowedHosts"`
	AllowedPathPrefixes   []string `json:"allowedPathPrefixes"`
	MaxDepth              int      `json:"maxDepth"`
	MaxPages              int      `json:"maxPages"`
	FollowExternal        bool     `json:"followExternal"`
	NormalizeQueryOrder   bool     `json:"normalizeQueryOrder"`
	GlobalConcurrency     int      `json:"globalConcurrency"`
	PerHostConcurrency    int      `json:"perHostConcurrency"`
	MaxAttempts           int      `json:"maxAttempts"`
	RandomSeed            int64    `json:"randomSeed"`
	BaseDelayMs           int64    `json:"baseDelayMs"`
	JitterMs              int64    `json:"jitterMs"`
	UserAgent             string   `json:"userAgent"`
	Mode                  string   `json:"mode"`
	FetchTimeoutMs        int64    `json:"fetchTimeoutMs"`
	MaxBodyBytes          int64    `json:"maxBodyBytes"`
	MaxSubRequestsPerPage int      `json:"maxSubRequestsPerPage"`
	MaxRedirects          int      `json:"maxRedirects"`
	ErrorBudgetWindow     int      `json:"errorBudgetWindow"`
	ErrorBudgetThreshold  float64  `json:"errorBudgetThreshold"`
	MemoryHighWaterMark   int64    `json:"memoryHighWaterMarkBytes"`
	MemoryLowWaterMark    int64    `json:"memoryLowWaterMarkBytes"`
	CheckpointInterval    int      `json:"checkpointInterval"`
	Resume                bool     `json:"resume"`
	CheckpointDir         string   `json:"checkpointDir"`
	OutDir                string   `json:"outDir"`
	HashAlgo              string   `json:"hashAlgo"`
	LogFile               string   `json:"logFile"`
	Quiet                 bool     `json:"quiet"`
}

// WithDefault starts a builder chain from spec.md's documented defaults
// for the given seed URLs.
func WithDefault(seedURLs []url.URL) *Config {
	return &Config{
		seedURLs:                 seedURLs,
		maxDepth:                 3,
		maxPages:                 100,
		followExternal:           false,
		normalizeQueryOrder:      false,
		globalConcurrency:        10,
		perHostConcurrency:       2,
		maxAttempts:              3,
		randomSeed:               time.Now().UnixNano(),
		baseDelay:                1 * time.Second,
		jitter:                   500 * time.Millisecond,
		userAgent:                "cartographer/1.0",
		mode:                     ModeRaw,
		fetchTimeout:             30 * time.Second,
		maxBodyBytes:             10 * 1024 * 1024,
		maxSubRequestsPerPage:    250,
		maxRedirects:             10,
		errorBudgetWindow:        100,
		errorBudgetThreshold:     0.5,
		memoryHighWaterMarkBytes: 1 << 30, // 1 GiB
		memoryLowWaterMarkBytes:  512 << 20,
		checkpointInterval:       50,
		checkpointDir:            "",
		outDir:                   "output",
		hashAlgo:                 hashutil.HashAlgoBLAKE3,
	}
}

// WithConfigFile loads a Config from a JSON file, falling back to
// WithDefault's values for any field the file does not set explicitly
// via a subsequent With* call.
func WithConfigFile(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrReadConfigFail, err)
	}
	var dto configDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfigParsingFail, err)
	}
	c, err := newConfigFromDTO(dto)
	if err != nil {
		return Config{}, err
	}
	return c.Build()
}

func newConfigFromDTO(dto configDTO) (*Config, error) {
	seeds := make([]url.URL, 0, len(dto.SeedURLs))
	for _, raw := range dto.SeedURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid seed URL %q", ErrInvalidConfig, raw)
		}
		seeds = append(seeds, *u)
	}
	c := WithDefault(seeds)
	if len(dto.AllowedHosts) > 0 {
		c.allowedHosts = dto.AllowedHosts
	}
	if len(dto.AllowedPathPrefixes) > 0 {
		c.allowedPathPrefixes = dto.AllowedPathPrefixes
	}
	if dto.MaxDepth > 0 {
		c.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages > 0 {
		c.maxPages = dto.MaxPages
	}
	c.followExternal = dto.FollowExternal
	c.normalizeQueryOrder = dto.NormalizeQueryOrder
	if dto.GlobalConcurrency > 0 {
		c.globalConcurrency = dto.GlobalConcurrency
	}
	if dto.PerHostConcurrency > 0 {
		c.perHostConcurrency = dto.PerHostConcurrency
	}
	if dto.MaxAttempts > 0 {
		c.maxAttempts = dto.MaxAttempts
	}
	if dto.RandomSeed != 0 {
		c.randomSeed = dto.RandomSeed
	}
	if dto.BaseDelayMs > 0 {
		c.baseDelay = time.Duration(dto.BaseDelayMs) * time.Millisecond
	}
	if dto.JitterMs > 0 {
		c.jitter = time.Duration(dto.JitterMs) * time.Millisecond
	}
	if dto.UserAgent != "" {
		c.userAgent = dto.UserAgent
	}
	if dto.Mode != "" {
		c.mode = Mode(dto.Mode)
	}
	if dto.FetchTimeoutMs > 0 {
		c.fetchTimeout = time.Duration(dto.FetchTimeoutMs) * time.Millisecond
	}
	if dto.MaxBodyBytes > 0 {
		c.maxBodyBytes = dto.MaxBodyBytes
	}
	if dto.MaxSubRequestsPerPage > 0 {
		c.maxSubRequestsPerPage = dto.MaxSubRequestsPerPage
	}
	if dto.MaxRedirects > 0 {
		c.maxRedirects = dto.MaxRedirects
	}
	if dto.ErrorBudgetWindow > 0 {
		c.errorBudgetWindow = dto.ErrorBudgetWindow
	}
	if dto.ErrorBudgetThreshold > 0 {
		c.errorBudgetThreshold = dto.ErrorBudgetThreshold
	}
	if dto.MemoryHighWaterMark > 0 {
		c.memoryHighWaterMarkBytes = dto.MemoryHighWaterMark
	}
	if dto.MemoryLowWaterMark > 0 {
		c.memoryLowWaterMarkBytes = dto.MemoryLowWaterMark
	}
	if dto.CheckpointInterval > 0 {
		c.checkpointInterval = dto.CheckpointInterval
	}
	c.resume = dto.Resume
	if dto.CheckpointDir != "" {
		c.checkpointDir = dto.CheckpointDir
	}
	if dto.OutDir != "" {
		c.outDir = dto.OutDir
	}
	if dto.HashAlgo != "" {
		c.hashAlgo = hashutil.HashAlgo(dto.HashAlgo)
	}
	c.logFile = dto.LogFile
	c.quiet = dto.Quiet
	return c, nil
}

// Fluent builder methods.

func (c *Config) WithAllowedHosts(hosts []string) *Config { c.allowedHosts = hosts; return c }
func (c *Config) WithAllowedPathPrefixes(p []string) *Config {
	c.allowedPathPrefixes = p
	return c
}
func (c *Config) WithMaxDepth(d int) *Config         { c.maxDepth = d; return c }
func (c *Config) WithMaxPages(n int) *Config         { c.maxPages = n; return c }
func (c *Config) WithFollowExternal(b bool) *Config  { c.followExternal = b; return c }
func (c *Config) WithNormalizeQueryOrder(b bool) *Config {
	c.normalizeQueryOrder = b
	return c
}
func (c *Config) WithGlobalConcurrency(n int) *Config  { c.globalConcurrency = n; return c }
func (c *Config) WithPerHostConcurrency(k int) *Config { c.perHostConcurrency = k; return c }
func (c *Config) WithMaxAttempts(n int) *Config        { c.maxAttempts = n; return c }
func (c *Config) WithRandomSeed(s int64) *Config       { c.randomSeed = s; return c }
func (c *Config) WithBaseDelay(d time.Duration) *Config { c.baseDelay = d; return c }
func (c *Config) WithJitter(d time.Duration) *Config    { c.jitter = d; return c }
func (c *Config) WithUserAgent(ua string) *Config       { c.userAgent = ua; return c }
func (c *Config) WithMode(m Mode) *Config               { c.mode = m; return c }
func (c *Config) WithFetchTimeout(d time.Duration) *Config { c.fetchTimeout = d; return c }
func (c *Config) WithMaxBodyBytes(n int64) *Config      { c.maxBodyBytes = n; return c }
func (c *Config) WithMaxSubRequestsPerPage(n int) *Config {
	c.maxSubRequestsPerPage = n
	return c
}
func (c *Config) WithMaxRedirects(n int) *Config { c.maxRedirects = n; return c }
func (c *Config) WithErrorBudget(window int, threshold float64) *Config {
	c.errorBudgetWindow = window
	c.errorBudgetThreshold = threshold
	return c
}
func (c *Config) WithMemoryWaterMarks(high, low int64) *Config {
	c.memoryHighWaterMarkBytes = high
	c.memoryLowWaterMarkBytes = low
	return c
}
func (c *Config) WithCheckpointInterval(n int) *Config { c.checkpointInterval = n; return c }
func (c *Config) WithResume(b bool) *Config            { c.resume = b; return c }
func (c *Config) WithCheckpointDir(dir string) *Config  { c.checkpointDir = dir; return c }
func (c *Config) WithOutDir(dir string) *Config         { c.outDir = dir; return c }
func (c *Config) WithHashAlgo(algo hashutil.HashAlgo) *Config { c.hashAlgo = algo; return c }
func (c *Config) WithLogFile(path string) *Config       { c.logFile = path; return c }
func (c *Config) WithQuiet(b bool) *Config              { c.quiet = b; return c }

// Build validates the accumulated builder state and returns an
// immutable Config, defaulting allowedHosts to the seed hostnames when
// unset.
func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: no seed URLs", ErrInvalidConfig)
	}
	if c.checkpointDir == "" {
		c.checkpointDir = c.outDir
	}
	if len(c.allowedHosts) == 0 {
		seen := map[string]bool{}
		for _, u := range c.seedURLs {
			if !seen[u.Hostname()] {
				seen[u.Hostname()] = true
				c.allowedHosts = append(c.allowedHosts, u.Hostname())
			}
		}
	}
	if c.maxAttempts < 1 {
		return Config{}, fmt.Errorf("%w: maxAttempts must be >= 1", ErrInvalidConfig)
	}
	if c.globalConcurrency < 1 || c.perHostConcurrency < 1 {
		return Config{}, fmt.Errorf("%w: concurrency limits must be >= 1", ErrInvalidConfig)
	}
	return *c, nil
}

// BackoffParam derives the timeutil backoff shape from the resolved
// base delay, matching the teacher's own RetryParam(cfg) helper.
func (c Config) BackoffParam() timeutil.BackoffParam {
	return timeutil.NewBackoffParam(c.baseDelay, 2.0, 30*c.baseDelay)
}

// Getters return defensive copies for slices.

func (c Config) SeedURLs() []url.URL { return append([]url.URL(nil), c.seedURLs...) }
func (c Config) AllowedHosts() []string { return append([]string(nil), c.allowedHosts...) }
func (c Config) AllowedPathPrefixes() []string {
	return append([]string(nil), c.allowedPathPrefixes...)
}
func (c Config) MaxDepth() int                    { return c.maxDepth }
func (c Config) MaxPages() int                    { return c.maxPages }
func (c Config) FollowExternal() bool             { return c.followExternal }
func (c Config) NormalizeQueryOrder() bool        { return c.normalizeQueryOrder }
func (c Config) GlobalConcurrency() int           { return c.globalConcurrency }
func (c Config) PerHostConcurrency() int          { return c.perHostConcurrency }
func (c Config) MaxAttempts() int                 { return c.maxAttempts }
func (c Config) RandomSeed() int64                { return c.randomSeed }
func (c Config) BaseDelay() time.Duration         { return c.baseDelay }
func (c Config) Jitter() time.Duration            { return c.jitter }
func (c Config) UserAgent() string                { return c.userAgent }
func (c Config) FetchMode() Mode                  { return c.mode }
func (c Config) FetchTimeout() time.Duration       { return c.fetchTimeout }
func (c Config) MaxBodyBytes() int64              { return c.maxBodyBytes }
func (c Config) MaxSubRequestsPerPage() int       { return c.maxSubRequestsPerPage }
func (c Config) MaxRedirects() int                 { return c.maxRedirects }
func (c Config) ErrorBudgetWindow() int           { return c.errorBudgetWindow }
func (c Config) ErrorBudgetThreshold() float64    { return c.errorBudgetThreshold }
func (c Config) MemoryHighWaterMarkBytes() int64  { return c.memoryHighWaterMarkBytes }
func (c Config) MemoryLowWaterMarkBytes() int64   { return c.memoryLowWaterMarkBytes }
func (c Config) CheckpointInterval() int          { return c.checkpointInterval }
func (c Config) Resume() bool                     { return c.resume }
func (c Config) CheckpointDir() string            { return c.checkpointDir }
func (c Config) OutDir() string                   { return c.outDir }
func (c Config) HashAlgo() hashutil.HashAlgo       { return c.hashAlgo }
func (c Config) LogFile() string                  { return c.logFile }
func (c Config) Quiet() bool                      { return c.quiet }

// Fingerprint returns a stable identifier of the fields that must match
// between a checkpoint and the config resuming it (spec.md §4.7).
func (c Config) Fingerprint() string {
	seeds := make([]string, len(c.seedURLs))
	for i, u := range c.seedURLs {
		seeds[i] = u.String()
	}
	data, _ := json.Marshal(struct {
		Seeds    []string `json:"seeds"`
		MaxDepth int      `json:"maxDepth"`
		Mode     Mode     `json:"mode"`
		HashAlgo string   `json:"hashAlgo"`
		OutDir   string   `json:"outDir"`
	}{seeds, c.maxDepth, c.mode, string(c.hashAlgo), c.outDir})
	sum, _ := hashutil.HashBytes(data, hashutil.HashAlgoSHA256)
	return sum
}
