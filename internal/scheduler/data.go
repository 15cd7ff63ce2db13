// Package scheduler implements C6: the crawl's bounded-concurrency
// dispatch loop. It owns admission (the single choke point every
// candidate URL passes through before the frontier sees it), the
// fetch-extract-write task body, checkpoint cadence, and cooperative
// cancellation (spec.md §4.6, §5).
//
// Grounded on the teacher's internal/scheduler/scheduler.go: its
// SubmitUrlForAdmission is kept as submitForAdmission, the sole place
// robots/scope decisions are made before a URL reaches the frontier.
// Its single-threaded ExecuteCrawling loop is rebuilt here as a fixed
// pool of worker goroutines racing against the same frontier and
// limiter, since spec.md §5 asks for "a bounded pool of concurrent
// fetch-extract-write tasks" rather than one sequential loop.
package scheduler

import (
	"sync"

	"github.com/cartographer/cartographer/internal/atlas"
	"github.com/cartographer/cartographer/internal/budget"
	"github.com/cartographer/cartographer/internal/checkpoint"
	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/events"
	"github.com/cartographer/cartographer/internal/extractor"
	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/frontier"
	"github.com/cartographer/cartographer/internal/ratelimit"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/internal/urlnorm"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/retry"
)

// State is the scheduler's own lifecycle (spec.md §4.10's state machine
// list), distinct from any single task's or frontier entry's outcome.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateStopped  State = "stopped"
)

// RunOutcome is why Run returned.
type RunOutcome string

const (
	RunCompleted      RunOutcome = "completed"
	RunBudgetExceeded RunOutcome = "budget_exceeded"
	RunCancelled      RunOutcome = "cancelled"
	RunFatal          RunOutcome = "fatal"
)

// Deps bundles every component the scheduler coordinates but does not
// construct itself. The caller wires these from one shared
// config.Config before calling New; for a --resume run it also supplies
// a Frontier already rebuilt via frontier.Restore and a Writer already
// reopened via atlas.OpenForResume.
type Deps struct {
	Config      config.Config
	Frontier    *frontier.CrawlFrontier
	Limiter     *ratelimit.Limiter
	Classifier  *urlnorm.Classifier
	Fetcher     fetcher.Fetcher
	Pipeline    *extractor.Pipeline
	Writer      *atlas.Writer
	Bus         *events.Bus
	Checkpoints *checkpoint.Manager
	Budget      *budget.Controller
	Recorder    *telemetry.Recorder
}

// Counters tracks the running totals a checkpoint snapshot, the
// progress events, and the final summary all need.
type Counters struct {
	mu               sync.Mutex
	pagesDone        int
	errorsByKind     map[string]int
	lastCheckpointAt int
}

func newCounters() *Counters {
	return &Counters{errorsByKind: make(map[string]int)}
}

func (c *Counters) recordPage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesDone++
}

func (c *Counters) recordError(kind failure.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorsByKind[string(kind)]++
}

// dueForCheckpoint reports whether at least interval pages have
// completed since the last checkpoint, and if so resets the marker.
func (c *Counters) dueForCheckpoint(interval int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if interval <= 0 || c.pagesDone-c.lastCheckpointAt < interval {
		return false
	}
	c.lastCheckpointAt = c.pagesDone
	return true
}

func (c *Counters) snapshot() (int, map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		out[k] = v
	}
	return c.pagesDone, out
}

func (c *Counters) totalErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.errorsByKind {
		n += v
	}
	return n
}

func (c *Counters) restore(pages int, errorsByKind map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pagesDone = pages
	c.lastCheckpointAt = pages
	for k, v := range errorsByKind {
		c.errorsByKind[k] = v
	}
}

// Scheduler runs one crawl's dispatch loop over Deps.
type Scheduler struct {
	deps Deps

	retryParam retry.RetryParam
	counters   *Counters
	resumed    bool

	mu             sync.Mutex
	state          State
	drainReason    RunOutcome
	fatalErr       error
	inFlightByHost map[string]int

	// checkpointMu serializes frontier-mutating calls (lease, complete)
	// against checkpoint snapshots: a task holds the read side for the
	// span of its lease/complete call, a checkpoint briefly takes the
	// write side to capture a consistent frontier+counters snapshot
	// (spec.md §5: "the coordinator briefly quiesces state mutations ...
	// while the snapshot is captured").
	checkpointMu sync.RWMutex

	cancel     chan struct{}
	cancelOnce sync.Once
}

// New builds a Scheduler. resumedFrom is the checkpoint record a
// --resume run loaded (after its fingerprint was already verified and
// its frontier/writer state already restored into deps); pass nil for a
// fresh crawl.
func New(deps Deps, resumedFrom *checkpoint.Record) *Scheduler {
	s := &Scheduler{
		deps:           deps,
		counters:       newCounters(),
		state:          StateStarting,
		inFlightByHost: make(map[string]int),
		cancel:         make(chan struct{}),
		retryParam: retry.NewRetryParam(
			deps.Config.BaseDelay(),
			deps.Config.Jitter(),
			deps.Config.RandomSeed(),
			deps.Config.MaxAttempts(),
			deps.Config.BackoffParam(),
		),
	}
	if resumedFrom != nil {
		s.resumed = true
		s.counters.restore(resumedFrom.Snapshot.PagesDone, resumedFrom.Snapshot.ErrorsByKind)
	}
	return s
}

// Cancel requests cooperative shutdown: the scheduler stops leasing new
// work, lets in-flight tasks either finish or abort at their next I/O
// boundary, and transitions to stopped. Idempotent.
func (s *Scheduler) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning
}

func (s *Scheduler) isDraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDraining || s.state == StateStopped
}

// beginDraining transitions running -> draining, recording why. Once
// already draining, the first reason still wins for ordinary causes
// (budget trip, cancellation, natural exhaustion racing each other),
// but a RunFatal call always escalates: a disk/write failure must never
// be masked behind an already-in-flight budget or cancellation drain,
// since spec.md treats writer/checkpoint I/O failures as fatal
// regardless of what else triggered draining first.
func (s *Scheduler) beginDraining(reason RunOutcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	if s.state == StateDraining {
		if reason != RunFatal || s.drainReason == RunFatal {
			return
		}
	} else {
		s.state = StateDraining
	}
	s.drainReason = reason
	if err != nil {
		s.fatalErr = err
	}
}
