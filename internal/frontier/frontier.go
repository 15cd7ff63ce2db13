package frontier

import (
	"math/rand"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/pkg/timeutil"
	"github.com/cartographer/cartographer/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Lease admitted URLs to workers and record their outcome
- Re-admit failed URLs under an exponential backoff, up to a retry limit
- Snapshot and restore its full state for checkpointing
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Outcome is the terminal result a caller reports for a leased token via
// Complete.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

type entryState string

const (
	statePending  entryState = "pending"
	stateInFlight entryState = "inFlight"
	stateDone     entryState = "done"
	stateFailed   entryState = "failed"
	stateSkipped  entryState = "skipped"
)

type entry struct {
	token            CrawlToken
	host             string
	state            entryState
	attempt          int
	eligibleAt       time.Time
	priority         int
	discovererPageID string
}

// CrawlFrontier maintains BFS ordering across discovered URLs, deduplicates
// by canonicalized URL, and re-admits failed entries under a backoff
// policy. It is safe for concurrent use by multiple scheduler workers.
type CrawlFrontier struct {
	mu sync.Mutex

	cfg      config.Config
	rng      *rand.Rand
	rngSeed  int64
	rngDraws int64

	queuesByDepth  map[int]*FIFOQueue[*entry]
	visited        Set[string]
	byKey          map[string]*entry
	completedPages int

	maxRetries int
}

// NewCrawlFrontier constructs an un-initialized frontier. Callers must
// call Init (or Restore) before submitting candidates.
func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{}
}

// Init resets the frontier for a fresh crawl under cfg.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked(cfg)
}

func (f *CrawlFrontier) resetLocked(cfg config.Config) {
	f.cfg = cfg
	f.rngSeed = cfg.RandomSeed()
	f.rng = rand.New(rand.NewSource(f.rngSeed))
	f.rngDraws = 0
	f.queuesByDepth = make(map[int]*FIFOQueue[*entry])
	f.visited = NewSet[string]()
	f.byKey = make(map[string]*entry)
	f.completedPages = 0
	f.maxRetries = cfg.MaxAttempts()
	if f.maxRetries <= 0 {
		f.maxRetries = 3
	}
}

func canonicalKey(u url.URL) string {
	return urlutil.Canonicalize(u, false).String()
}

// Submit admits a candidate into the frontier, enforcing depth/page
// limits and deduplicating by canonicalized URL. Re-submission of an
// already visited URL is a no-op that never resets progress state,
// except that a strictly lower incoming depth than the stored one
// still updates the entry's depth in place (a shorter path to the same
// URL was just discovered, and later lease ordering should reflect
// it). Returns true if the candidate was newly admitted.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queuesByDepth == nil {
		f.resetLocked(f.cfg)
	}

	depth := candidate.DiscoveryMetadata().Depth()
	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return false
	}

	u := candidate.TargetURL()
	key := canonicalKey(u)
	if f.visited.Contains(key) {
		f.updateDepthIfLowerLocked(key, depth)
		return false
	}

	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.completedPages >= maxPages {
		return false
	}

	f.visited.Add(key)

	e := &entry{
		token:            NewCrawlToken(u, depth),
		host:             u.Host,
		state:            statePending,
		priority:         candidate.DiscoveryMetadata().Priority(),
		discovererPageID: candidate.DiscoveryMetadata().DiscovererPageID(),
	}
	f.byKey[key] = e

	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[*entry]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(e)
	return true
}

// updateDepthIfLowerLocked implements the already-visited depth-update
// rule: if depth is strictly lower than the entry's stored depth, the
// entry's token is rebuilt at the new depth, and if it is still
// pending it is moved into that depth's queue so lease ordering
// reflects the shorter path. State and attempt history are untouched.
func (f *CrawlFrontier) updateDepthIfLowerLocked(key string, depth int) {
	e, ok := f.byKey[key]
	if !ok {
		return
	}
	oldDepth := e.token.Depth()
	if depth >= oldDepth {
		return
	}
	e.token = NewCrawlToken(e.token.URL(), depth)
	if e.state != statePending {
		return
	}
	if oldQ, ok := f.queuesByDepth[oldDepth]; ok {
		for i, item := range oldQ.PeekAll() {
			if item == e {
				oldQ.RemoveAt(i)
				if oldQ.Size() == 0 {
					delete(f.queuesByDepth, oldDepth)
				}
				break
			}
		}
	}
	newQ, ok := f.queuesByDepth[depth]
	if !ok {
		newQ = NewFIFOQueue[*entry]()
		f.queuesByDepth[depth] = newQ
	}
	newQ.Enqueue(e)
}

// Dequeue returns the next eligible token in strict BFS order, with no
// regard for host concurrency. Equivalent to Lease(nil, 0).
func (f *CrawlFrontier) Dequeue() (CrawlToken, bool) {
	return f.lease(nil, 0)
}

// Lease returns the next eligible token whose host is not already at
// perHostCap in-flight requests, per inFlightByHost. Within a BFS depth
// level, entries are tried highest priority first and in FIFO order
// among equal priorities; an entry whose host is saturated is skipped
// WITHOUT reordering it relative to the entries that remain behind it.
func (f *CrawlFrontier) Lease(inFlightByHost map[string]int, perHostCap int) (CrawlToken, bool) {
	return f.lease(inFlightByHost, perHostCap)
}

func (f *CrawlFrontier) lease(inFlightByHost map[string]int, perHostCap int) (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, depth := range f.sortedDepthsLocked() {
		q := f.queuesByDepth[depth]
		items := q.PeekAll()
		// FIFO within priority bucket: try higher-priority entries
		// first, preserving queue order among entries of equal
		// priority, without ever reordering the queue itself beyond
		// the single leased entry removed below.
		order := make([]int, len(items))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return items[order[a]].priority > items[order[b]].priority
		})
		for _, i := range order {
			e := items[i]
			if e.state != statePending || now.Before(e.eligibleAt) {
				continue
			}
			if perHostCap > 0 && inFlightByHost != nil && inFlightByHost[e.host] >= perHostCap {
				continue
			}
			q.RemoveAt(i)
			e.state = stateInFlight
			if q.Size() == 0 {
				delete(f.queuesByDepth, depth)
			}
			return e.token, true
		}
	}
	return CrawlToken{}, false
}

// backoffDelayLocked draws the jitter for one re-admission's backoff
// delay and counts the draw, so a checkpoint taken afterward can
// reconstruct the same point in the RNG stream on restore instead of
// reseeding fresh and replaying the same jitter values a still-running
// sibling worker already consumed.
func (f *CrawlFrontier) backoffDelayLocked(attempt int) time.Duration {
	f.rngDraws++
	return timeutil.ExponentialBackoffDelay(attempt, f.cfg.Jitter(), *f.rng, f.cfg.BackoffParam())
}

func (f *CrawlFrontier) sortedDepthsLocked() []int {
	depths := make([]int, 0, len(f.queuesByDepth))
	for d, q := range f.queuesByDepth {
		if q.Size() > 0 {
			depths = append(depths, d)
		}
	}
	sort.Ints(depths)
	return depths
}

// Complete reports the outcome of a previously leased token. A failed
// outcome is re-admitted to its original depth bucket once attempt count
// is below the configured retry limit, eligible again after an
// exponential backoff; beyond that limit it becomes terminal. Returns
// false if u has no matching entry at all, which a caller should treat
// as an internal invariant violation (spec.md §7: "a completed URL with
// no matching in-flight record").
func (f *CrawlFrontier) Complete(u url.URL, outcome Outcome) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := canonicalKey(u)
	e, ok := f.byKey[key]
	if !ok {
		return false
	}

	switch outcome {
	case OutcomeDone:
		e.state = stateDone
		f.completedPages++
	case OutcomeSkipped:
		e.state = stateSkipped
	case OutcomeFailed:
		e.attempt++
		if e.attempt >= f.maxRetries {
			e.state = stateFailed
			return true
		}
		e.state = statePending
		e.eligibleAt = time.Now().Add(f.backoffDelayLocked(e.attempt))
		depth := e.token.Depth()
		q, ok := f.queuesByDepth[depth]
		if !ok {
			q = NewFIFOQueue[*entry]()
			f.queuesByDepth[depth] = q
		}
		q.Enqueue(e)
	}
	return true
}

// EntrySnapshot is the durable, serializable form of a single frontier
// entry, used by Snapshot/Restore for checkpointing.
type EntrySnapshot struct {
	URL              string    `json:"url"`
	Depth            int       `json:"depth"`
	Host             string    `json:"host"`
	State            string    `json:"state"`
	Attempt          int       `json:"attempt"`
	EligibleAt       time.Time `json:"eligibleAt,omitempty"`
	Priority         int       `json:"priority,omitempty"`
	DiscovererPageID string    `json:"discovererPageId,omitempty"`
}

// FrontierSnapshot is the full durable state of a CrawlFrontier,
// including the RNG seed and draw count backoff jitter has consumed so
// far, so a resumed crawl continues the same jitter stream instead of
// reseeding fresh (spec.md §4.7: "RNG/scheduler tie-break state"), and
// the completed-page-record count the maxPages admission gate is
// measured against.
type FrontierSnapshot struct {
	Entries        []EntrySnapshot `json:"entries"`
	RNGSeed        int64           `json:"rngSeed"`
	RNGDraws       int64           `json:"rngDraws"`
	CompletedPages int             `json:"completedPages"`
}

// Snapshot captures the frontier's full state for checkpointing.
func (f *CrawlFrontier) Snapshot() FrontierSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := FrontierSnapshot{
		Entries:        make([]EntrySnapshot, 0, len(f.byKey)),
		RNGSeed:        f.rngSeed,
		RNGDraws:       f.rngDraws,
		CompletedPages: f.completedPages,
	}
	for _, e := range f.byKey {
		snap.Entries = append(snap.Entries, EntrySnapshot{
			URL:              e.token.URL().String(),
			Depth:            e.token.Depth(),
			Host:             e.host,
			State:            string(e.state),
			Attempt:          e.attempt,
			EligibleAt:       e.eligibleAt,
			Priority:         e.priority,
			DiscovererPageID: e.discovererPageID,
		})
	}
	return snap
}

// Restore rebuilds frontier state from a snapshot taken by Snapshot.
// Any entry that was in-flight at checkpoint time is restored as
// pending, since in-flight work has no durable record of progress.
// The RNG is reseeded from the snapshot's seed (falling back to cfg's
// when the snapshot predates RNG tracking) and fast-forwarded by its
// recorded draw count, so backoff jitter for entries re-admitted after
// resume continues the same stream a fresh reseed would have
// re-started from scratch.
func (f *CrawlFrontier) Restore(cfg config.Config, snap FrontierSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetLocked(cfg)

	if snap.RNGSeed != 0 {
		f.rngSeed = snap.RNGSeed
		f.rng = rand.New(rand.NewSource(f.rngSeed))
	}
	for i := int64(0); i < snap.RNGDraws; i++ {
		f.rng.Int63()
	}
	f.rngDraws = snap.RNGDraws

	for _, es := range snap.Entries {
		u, err := url.Parse(es.URL)
		if err != nil {
			return err
		}
		key := canonicalKey(*u)
		f.visited.Add(key)

		state := entryState(es.State)
		if state == stateInFlight {
			state = statePending
		}

		e := &entry{
			token:            NewCrawlToken(*u, es.Depth),
			host:             es.Host,
			state:            state,
			attempt:          es.Attempt,
			eligibleAt:       es.EligibleAt,
			priority:         es.Priority,
			discovererPageID: es.DiscovererPageID,
		}
		f.byKey[key] = e

		if state == statePending {
			q, ok := f.queuesByDepth[es.Depth]
			if !ok {
				q = NewFIFOQueue[*entry]()
				f.queuesByDepth[es.Depth] = q
			}
			q.Enqueue(e)
		}
	}
	f.completedPages = snap.CompletedPages
	return nil
}

// IsDepthExhausted reports whether no pending entries remain at depth.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if depth < 0 {
		return true
	}
	q, ok := f.queuesByDepth[depth]
	return !ok || q.Size() == 0
}

// CurrentMinDepth returns the smallest depth with a pending entry, or -1
// if the frontier holds nothing eligible.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	min := -1
	for d, q := range f.queuesByDepth {
		if q.Size() == 0 {
			continue
		}
		if min == -1 || d < min {
			min = d
		}
	}
	return min
}

// VisitedCount returns the number of unique canonicalized URLs ever
// admitted, independent of their current state. The visited set is
// append-only: it never shrinks as entries are dequeued or completed.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}

// PendingOrInFlightCount reports how many entries are still pending or
// in-flight. The scheduler's natural-completion termination condition
// (spec.md §4.6: "frontier has no pending or in-flight entries") is
// exactly this count reaching zero.
func (f *CrawlFrontier) PendingOrInFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.byKey {
		if e.state == statePending || e.state == stateInFlight {
			n++
		}
	}
	return n
}
