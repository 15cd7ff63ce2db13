package scheduler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cartographer/cartographer/internal/atlas"
	"github.com/cartographer/cartographer/internal/checkpoint"
	"github.com/cartographer/cartographer/internal/events"
	"github.com/cartographer/cartographer/internal/extractor"
	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/frontier"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/internal/urlnorm"
	"github.com/cartographer/cartographer/pkg/failure"
)

// leasePollInterval is how long a worker waits before retrying a lease
// that found nothing eligible (every ready host was at its per-host
// cap). Short enough not to stall dispatch once a host's delay floor
// passes, long enough that an idle worker pool does not spin.
const leasePollInterval = 20 * time.Millisecond

// budgetPollInterval is how often the memory backpressure controller
// re-reads process memory stats (spec.md §4.8).
const budgetPollInterval = 2 * time.Second

// Run drives the dispatch loop to completion: it admits seeds (skipped
// on a resumed crawl, whose frontier was already restored), starts the
// worker pool, and blocks until every worker has exited either because
// the frontier is exhausted, the error budget tripped, or ctx was
// cancelled. It always attempts a final checkpoint and always closes
// the Atlas Writer before returning.
func (s *Scheduler) Run(ctx context.Context, seeds []url.URL) (RunOutcome, error) {
	s.setState(StateStarting)
	s.deps.Bus.Publish(ctx, events.Event{Kind: events.KindCrawlStart, At: time.Now()})

	if !s.resumed {
		for _, seed := range seeds {
			s.submitForAdmission(ctx, seed, 0, frontier.SourceSeed, "")
		}
	}
	s.setState(StateRunning)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	go s.deps.Budget.Run(pollCtx, budgetPollInterval)

	workers := s.deps.Config.GlobalConcurrency()
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			s.workerLoop(ctx)
		}()
	}
	wg.Wait()

	return s.finalize(ctx)
}

// workerLoop is one concurrent slot in the bounded pool: lease, run the
// task, report its outcome, repeat, until draining is observed.
func (s *Scheduler) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.beginDraining(RunCancelled, nil)
		case <-s.cancel:
			s.beginDraining(RunCancelled, nil)
		default:
		}
		if s.isDraining() {
			return
		}
		if !s.deps.Budget.ShouldAdmit() {
			s.beginDraining(RunBudgetExceeded, nil)
			return
		}

		token, ok := s.tryLease()
		if !ok {
			if s.deps.Frontier.PendingOrInFlightCount() == 0 {
				s.beginDraining(RunCompleted, nil)
				return
			}
			time.Sleep(leasePollInterval)
			continue
		}

		s.runTask(ctx, token)

		if s.counters.dueForCheckpoint(s.deps.Config.CheckpointInterval()) {
			s.saveCheckpoint(ctx)
		}
	}
}

// tryLease asks the frontier for the next eligible token under the
// scheduler's live host-concurrency bookkeeping, reserving a slot for
// it on success.
func (s *Scheduler) tryLease() (frontier.CrawlToken, bool) {
	s.checkpointMu.RLock()
	defer s.checkpointMu.RUnlock()

	s.mu.Lock()
	hostSnapshot := make(map[string]int, len(s.inFlightByHost))
	for h, n := range s.inFlightByHost {
		hostSnapshot[h] = n
	}
	s.mu.Unlock()

	token, ok := s.deps.Frontier.Lease(hostSnapshot, s.deps.Config.PerHostConcurrency())
	if !ok {
		return frontier.CrawlToken{}, false
	}

	host := token.URL().Host
	s.mu.Lock()
	s.inFlightByHost[host]++
	s.mu.Unlock()
	return token, true
}

func (s *Scheduler) releaseInFlight(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlightByHost[host]--
	if s.inFlightByHost[host] <= 0 {
		delete(s.inFlightByHost, host)
	}
}

// completeTask reports a leased token's outcome to the frontier. A
// false return means the frontier held no record for the URL at all —
// an internal invariant violation (spec.md §7), since completeTask is
// only ever called with a token this same scheduler just leased.
func (s *Scheduler) completeTask(u url.URL, outcome frontier.Outcome) {
	s.checkpointMu.RLock()
	ok := s.deps.Frontier.Complete(u, outcome)
	s.checkpointMu.RUnlock()
	if !ok {
		err := &InvariantError{Message: fmt.Sprintf("completed %s has no matching frontier record", u.String())}
		s.recordDiagnostic(u.String(), err.Error())
		s.beginDraining(RunFatal, err)
	}
}

// submitForAdmission is the crawl's sole admission choke point: every
// candidate, seed or discovered, is classified (normalized, scoped,
// checked against robots) before the frontier ever sees it. Grounded on
// the teacher's SubmitUrlForAdmission.
func (s *Scheduler) submitForAdmission(ctx context.Context, raw url.URL, depth int, source frontier.SourceContext, discovererPageID string) {
	classification := s.deps.Classifier.Classify(ctx, raw)
	if classification.Scope == urlnorm.ScopeExternal && !s.deps.Config.FollowExternal() {
		return
	}
	if !classification.Admitted {
		// robotsDisallow is an expected outcome (pkg/failure.Kind.ExpectedOutcome):
		// no fetch was attempted, so nothing is written to the errors part.
		return
	}
	delay := s.deps.Classifier.CrawlDelay(classification.Decision)
	meta := frontier.NewDiscoveryMetadata(depth, &delay).WithDiscovererPageID(discovererPageID)
	if source == frontier.SourceSeed {
		// Seeds lease ahead of links discovered from them within the
		// same depth bucket, since a seed is the crawl's own starting
		// point rather than something another page merely pointed at.
		meta = meta.WithPriority(1)
	}
	candidate := frontier.NewCrawlAdmissionCandidate(classification.Canonical, source, meta)
	s.deps.Frontier.Submit(candidate)
}

// runTask executes one leased token's fetch-extract-write pipeline. It
// never returns an error: every failure is either recorded against the
// error budget and the archive, or escalated via beginDraining for the
// fatal writer/checkpoint I/O class spec.md §7 names.
func (s *Scheduler) runTask(ctx context.Context, token frontier.CrawlToken) {
	host := token.URL().Host
	defer s.releaseInFlight(host)

	if !s.isRunning() {
		// Cancellation landed between lease and dispatch: abort at the
		// fetch boundary, discarding this token without a fetch attempt.
		s.completeTask(token.URL(), frontier.OutcomeFailed)
		return
	}

	classification := s.deps.Classifier.Classify(ctx, token.URL())
	delayFloor := s.deps.Classifier.CrawlDelay(classification.Decision)

	if err := s.deps.Limiter.Acquire(ctx, host, delayFloor); err != nil {
		s.completeTask(token.URL(), frontier.OutcomeFailed)
		return
	}
	defer s.deps.Limiter.Release(host)

	dispatchedAt := time.Now()
	fetchParam := fetcher.NewFetchParam(token.URL(), s.deps.Config.UserAgent())
	result, ferr := s.deps.Fetcher.Fetch(ctx, token.Depth(), fetchParam, s.retryParam)
	if ferr != nil {
		s.recordOutcome(ferr.Kind(), false)
		s.appendErrorRecord("fetch", token.URL().String(), ferr.Kind(), ferr.Error())
		s.completeTask(token.URL(), frontier.OutcomeFailed)
		return
	}

	if result.Challenge().Detected() {
		s.recordOutcome(failure.KindChallengeDetected, false)
		s.appendErrorRecord("fetch", token.URL().String(), failure.KindChallengeDetected, "challenge detected, not re-extracted")
		s.completeTask(token.URL(), frontier.OutcomeSkipped)
		return
	}

	pc := extractor.PageContext{
		SourceURL:    token.URL(),
		FetchResult:  result,
		FetchMode:    string(s.deps.Config.FetchMode()),
		CrawlDepth:   token.Depth(),
		DispatchedAt: dispatchedAt,
	}
	pipelineResult := s.deps.Pipeline.Run(ctx, pc)

	if pipelineResult.Page != nil {
		if !s.append(atlas.PartPages, pipelineResult.Page) {
			return
		}
	}
	if pipelineResult.Markdown != nil {
		if !s.append(atlas.PartMarkdown, pipelineResult.Markdown) {
			return
		}
	}
	for _, edge := range pipelineResult.Edges {
		if !s.append(atlas.PartEdges, edge) {
			return
		}
		if edge.Internal {
			if target, perr := url.Parse(edge.NormalizedURL); perr == nil {
				s.submitForAdmission(ctx, *target, token.Depth()+1, frontier.SourceCrawl, pipelineResult.Page.PageID)
			}
		}
	}
	for _, asset := range pipelineResult.Assets {
		if !s.append(atlas.PartAssets, asset) {
			return
		}
	}
	for _, er := range pipelineResult.Errors {
		if !s.append(atlas.PartErrors, er) {
			return
		}
	}

	if len(pipelineResult.Errors) == 0 {
		s.recordOutcome("", true)
	} else {
		s.recordOutcome(pipelineResult.Errors[0].Kind, false)
	}

	s.counters.recordPage()
	s.completeTask(token.URL(), frontier.OutcomeDone)
	pages, _ := s.counters.snapshot()
	s.deps.Bus.Publish(ctx, events.Event{Kind: events.KindCrawlProgress, At: time.Now(), PagesDone: pages, Errors: s.counters.totalErrors()})
}

// append writes record to part, escalating a writer failure to a fatal
// drain (spec.md §7: "Writer ... I/O failures are fatal"). Returns
// false when the caller must stop processing this task immediately.
func (s *Scheduler) append(part string, record any) bool {
	if werr := s.deps.Writer.Append(part, record); werr != nil {
		s.beginDraining(RunFatal, werr)
		return false
	}
	return true
}

func (s *Scheduler) appendErrorRecord(phase, url string, kind failure.Kind, message string) {
	rec := extractor.ErrorRecord{
		Phase:     phase,
		URL:       url,
		Kind:      kind,
		Message:   message,
		Attempt:   1,
		Timestamp: time.Now(),
	}
	s.append(atlas.PartErrors, rec)
}

// recordOutcome feeds exactly one entry per completed fetch into the
// error budget's sliding window (spec.md §4.8), and, for counted
// failures, the running per-kind tally the checkpoint and final summary
// report.
func (s *Scheduler) recordOutcome(kind failure.Kind, success bool) {
	if success {
		s.deps.Budget.Errors.RecordSuccess()
		return
	}
	s.deps.Budget.Errors.RecordError(kind)
	if !kind.ExpectedOutcome() {
		s.counters.recordError(kind)
	}
}

func (s *Scheduler) recordDiagnostic(url, message string) {
	if s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.RecordError("scheduler", url, telemetry.CauseInternal,
		telemetry.Attribute{Key: telemetry.AttrMessage, Value: message},
	)
}

// saveCheckpoint captures a consistent snapshot of frontier and counter
// state under the write side of checkpointMu, then performs the disk
// I/O to persist it outside the lock: in-flight tasks only pause at
// their lease/complete boundary for the snapshot itself, not for the
// write to disk.
func (s *Scheduler) saveCheckpoint(ctx context.Context) {
	s.checkpointMu.Lock()
	frontierSnap := s.deps.Frontier.Snapshot()
	pages, errsByKind := s.counters.snapshot()
	s.checkpointMu.Unlock()

	offsets := s.deps.Writer.Offsets()
	var bytesWritten int64
	for _, po := range offsets.Parts {
		bytesWritten += po.CompressedBytes
	}

	snap := checkpoint.Snapshot{
		SchemaVersion:     checkpoint.CurrentSchemaVersion,
		TakenAt:           time.Now(),
		ConfigFingerprint: s.deps.Config.Fingerprint(),
		Frontier:          frontierSnap,
		AtlasOffsets:      offsets,
		PagesDone:         pages,
		ErrorsByKind:      errsByKind,
		BytesWritten:      bytesWritten,
	}

	rec, cerr := s.deps.Checkpoints.Save(snap)
	if cerr != nil {
		s.beginDraining(RunFatal, cerr)
		return
	}
	s.deps.Bus.Publish(ctx, events.Event{
		Kind:           events.KindCrawlCheckpoint,
		At:             time.Now(),
		PagesDone:      pages,
		Errors:         s.counters.totalErrors(),
		BytesWritten:   bytesWritten,
		CheckpointPath: rec.ID,
	})
}

// finalize takes the crawl's last checkpoint (spec.md §4.7b/c: graceful
// shutdown and budget-trip both want one), closes the archive, and
// reports the run's terminal outcome.
func (s *Scheduler) finalize(ctx context.Context) (RunOutcome, error) {
	s.saveCheckpoint(ctx)

	s.mu.Lock()
	s.state = StateStopped
	reason := s.drainReason
	fatalErr := s.fatalErr
	s.mu.Unlock()

	manifest, werr := s.deps.Writer.Close()
	pages, errsByKind := s.counters.snapshot()
	total := 0
	for _, n := range errsByKind {
		total += n
	}

	evt := events.Event{Kind: events.KindCrawlFinished, At: time.Now(), PagesDone: pages, Errors: total}
	if werr != nil {
		evt.Kind = events.KindCrawlError
		evt.Err = werr
		if fatalErr == nil {
			fatalErr = werr
		}
		reason = RunFatal
	} else {
		for _, pd := range manifest.Parts {
			evt.BytesWritten += pd.CompressedBytes
		}
	}
	s.deps.Bus.Publish(ctx, evt)

	if reason == "" {
		reason = RunCompleted
	}
	return reason, fatalErr
}
