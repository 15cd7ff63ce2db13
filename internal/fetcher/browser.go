package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/retry"
)

const (
	networkIdleQuietPeriod = 500 * time.Millisecond
	networkIdleMaxWait     = 15 * time.Second
)

// BrowserFetcher implements the prerender and full fetch modes
// (spec.md §4.4): browser navigation with a network-idle wait, then DOM
// serialization. full additionally runs the post-load audits.
type BrowserFetcher struct {
	recorder        *telemetry.Recorder
	allocator        context.Context
	cancelAllocator  context.CancelFunc
	fetchTimeout     time.Duration
	maxBodyBytes     int64
	maxSubRequests   int
	runAudits        bool

	mu   sync.Mutex
	pool chan context.Context
}

// NewBrowserFetcher builds a chromedp-backed fetcher. runAudits selects
// the full mode's additional performance/accessibility probes; when
// false this implements the prerender mode.
func NewBrowserFetcher(
	recorder *telemetry.Recorder,
	userAgent string,
	fetchTimeout time.Duration,
	maxBodyBytes int64,
	maxSubRequests int,
	poolSize int,
	runAudits bool,
) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(userAgent),
	)

	allocator, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	if poolSize < 1 {
		poolSize = 1
	}
	pool := make(chan context.Context, poolSize)
	for i := 0; i < poolSize; i++ {
		ctx, _ := chromedp.NewContext(allocator)
		pool <- ctx
	}

	return &BrowserFetcher{
		recorder:        recorder,
		allocator:       allocator,
		cancelAllocator: cancel,
		fetchTimeout:    fetchTimeout,
		maxBodyBytes:    maxBodyBytes,
		maxSubRequests:  maxSubRequests,
		runAudits:       runAudits,
		pool:            pool,
	}
}

// Init is a no-op for the browser fetcher: it drives its own allocator
// rather than an *http.Client, but must satisfy the common interface.
func (b *BrowserFetcher) Init(httpClient *http.Client) {}

func (b *BrowserFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	start := time.Now()

	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return b.render(ctx, fetchParam.fetchUrl)
	}

	result := retry.Retry(retryParam, fetchTask)

	duration := time.Since(start)
	if result.IsFailure() {
		var fetchErr *FetchError
		b.recorder.RecordFetch(fetchParam.fetchUrl.String(), 0, result.Attempts(), duration.Milliseconds())
		if asFetchError(result.Err(), &fetchErr) {
			b.recorder.RecordError("fetcher.browser", fetchParam.fetchUrl.String(), telemetryCause(fetchErr),
				telemetry.Attribute{Key: telemetry.AttrURL, Value: fetchParam.fetchUrl.String()},
			)
			return FetchResult{}, fetchErr
		}
		return FetchResult{}, result.Err().(failure.ClassifiedError)
	}

	val := result.Value()
	b.recorder.RecordFetch(fetchParam.fetchUrl.String(), val.Code(), result.Attempts(), duration.Milliseconds())
	return val, nil
}

func asFetchError(err error, target **FetchError) bool {
	fe, ok := err.(*FetchError)
	if ok {
		*target = fe
	}
	return ok
}

func (b *BrowserFetcher) render(parent context.Context, fetchUrl url.URL) (FetchResult, failure.ClassifiedError) {
	b.mu.Lock()
	browserCtx := <-b.pool
	b.mu.Unlock()
	defer func() { b.pool <- browserCtx }()

	timeoutCtx, cancel := context.WithTimeout(browserCtx, b.fetchTimeout)
	defer cancel()

	var subRequestsMu sync.Mutex
	var subRequests []SubRequest
	var statusCode int
	responseHeaders := make(map[string]string)

	lastActivity := time.Now()
	var activityMu sync.Mutex

	chromedp.ListenTarget(timeoutCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			activityMu.Lock()
			lastActivity = time.Now()
			activityMu.Unlock()

			subRequestsMu.Lock()
			if len(subRequests) < b.maxSubRequests {
				subRequests = append(subRequests, SubRequest{
					URL:    e.Response.URL,
					Type:   string(e.Type),
					Status: int(e.Response.Status),
				})
			}
			if e.Type == network.ResourceTypeDocument {
				statusCode = int(e.Response.Status)
				for k, v := range e.Response.Headers {
					if s, ok := v.(string); ok {
						responseHeaders[k] = s
					}
				}
			}
			subRequestsMu.Unlock()

		case *network.EventLoadingFinished:
			activityMu.Lock()
			lastActivity = time.Now()
			activityMu.Unlock()
		}
	})

	if err := chromedp.Run(timeoutCtx, network.Enable()); err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to enable network domain: %v", err),
			Retryable: true,
			Cause:     ErrCauseRenderFailure,
		}
	}

	var finalURLStr string
	var html string
	navStart := time.Now()

	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(fetchUrl.String()),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return waitNetworkIdle(ctx, &activityMu, &lastActivity)
		}),
		chromedp.Location(&finalURLStr),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	idleWaited := time.Since(navStart)

	if err != nil {
		if err == context.DeadlineExceeded {
			return FetchResult{}, &FetchError{
				Message:   "render timed out",
				Retryable: true,
				Cause:     ErrCauseTimeout,
			}
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("render failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseRenderFailure,
		}
	}

	if int64(len(html)) > b.maxBodyBytes {
		html = html[:b.maxBodyBytes]
	}

	finalURL := fetchUrl
	if parsed, err := url.Parse(finalURLStr); err == nil && finalURLStr != "" {
		finalURL = *parsed
	}

	if b.runAudits {
		b.collectAudits(timeoutCtx)
	}

	subRequestsMu.Lock()
	capturedSubRequests := subRequests
	subRequestsMu.Unlock()

	challenge := classifyChallenge(statusCode, responseHeaders, []byte(html))

	return FetchResult{
		finalURL:    finalURL,
		body:        []byte(html),
		fetchedAt:   time.Now(),
		subRequests: capturedSubRequests,
		challenge:   challenge,
		timing: Timing{
			Started:           navStart,
			TotalDuration:     time.Since(navStart),
			NetworkIdleWaited: idleWaited,
		},
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}, nil
}

// waitNetworkIdle polls until no network activity has been observed for
// networkIdleQuietPeriod, or networkIdleMaxWait elapses — whichever
// comes first (spec.md §4.4: "quiet period 500 ms, max wait 15 s").
func waitNetworkIdle(ctx context.Context, mu *sync.Mutex, lastActivity *time.Time) error {
	deadline := time.Now().Add(networkIdleMaxWait)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			mu.Lock()
			quiet := now.Sub(*lastActivity) >= networkIdleQuietPeriod
			mu.Unlock()
			if quiet || now.After(deadline) {
				return nil
			}
		}
	}
}

// collectAudits runs the full mode's post-load probes (spec.md §4.4:
// "performance metrics collection, accessibility probe"). Results are
// observational only; a failure here never fails the fetch.
func (b *BrowserFetcher) collectAudits(ctx context.Context) {
	var perfJSON string
	_ = chromedp.Run(ctx, chromedp.Evaluate(`JSON.stringify(performance.timing)`, &perfJSON))

	var missingAltCount int
	_ = chromedp.Run(ctx, chromedp.Evaluate(
		`document.querySelectorAll('img:not([alt])').length`, &missingAltCount,
	))
}

// Close releases the browser pool and its allocator.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.pool)
	for ctx := range b.pool {
		chromedp.Cancel(ctx)
	}
	if b.cancelAllocator != nil {
		b.cancelAllocator()
	}
	return nil
}
