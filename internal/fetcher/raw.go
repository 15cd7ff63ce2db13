package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/retry"
)

/*
Responsibilities

- Perform a single HTTP GET with redirect following (max hops configurable)
- Apply headers and timeouts
- Classify responses, including anti-bot challenge pages
- Bound response body size

raw mode never executes JavaScript or drives a browser; it only returns
bytes and metadata for the page at the other end of the redirect chain.
*/

// RawFetcher implements the raw fetch mode (spec.md §4.4): a single
// HTTP GET with bounded redirects, no JavaScript, no browser.
type RawFetcher struct {
	recorder     *telemetry.Recorder
	httpClient   *http.Client
	maxBodyBytes int64
	fetchTimeout time.Duration
	maxRedirects int
}

func NewRawFetcher(
	recorder *telemetry.Recorder,
	maxBodyBytes int64,
	fetchTimeout time.Duration,
	maxRedirects int,
) *RawFetcher {
	f := &RawFetcher{
		recorder:     recorder,
		maxBodyBytes: maxBodyBytes,
		fetchTimeout: fetchTimeout,
		maxRedirects: maxRedirects,
	}
	f.Init(&http.Client{})
	return f
}

func (h *RawFetcher) Init(httpClient *http.Client) {
	httpClient.Timeout = h.fetchTimeout
	httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= h.maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	h.httpClient = httpClient
}

func (h *RawFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	startTime := time.Now()

	result, err := h.fetchWithRetry(ctx, fetchParam.fetchUrl, fetchParam.userAgent, retryParam)

	duration := time.Since(startTime)

	var statusCode int
	var attempts int
	if err != nil {
		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			attempts = retryParam.MaxAttempts
		} else {
			attempts = 1
		}
	} else {
		statusCode = result.Code()
		attempts = 1
	}

	h.recorder.RecordFetch(fetchParam.fetchUrl.String(), statusCode, attempts, duration.Milliseconds())

	if err != nil {
		h.recordError(fetchParam.fetchUrl, err)
		return FetchResult{}, err
	}

	return result, nil
}

func (h *RawFetcher) recordError(fetchUrl url.URL, err failure.ClassifiedError) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		h.recorder.RecordError("fetcher", fetchUrl.String(), telemetryCause(fetchErr),
			telemetry.Attribute{Key: telemetry.AttrURL, Value: fetchUrl.String()},
		)
		return
	}
	var retryErr *retry.RetryError
	if errors.As(err, &retryErr) {
		h.recorder.RecordError("fetcher", fetchUrl.String(), telemetry.CauseInternal,
			telemetry.Attribute{Key: telemetry.AttrURL, Value: fetchUrl.String()},
			telemetry.Attribute{Key: telemetry.AttrField, Value: retryErr.Error()},
		)
	}
}

func (h *RawFetcher) fetchWithRetry(ctx context.Context, fetchUrl url.URL, userAgent string, retryParam retry.RetryParam) (FetchResult, failure.ClassifiedError) {
	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchUrl, userAgent)
	}

	result := retry.Retry(retryParam, fetchTask)
	if result.IsFailure() {
		var fetchErr *FetchError
		if errors.As(result.Err(), &fetchErr) {
			return FetchResult{}, fetchErr
		}
		var retryErr *retry.RetryError
		if errors.As(result.Err(), &retryErr) {
			return FetchResult{}, retryErr
		}
		return FetchResult{}, &FetchError{Message: result.Err().Error(), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	return result.Value(), nil
}

func (h *RawFetcher) performFetch(ctx context.Context, fetchUrl url.URL, userAgent string) (FetchResult, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
	}

	headers := requestHeaders(userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("request timed out: %v", err),
				Retryable: true,
				Cause:     ErrCauseTimeout,
			}
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("server error: %d", resp.StatusCode),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}

	case resp.StatusCode == 429:
		return FetchResult{}, &FetchError{
			Message:   "rate limited (429)",
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}

	case resp.StatusCode == 408:
		return FetchResult{}, &FetchError{
			Message:   "request timeout (408)",
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}

	case resp.StatusCode == 403:
		return FetchResult{}, &FetchError{
			Message:   "access forbidden (403)",
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("redirect limit exceeded at: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("client error: %d", resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseRequestPageForbidden,
		}
	}

	body, err := readBounded(resp.Body, h.maxBodyBytes)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return FetchResult{}, &FetchError{
				Message:   fmt.Sprintf("response body exceeds %d bytes", h.maxBodyBytes),
				Retryable: false,
				Cause:     ErrCauseBodyTooLarge,
			}
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContent(contentType) {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("non-HTML content type: %s", contentType),
			Retryable: false,
			Cause:     ErrCauseContentTypeInvalid,
		}
	}

	finalURL := fetchUrl
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}

	challenge := classifyChallenge(resp.StatusCode, responseHeaders, body)

	result := FetchResult{
		finalURL:  finalURL,
		body:      body,
		fetchedAt: time.Now(),
		subRequests: []SubRequest{{
			URL:      finalURL.String(),
			Type:     "Document",
			Status:   resp.StatusCode,
			SizeByte: int64(len(body)),
		}},
		challenge: challenge,
		meta: ResponseMeta{
			statusCode:      resp.StatusCode,
			responseHeaders: responseHeaders,
		},
	}

	return result, nil
}

var errBodyTooLarge = errors.New("fetcher: response body too large")

// readBounded reads up to limit+1 bytes, returning errBodyTooLarge if
// the body exceeds limit (spec.md §4.4's maximum response body size).
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
