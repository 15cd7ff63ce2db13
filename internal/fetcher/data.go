package fetcher

import (
	"net/url"
	"time"
)

// FetchParam is the HTTP boundary input: the URL to fetch and the
// identity it should be fetched under.
type FetchParam struct {
	fetchUrl  url.URL
	userAgent string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

// SubRequest records one network request observed while fetching a
// page: in raw mode this is just the page request itself; in
// prerender/full modes it includes every sub-resource request the
// browser issued before network idle (spec.md §4.4).
type SubRequest struct {
	URL      string
	Type     string
	Status   int
	SizeByte int64
}

// Timing captures the phases of a single fetch, used for the full
// mode's performance-metrics audit.
type Timing struct {
	Started          time.Time
	TotalDuration     time.Duration
	NetworkIdleWaited time.Duration
}

// FetchResult is the common return type shared by every fetch mode:
// {final URL, status, headers, body, network log, timing,
// challenge-classification}.
type FetchResult struct {
	finalURL    url.URL
	body        []byte
	meta        ResponseMeta
	fetchedAt   time.Time
	subRequests []SubRequest
	timing      Timing
	challenge   ChallengeClassification
}

func (f *FetchResult) URL() url.URL {
	return f.finalURL
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	return uint64(len(f.body))
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

func (f *FetchResult) SubRequests() []SubRequest {
	return f.subRequests
}

func (f *FetchResult) Timing() Timing {
	return f.timing
}

// Challenge reports whether this page was classified as an anti-bot
// challenge rather than real content. Challenge pages are not
// re-extracted (spec.md §4.4).
func (f *FetchResult) Challenge() ChallengeClassification {
	return f.challenge
}

type ResponseMeta struct {
	statusCode      int
	responseHeaders map[string]string
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	finalURL url.URL,
	body []byte,
	statusCode int,
	responseHeaders map[string]string,
	fetchedAt time.Time,
	subRequests []SubRequest,
	timing Timing,
	challenge ChallengeClassification,
) FetchResult {
	return FetchResult{
		finalURL:    finalURL,
		body:        body,
		fetchedAt:   fetchedAt,
		subRequests: subRequests,
		timing:      timing,
		challenge:   challenge,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}
