package fetcher

import (
	"context"
	"net/http"

	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/retry"
)

// Fetcher is the uniform interface every mode (raw, prerender, full)
// implements, so the scheduler never branches on mode (spec.md §4.4).
type Fetcher interface {
	Init(httpClient *http.Client)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
