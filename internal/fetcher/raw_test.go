package fetcher_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/retry"
	"github.com/cartographer/cartographer/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetryParam() retry.RetryParam {
	return retry.NewRetryParam(
		1*time.Millisecond,
		1*time.Millisecond,
		42,
		2,
		timeutil.NewBackoffParam(1*time.Millisecond, 2.0, 10*time.Millisecond),
	)
}

func newRawFetcher() *fetcher.RawFetcher {
	return fetcher.NewRawFetcher(telemetry.New(nil), 10<<20, 5*time.Second, 10)
}

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestRawFetcher_SuccessfulHTMLFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	f := newRawFetcher()
	result, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, result.Code())
	assert.Contains(t, string(result.Body()), "hi")
	assert.False(t, result.Challenge().Detected())
}

func TestRawFetcher_NonHTMLContentIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newRawFetcher()
	_, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.NotNil(t, err)
	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, fetcher.ErrCauseContentTypeInvalid, fetchErr.Cause)
	assert.False(t, fetchErr.IsRetryable())
}

func TestRawFetcher_ForbiddenIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newRawFetcher()
	_, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.NotNil(t, err)
	assert.Equal(t, 1, calls)
	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, fetcher.ErrCauseRequestPageForbidden, fetchErr.Cause)
}

func TestRawFetcher_ServerErrorIsRetriedThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newRawFetcher()
	_, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.NotNil(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, failure.SeverityRecoverable, err.Severity())
}

func TestRawFetcher_BodyTooLargeIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 128))
	}))
	defer srv.Close()

	f := fetcher.NewRawFetcher(telemetry.New(nil), 16, 5*time.Second, 10)
	_, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.NotNil(t, err)
	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, fetcher.ErrCauseBodyTooLarge, fetchErr.Cause)
}

func TestRawFetcher_CloudflareChallengeIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Cf-Ray", "abc123-SJC")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>checking your browser</html>"))
	}))
	defer srv.Close()

	f := newRawFetcher()
	result, err := f.Fetch(t.Context(), 0, fetcher.NewFetchParam(mustParseURL(t, srv.URL), "TestBot/1.0"), testRetryParam())

	require.Nil(t, err)
	assert.True(t, result.Challenge().Detected())
	assert.Equal(t, fetcher.ChallengeCloudflare, result.Challenge().Kind)
}
