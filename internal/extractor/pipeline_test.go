package extractor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cartographer/cartographer/internal/assets"
	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/extractor"
	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/mdconvert"
	"github.com/cartographer/cartographer/internal/normalize"
	"github.com/cartographer/cartographer/internal/robots"
	"github.com/cartographer/cartographer/internal/robots/cache"
	"github.com/cartographer/cartographer/internal/sanitizer"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/internal/urlnorm"
	"github.com/cartographer/cartographer/pkg/hashutil"
	"github.com/cartographer/cartographer/pkg/retry"
	"github.com/cartographer/cartographer/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// longBody gives the DOM extractor's content scorer enough prose to
// treat a <main> or <article> as the real document body rather than
// boilerplate chrome, the same fixture idiom dom_test.go uses.
const longBody = "This section documents a feature in enough detail that the content scorer " +
	"treats it as substantive prose rather than boilerplate chrome, covering configuration, usage, " +
	"and troubleshooting steps a reader would actually need."

// noRobotsSite starts an httptest.Server that 404s every request,
// including robots.txt, so a Classifier built against it treats the
// host as unrestricted without this test ever reaching the real
// network: sourceURL/PageContext URLs in these tests all live on this
// server's host for that reason, even though the page body itself is
// handed to Pipeline.Run directly rather than fetched.
func noRobotsSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// buildPipeline wires the five real stage implementations the same way
// internal/cli/wiring.go does, so Run exercises the actual extractor,
// sanitizer, converter, resolver, and constraint rather than doubles:
// Pipeline holds concrete stage types, not interfaces, so there is no
// seam to substitute a fake stage at.
func buildPipeline(t *testing.T, seedURL url.URL, outDir string) extractor.Pipeline {
	t.Helper()

	cfg, err := config.WithDefault([]url.URL{seedURL}).WithOutDir(outDir).Build()
	require.NoError(t, err)

	robotsFetcher := robots.NewRobotsFetcher(cfg.UserAgent(), cache.NewMemoryCache())
	robotsPolicy := robots.NewPolicy(robotsFetcher, cfg.UserAgent())
	classifier := urlnorm.New(cfg, robotsPolicy)

	recorder := telemetry.New(nil)
	domExtractor := extractor.NewDomExtractor(recorder, extractor.DefaultExtractParam())
	htmlSanitizer := sanitizer.NewHTMLSanitizer(recorder)
	converter := mdconvert.NewRule(recorder)
	resolver := assets.NewLocalResolver(recorder, &http.Client{Timeout: time.Second}, cfg.UserAgent())
	constraint := normalize.NewMarkdownConstraint(recorder)

	retryParam := retry.NewRetryParam(time.Millisecond, 0, 1, 1, timeutil.BackoffParam{})
	resolveConfig := extractor.ResolveConfig{
		Assets:    assets.NewResolveParamWithHash(outDir, 1<<20, hashutil.HashAlgoSHA256),
		Retry:     retryParam,
		Normalize: normalize.NewNormalizeParam("test", time.Now(), hashutil.HashAlgoSHA256, 0, nil),
	}

	return extractor.NewPipeline(recorder, classifier, domExtractor, htmlSanitizer, converter, resolver, constraint, resolveConfig)
}

func pageContext(t *testing.T, rawURL string, body []byte) extractor.PageContext {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return extractor.PageContext{
		SourceURL: *u,
		FetchResult: fetcher.NewFetchResultForTest(*u, body, 200,
			map[string]string{"Content-Type": "text/html"}, time.Now(), nil,
			fetcher.Timing{}, fetcher.ChallengeClassification{}),
		FetchMode:    "http",
		CrawlDepth:   0,
		DispatchedAt: time.Now(),
	}
}

// TestPipeline_Run_AllStagesSucceed covers the happy path: a page record,
// its markdown body, a discovered edge, and a resolved asset all come
// back with zero errors.
func TestPipeline_Run_AllStagesSucceed(t *testing.T) {
	outDir := t.TempDir()
	site := noRobotsSite(t)

	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
	t.Cleanup(assetSrv.Close)

	seedURL, err := url.Parse(site.URL + "/docs/guide")
	require.NoError(t, err)
	pipeline := buildPipeline(t, *seedURL, outDir)

	pageHTML := []byte(`<html><body><main><h1>Guide</h1><p>` + longBody + `</p>` +
		`<a href="/docs/next">Next</a><img src="` + assetSrv.URL + `/cat.png"></main></body></html>`)

	result := pipeline.Run(context.Background(), pageContext(t, seedURL.String(), pageHTML))

	require.Empty(t, result.Errors)
	require.NotNil(t, result.Page)
	require.NotNil(t, result.Markdown)
	assert.NotEmpty(t, result.Page.PageID)
	assert.Equal(t, result.Page.PageID, result.Markdown.PageID)
	assert.Equal(t, "Guide", result.Page.Frontmatter.Title())
	assert.Contains(t, string(result.Page.MarkdownBody), "Guide")

	require.Len(t, result.Edges, 1)
	assert.Equal(t, result.Page.PageID, result.Edges[0].SourcePageID)
	assert.True(t, result.Edges[0].Internal)

	require.Len(t, result.Assets, 1)
	assert.Equal(t, result.Page.PageID, result.Assets[0].OwningPageID)
	assert.NotEmpty(t, result.Assets[0].ContentHash)
}

// TestPipeline_Run_ExtractionFailureProducesNoPage checks that a
// page-fatal DOM extraction failure returns only an ErrorRecord: no
// Page, no Markdown, no Edges, no Assets, matching dom_test.go's
// empty-<main> failure case.
func TestPipeline_Run_ExtractionFailureProducesNoPage(t *testing.T) {
	outDir := t.TempDir()
	site := noRobotsSite(t)
	seedURL, err := url.Parse(site.URL + "/empty")
	require.NoError(t, err)
	pipeline := buildPipeline(t, *seedURL, outDir)

	pageHTML := []byte(`<html><body><main></main></body></html>`)

	result := pipeline.Run(context.Background(), pageContext(t, seedURL.String(), pageHTML))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "extractor", result.Errors[0].Phase)
	assert.Nil(t, result.Page)
	assert.Nil(t, result.Markdown)
	assert.Nil(t, result.Edges)
	assert.Nil(t, result.Assets)
}

// TestPipeline_Run_SanitizerFailureProducesNoPage drives a document
// that passes DOM extraction (two H1 sections with real prose under a
// single <main>) but fails the sanitizer's H2 invariant: two h1
// siblings with no provable primary root. This is page-fatal and must
// never leave dangling edges or assets behind.
func TestPipeline_Run_SanitizerFailureProducesNoPage(t *testing.T) {
	outDir := t.TempDir()
	site := noRobotsSite(t)
	seedURL, err := url.Parse(site.URL + "/two-roots")
	require.NoError(t, err)
	pipeline := buildPipeline(t, *seedURL, outDir)

	pageHTML := []byte(`<html><body><main>` +
		`<h1>First</h1><p>` + longBody + `</p><a href="/other">Other</a>` +
		`<h1>Second</h1><p>` + longBody + `</p>` +
		`</main></body></html>`)

	result := pipeline.Run(context.Background(), pageContext(t, seedURL.String(), pageHTML))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "sanitizer", result.Errors[0].Phase)
	assert.Nil(t, result.Page)
	assert.Nil(t, result.Markdown)
	assert.Nil(t, result.Edges)
	assert.Nil(t, result.Assets)
}

// TestPipeline_Run_AssetFailureStillProducesPage forces ensureAssetDir
// to fail by pre-creating a regular file where the "assets" directory
// component needs to go, then confirms the page and its edges still
// come back, with only the asset list dropped.
func TestPipeline_Run_AssetFailureStillProducesPage(t *testing.T) {
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "assets"), []byte("blocked"), 0644))

	site := noRobotsSite(t)
	seedURL, err := url.Parse(site.URL + "/docs/with-image")
	require.NoError(t, err)
	pipeline := buildPipeline(t, *seedURL, outDir)

	pageHTML := []byte(`<html><body><main><h1>Guide</h1><p>` + longBody + `</p>` +
		`<a href="/docs/next">Next</a><img src="/logo.png"></main></body></html>`)

	result := pipeline.Run(context.Background(), pageContext(t, seedURL.String(), pageHTML))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "assets", result.Errors[0].Phase)
	require.NotNil(t, result.Page)
	require.NotNil(t, result.Markdown)
	require.Len(t, result.Edges, 1)
	assert.Equal(t, result.Page.PageID, result.Edges[0].SourcePageID)
	assert.Nil(t, result.Assets)
}

// TestPipeline_Run_NormalizeFailureStillProducesPageWithFallback uses a
// structurally valid single-H1 document fetched at a root-only URL
// path, which makes deriveSection fail inside generateFrontmatter
// (normalize/constraints.go) without touching validateStructure. The
// page is still produced, with FallbackFrontmatter standing in for the
// frontmatter normalize could not build.
func TestPipeline_Run_NormalizeFailureStillProducesPageWithFallback(t *testing.T) {
	outDir := t.TempDir()
	site := noRobotsSite(t)
	seedURL, err := url.Parse(site.URL + "/")
	require.NoError(t, err)
	pipeline := buildPipeline(t, *seedURL, outDir)

	pageHTML := []byte(`<html><body><main><h1>Welcome</h1><p>` + longBody + `</p>` +
		`<a href="/docs">Docs</a></main></body></html>`)

	result := pipeline.Run(context.Background(), pageContext(t, seedURL.String(), pageHTML))

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "normalize", result.Errors[0].Phase)
	require.NotNil(t, result.Page)
	require.NotNil(t, result.Markdown)
	assert.Empty(t, result.Page.Frontmatter.Title())
	require.Len(t, result.Edges, 1)
	assert.Equal(t, result.Page.PageID, result.Edges[0].SourcePageID)
}
