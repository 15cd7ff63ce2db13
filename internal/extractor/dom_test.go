package extractor_test

import (
	"net/url"
	"testing"

	"github.com/cartographer/cartographer/internal/extractor"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func setupExtractor() *extractor.DomExtractor {
	ext := extractor.NewDomExtractor(telemetry.New(nil), extractor.DefaultExtractParam())
	return &ext
}

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

// isElementNode checks if the node is the specified HTML element
func isElementNode(node *html.Node, tag string) bool {
	return node != nil && node.Type == html.ElementNode && node.Data == tag
}

const longParagraph = "This section documents a feature in enough detail that the content scorer " +
	"treats it as substantive prose rather than boilerplate chrome, covering configuration, usage, " +
	"and troubleshooting steps a reader would actually need."

// TestExtract_Case_MainValid tests: <main> with meaningful content
// Expected: Extraction succeeds, <main> chosen
func TestExtract_Case_MainValid(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/docs")
	htmlBytes := []byte(`<html><body><nav>Home</nav><main><h1>Guide</h1><p>` + longParagraph + `</p></main></body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.NoError(t, err, "Expected successful extraction")
	assert.NotNil(t, result.DocumentRoot, "DocumentRoot should not be nil")
	assert.NotNil(t, result.ContentNode, "ContentNode should not be nil")
	assert.True(t, isElementNode(result.ContentNode, "main"), "ContentNode should be <main> element")
}

// TestExtract_Case_MainEmpty tests: <main> exists but empty
// Expected: falls through every layer and returns ErrCauseNoContent
func TestExtract_Case_MainEmpty(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/empty")
	htmlBytes := []byte(`<html><body><main></main></body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.Error(t, err, "Expected extraction to fail")
	assert.Nil(t, result.ContentNode, "ContentNode should be nil on error")
	assert.Equal(t, failure.SeverityFatal, err.Severity(), "Should be fatal error")
}

// TestExtract_Case_MainNavOnly tests: <main> contains only navigation
// Expected: Returns an error (nav-only content is not meaningful)
func TestExtract_Case_MainNavOnly(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/nav-only")
	htmlBytes := []byte(`<html><body><main>
		<a href="/a">Alpha</a><a href="/b">Beta</a><a href="/c">Gamma</a>
	</main></body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.Error(t, err, "Expected extraction to fail for nav-only content")
	assert.Nil(t, result.ContentNode, "ContentNode should be nil on error")
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}

// TestExtract_Case_ArticleFallback tests: <main> invalid, <article> valid
// Expected: Accept <article> when <main> is not meaningful
func TestExtract_Case_ArticleFallback(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/article-fallback")
	htmlBytes := []byte(`<html><body>
		<main><a href="/x">link only</a></main>
		<article><h1>Guide</h1><p>` + longParagraph + `</p></article>
	</body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.NoError(t, err, "Expected successful extraction via article fallback")
	assert.NotNil(t, result.DocumentRoot, "DocumentRoot should not be nil")
	assert.NotNil(t, result.ContentNode, "ContentNode should not be nil")
	assert.True(t, isElementNode(result.ContentNode, "article"), "ContentNode should be <article> element")
}

// TestExtract_Case_CodeContent tests: Code-dominant content
// Expected: Code blocks are considered meaningful
func TestExtract_Case_CodeContent(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/code-docs")
	htmlBytes := []byte(`<html><body><article>
		<h1>Install</h1>
		<pre><code>go get github.com/cartographer/cartographer</code></pre>
		<pre><code>cartographer crawl https://example.com</code></pre>
	</article></body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.NoError(t, err, "Expected successful extraction for code-heavy docs")
	assert.NotNil(t, result.DocumentRoot, "DocumentRoot should not be nil")
	assert.NotNil(t, result.ContentNode, "ContentNode should not be nil")
	assert.True(t, isElementNode(result.ContentNode, "article"), "ContentNode should be <article> element")
}

// TestExtract_Case_NoContent tests: No meaningful content anywhere
// Expected: Returns an error
func TestExtract_Case_NoContent(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/no-content")
	htmlBytes := []byte(`<html><body><nav>Home</nav><footer>copyright</footer></body></html>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.Error(t, err, "Expected extraction to fail when no meaningful content")
	assert.Nil(t, result.ContentNode, "ContentNode should be nil on error")
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}

// TestExtract_Case_NotHTML_XML tests non-HTML XML content
// Expected: Returns a fatal error (html.Parse wraps the input in <html>,
// so it fails as ErrCauseNoContent rather than ErrCauseNotHTML)
func TestExtract_Case_NotHTML_XML(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/api")
	htmlBytes := []byte(`<?xml version="1.0" encoding="UTF-8"?><response><status>ok</status></response>`)

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.Error(t, err, "Expected extraction to fail for XML content")
	assert.Nil(t, result.ContentNode, "ContentNode should be nil on error")
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}

// TestExtract_Case_NotHTML_Text tests plain text content
// Expected: Returns a fatal error (html.Parse wraps the input in <html>,
// so it fails as ErrCauseNoContent rather than ErrCauseNotHTML)
func TestExtract_Case_NotHTML_Text(t *testing.T) {
	ext := setupExtractor()
	sourceURL := mustParseURL(t, "https://example.com/plaintext")
	htmlBytes := []byte("just a plain text response with no markup at all")

	result, err := ext.Extract(sourceURL, htmlBytes)

	require.Error(t, err, "Expected extraction to fail for plain text")
	assert.Nil(t, result.ContentNode, "ContentNode should be nil on error")
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}
