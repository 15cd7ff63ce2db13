package extractor

import (
	"net/url"
	"time"

	"github.com/cartographer/cartographer/internal/fetcher"
	"github.com/cartographer/cartographer/internal/normalize"
	"github.com/cartographer/cartographer/pkg/failure"
)

// PageRecord is the Atlas "pages" part row for one successfully
// extracted fetch: a stable id, the final URL after redirects, fetch
// outcome, and the normalized Markdown body with its frontmatter.
// Immutable once emitted (spec.md §3).
type PageRecord struct {
	PageID       string
	FinalURL     string
	HTTPStatus   int
	FetchMode    string
	CrawlDepth   int
	DispatchedAt time.Time
	ExtractedAt  time.Time
	RenderedHTML string
	Frontmatter  normalize.Frontmatter
	MarkdownBody []byte
}

// EdgeRecord is one outgoing link discovered on a page, before and
// after normalization, with its scope classification (spec.md §3).
type EdgeRecord struct {
	SourcePageID  string
	TargetURL     string
	NormalizedURL string
	Internal      bool
	DiscoveryMode string
}

// AssetRecord is one image a page references, after resolution
// (spec.md §3). Type is always "image": the resolver built against
// this pipeline only downloads Markdown image references.
type AssetRecord struct {
	OwningPageID string
	AssetURL     string
	Type         string
	ContentHash  string
	LocalPath    string
}

// ErrorRecord is one isolated extractor-stage failure. The pipeline
// emits one of these per failing stage instead of aborting the page
// (spec.md §4.5: "An extractor failure is isolated").
type ErrorRecord struct {
	Phase     string
	URL       string
	Kind      failure.Kind
	Message   string
	Attempt   int
	Timestamp time.Time
}

// PageContext is the input a Pipeline run needs: everything C4 handed
// back for one fetched page, plus the crawl-scoped parameters each
// extractor stage requires.
type PageContext struct {
	SourceURL    url.URL
	FetchResult  fetcher.FetchResult
	FetchMode    string
	CrawlDepth   int
	DispatchedAt time.Time
}

// MarkdownRecord is the optional "markdown" aux-part row: a standalone
// rendition of a page's normalized Markdown body, written alongside the
// pages part rather than only embedded in PageRecord.MarkdownBody, so a
// reader wanting Markdown bodies in bulk doesn't have to pull the whole
// page-metadata part to get them (spec.md §6's auxPartAppends[]).
type MarkdownRecord struct {
	PageID string
	URL    string
	Body   []byte
}

// PipelineResult is everything one Pipeline.Run call produced: the
// page record (nil on a fatal extraction failure), plus whatever edges,
// assets, per-stage error records, and aux-part appends were gathered
// along the way.
type PipelineResult struct {
	Page     *PageRecord
	Edges    []EdgeRecord
	Assets   []AssetRecord
	Errors   []ErrorRecord
	Markdown *MarkdownRecord
}
