package extractor

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/cartographer/cartographer/internal/assets"
	"github.com/cartographer/cartographer/internal/mdconvert"
	"github.com/cartographer/cartographer/internal/normalize"
	"github.com/cartographer/cartographer/internal/sanitizer"
	"github.com/cartographer/cartographer/internal/telemetry"
	"github.com/cartographer/cartographer/internal/urlnorm"
	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/cartographer/cartographer/pkg/hashutil"
	"github.com/cartographer/cartographer/pkg/retry"
)

/*
Responsibilities
- Run one fetched page through the five extraction stages in order:
  DOM extraction, sanitization, Markdown conversion, asset resolution,
  normalization.
- Isolate a single stage's failure to an ErrorRecord instead of losing
  the page: a page that fails asset resolution still gets a page record
  and its edges, just no assets.
- Guarantee a page record is built before any of its edges or assets are
  returned, per spec.md §4.5.

A failure in DOM extraction, sanitization, or Markdown conversion is
fatal to the page itself (there is no Markdown body to normalize), so
those three stop the pipeline and emit only an ErrorRecord. Asset
resolution and normalization failures are recorded but do not discard
content already produced by earlier stages where one can substitute:
a page record is still produced, over the un-normalized body for a
normalize failure, so a page record always exists before its edges or
assets are returned.
*/

// Pipeline runs the ordered extractor chain for one fetched page.
type Pipeline struct {
	recorder     *telemetry.Recorder
	classifier   *urlnorm.Classifier
	extractor    DomExtractor
	sanitizer    sanitizer.HtmlSanitizer
	converter    *mdconvert.StrictConversionRule
	resolver     assets.LocalResolver
	constraint   normalize.MarkdownConstraint
	resolveParam ResolveConfig
}

// ResolveConfig bundles the per-crawl parameters the asset resolver and
// normalizer need that are not carried on PageContext.
type ResolveConfig struct {
	Assets      assets.ResolveParam
	Retry       retry.RetryParam
	Normalize   normalize.NormalizeParam
	AssetScheme string
}

// NewPipeline wires the five stage implementations behind one
// orchestration entry point. Each stage is constructed by its own
// package; Pipeline only sequences them.
func NewPipeline(
	recorder *telemetry.Recorder,
	classifier *urlnorm.Classifier,
	extractor DomExtractor,
	htmlSanitizer sanitizer.HtmlSanitizer,
	converter *mdconvert.StrictConversionRule,
	resolver assets.LocalResolver,
	constraint normalize.MarkdownConstraint,
	resolveConfig ResolveConfig,
) Pipeline {
	return Pipeline{
		recorder:     recorder,
		classifier:   classifier,
		extractor:    extractor,
		sanitizer:    htmlSanitizer,
		converter:    converter,
		resolver:     resolver,
		constraint:   constraint,
		resolveParam: resolveConfig,
	}
}

// Run executes the extraction chain for one fetched page. It never
// returns an error itself: every stage failure is captured as an
// ErrorRecord in the result instead, so a single bad page can never
// abort a crawl.
func (p *Pipeline) Run(ctx context.Context, pc PageContext) PipelineResult {
	result := PipelineResult{}
	sourceURL := pc.SourceURL
	body := pc.FetchResult.Body()

	extraction, err := p.extractor.Extract(sourceURL, body)
	if err != nil {
		result.Errors = append(result.Errors, toErrorRecord("extractor", sourceURL.String(), err))
		return result
	}

	sanitized, err := p.sanitizer.Sanitize(extraction.ContentNode)
	if err != nil {
		result.Errors = append(result.Errors, toErrorRecord("sanitizer", sourceURL.String(), err))
		return result
	}

	converted, err := p.converter.Convert(sanitized)
	if err != nil {
		result.Errors = append(result.Errors, toErrorRecord("mdconvert", sourceURL.String(), err))
		return result
	}

	// Edges come from the converter's navigation/anchor link refs, not
	// the asset pipeline: image refs are handled by asset resolution
	// below, fragment-only anchors never leave the page so they are not
	// crawl edges.
	result.Edges = p.buildEdges(ctx, result.Page, sourceURL, converted)

	assetfulDoc, assetsErr := p.resolveAssets(ctx, sourceURL, converted)
	markdownBody := converted.GetMarkdownContent()
	if assetsErr != nil {
		result.Errors = append(result.Errors, toErrorRecord("assets", sourceURL.String(), assetsErr))
	} else {
		markdownBody = assetfulDoc.Content()
		result.Assets = p.buildAssets(sourceURL, assetfulDoc)
	}

	pageID := uuid.NewString()
	for i := range result.Edges {
		result.Edges[i].SourcePageID = pageID
	}
	for i := range result.Assets {
		result.Assets[i].OwningPageID = pageID
	}

	// A normalize failure is isolated to this stage, same as an asset
	// failure above: the page still gets a record (with best-effort
	// frontmatter over its un-normalized body) so the edges and assets
	// already built and stamped with pageID above never end up pointing
	// at a page that was never written (spec.md §4.5, §5).
	normalizeDoc := assets.NewAssetfulMarkdownDoc(markdownBody, nil, nil, nil)
	normalized, normErr := p.constraint.Normalize(sourceURL, normalizeDoc, p.resolveParam.Normalize)
	frontmatter := normalize.Frontmatter{}
	finalBody := markdownBody
	if normErr != nil {
		result.Errors = append(result.Errors, toErrorRecord("normalize", sourceURL.String(), normErr))
		frontmatter = normalize.FallbackFrontmatter(sourceURL, markdownBody, p.resolveParam.Normalize)
	} else {
		frontmatter = normalized.Frontmatter()
		finalBody = normalized.Content()
	}

	renderedHash, hashErr := hashutil.HashBytes(body, p.resolveParam.Assets.HashAlgo())
	if hashErr != nil {
		renderedHash = ""
	}

	result.Page = &PageRecord{
		PageID:       pageID,
		FinalURL:     pc.FetchResult.URL().String(),
		HTTPStatus:   pc.FetchResult.Code(),
		FetchMode:    pc.FetchMode,
		CrawlDepth:   pc.CrawlDepth,
		DispatchedAt: pc.DispatchedAt,
		ExtractedAt:  pc.FetchResult.FetchedAt(),
		RenderedHTML: renderedHash,
		Frontmatter:  frontmatter,
		MarkdownBody: finalBody,
	}
	result.Markdown = &MarkdownRecord{
		PageID: pageID,
		URL:    pc.FetchResult.URL().String(),
		Body:   finalBody,
	}

	return result
}

func (p *Pipeline) resolveAssets(ctx context.Context, sourceURL url.URL, converted mdconvert.ConversionResult) (assets.AssetfulMarkdownDoc, failure.ClassifiedError) {
	scheme := p.resolveParam.AssetScheme
	if scheme == "" {
		scheme = sourceURL.Scheme
	}
	return p.resolver.Resolve(
		ctx,
		sourceURL,
		sourceURL.Host,
		scheme,
		converted,
		p.resolveParam.Assets,
		p.resolveParam.Retry,
	)
}

// buildEdges classifies every navigation/anchor link ref the converter
// found into an EdgeRecord. SourcePageID is filled in by the caller once
// the page id is assigned, since classification does not need it.
func (p *Pipeline) buildEdges(ctx context.Context, _ *PageRecord, sourceURL url.URL, converted mdconvert.ConversionResult) []EdgeRecord {
	var edges []EdgeRecord
	for _, ref := range converted.GetLinkRefs() {
		if ref.GetKind() != mdconvert.KindNavigation {
			continue
		}
		target, parseErr := url.Parse(ref.GetRaw())
		if parseErr != nil {
			continue
		}
		resolved := sourceURL.ResolveReference(target)
		classification := p.classifier.Classify(ctx, *resolved)
		edges = append(edges, EdgeRecord{
			TargetURL:     ref.GetRaw(),
			NormalizedURL: classification.Canonical.String(),
			Internal:      classification.Scope == urlnorm.ScopeInternal,
			DiscoveryMode: "link",
		})
	}
	return edges
}

// buildAssets converts a resolved document's per-asset triples into
// AssetRecords. OwningPageID is filled in by the caller.
func (p *Pipeline) buildAssets(_ url.URL, doc assets.AssetfulMarkdownDoc) []AssetRecord {
	var out []AssetRecord
	for _, ra := range doc.ResolvedAssets() {
		out = append(out, AssetRecord{
			AssetURL:    ra.SourceURL,
			Type:        "image",
			ContentHash: ra.ContentHash,
			LocalPath:   ra.LocalPath,
		})
	}
	return out
}

func toErrorRecord(phase, url string, err failure.ClassifiedError) ErrorRecord {
	return ErrorRecord{
		Phase:     phase,
		URL:       url,
		Kind:      err.Kind(),
		Message:   err.Error(),
		Attempt:   1,
		Timestamp: time.Now(),
	}
}
