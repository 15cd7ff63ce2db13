package assets

import (
	"net/url"
	"time"

	"github.com/cartographer/cartographer/pkg/hashutil"
)

type AssetFetchResult struct {
	fetchUrl   url.URL
	httpStatus int
	duration   time.Duration
	data       []byte
}

func NewAssetFetchResult(
	fetchUrl url.URL,
	httpStatus int,
	duration time.Duration,
	data []byte,
) AssetFetchResult {
	return AssetFetchResult{
		fetchUrl:   fetchUrl,
		httpStatus: httpStatus,
		duration:   duration,
		data:       data,
	}
}

func (a *AssetFetchResult) URL() url.URL {
	return a.fetchUrl
}

func (a *AssetFetchResult) Data() []byte {
	return a.data
}

func (a *AssetFetchResult) Status() int {
	return a.httpStatus
}

func (a *AssetFetchResult) Duration() time.Duration {
	return a.duration
}

// ResolveParam tunes asset resolution: where local copies land, the size
// ceiling a single asset may not exceed, and the hash algorithm used for
// content-addressed deduplication.
type ResolveParam struct {
	outputDir    string
	maxAssetSize int64
	hashAlgo     hashutil.HashAlgo
}

// NewResolveParam builds a ResolveParam, defaulting to SHA-256 for content
// hashing. Use NewResolveParamWithHash to pick a different algorithm.
func NewResolveParam(outputDir string, maxAssetSize int64) ResolveParam {
	return NewResolveParamWithHash(outputDir, maxAssetSize, hashutil.HashAlgoSHA256)
}

func NewResolveParamWithHash(outputDir string, maxAssetSize int64, hashAlgo hashutil.HashAlgo) ResolveParam {
	return ResolveParam{
		outputDir:    outputDir,
		maxAssetSize: maxAssetSize,
		hashAlgo:     hashAlgo,
	}
}

func (r ResolveParam) OutputDir() string {
	return r.outputDir
}

func (r ResolveParam) MaxAssetSize() int64 {
	return r.maxAssetSize
}

func (r ResolveParam) HashAlgo() hashutil.HashAlgo {
	return r.hashAlgo
}

// ResolvedAsset is one image this page actually references, after
// download and content-hash dedup: its original remote URL, the local
// path it was rewritten to, and the hash its bytes were stored under.
type ResolvedAsset struct {
	SourceURL   string
	LocalPath   string
	ContentHash string
}

// AssetfulMarkdownDoc is the output of a successful Resolve call: the
// page's Markdown with local asset references rewritten in, plus
// bookkeeping for what couldn't be resolved.
type AssetfulMarkdownDoc struct {
	content         []byte
	missingAssets   map[string]AssetsErrorCause
	unparseableURLs []string
	localAssets     []string
	resolvedAssets  []ResolvedAsset
}

func NewAssetfulMarkdownDoc(content []byte, missingAssets map[string]AssetsErrorCause, unparseableURLs []string, localAssets []string) AssetfulMarkdownDoc {
	return AssetfulMarkdownDoc{
		content:         content,
		missingAssets:   missingAssets,
		unparseableURLs: unparseableURLs,
		localAssets:     localAssets,
	}
}

// NewAssetfulMarkdownDocWithResolved is like NewAssetfulMarkdownDoc but
// additionally carries the per-asset URL/path/hash triples an Asset
// Record extractor needs; the plain constructor above stays 4-argument
// for existing callers that only care about the rewritten content.
func NewAssetfulMarkdownDocWithResolved(content []byte, missingAssets map[string]AssetsErrorCause, unparseableURLs []string, localAssets []string, resolvedAssets []ResolvedAsset) AssetfulMarkdownDoc {
	return AssetfulMarkdownDoc{
		content:         content,
		missingAssets:   missingAssets,
		unparseableURLs: unparseableURLs,
		localAssets:     localAssets,
		resolvedAssets:  resolvedAssets,
	}
}

func (a AssetfulMarkdownDoc) Content() []byte {
	return a.content
}

func (a AssetfulMarkdownDoc) MissingAssets() map[string]AssetsErrorCause {
	return a.missingAssets
}

func (a AssetfulMarkdownDoc) UnparseableURLs() []string {
	return a.unparseableURLs
}

func (a AssetfulMarkdownDoc) LocalAssets() []string {
	return a.localAssets
}

func (a AssetfulMarkdownDoc) ResolvedAssets() []ResolvedAsset {
	return a.resolvedAssets
}
