package sanitizer

import (
	"net/url"

	"golang.org/x/net/html"
)

// SanitizedHTMLDoc is the output of a successful Sanitize call: a
// structurally repaired content node plus every hyperlink discovered
// while walking it.
type SanitizedHTMLDoc struct {
	contentNode    *html.Node
	discoveredUrls []url.URL
}

// NewSanitizedHTMLDoc constructs a SanitizedHTMLDoc directly, bypassing
// the Sanitize pipeline. Used by downstream packages' tests that need a
// SanitizedHTMLDoc without exercising sanitization itself.
func NewSanitizedHTMLDoc(contentNode *html.Node, discoveredUrls []url.URL) SanitizedHTMLDoc {
	return SanitizedHTMLDoc{
		contentNode:    contentNode,
		discoveredUrls: discoveredUrls,
	}
}

// GetContentNode returns the sanitized DOM subtree ready for Markdown
// conversion.
func (s *SanitizedHTMLDoc) GetContentNode() *html.Node {
	return s.contentNode
}

func (s *SanitizedHTMLDoc) GetDiscoveredURLs() []url.URL {
	return s.discoveredUrls
}
