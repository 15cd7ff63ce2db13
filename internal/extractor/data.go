package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ExtractParam tunes the Layer 3 heuristic scorer: how aggressively link-heavy
// nodes are penalized, and how strongly a specific child container is
// preferred over falling back to <body>.
type ExtractParam struct {
	// LinkDensityThreshold is the link-text-to-total-text ratio above which
	// a candidate's content score is penalized.
	LinkDensityThreshold float64
	// BodySpecificityBias is the fraction of <body>'s score a child
	// candidate must reach to be preferred over <body> itself.
	BodySpecificityBias float64
}

// DefaultExtractParam returns the heuristic tuning used absent an explicit
// operator override.
func DefaultExtractParam() ExtractParam {
	return ExtractParam{
		LinkDensityThreshold: 0.5,
		BodySpecificityBias:  0.6,
	}
}
