package robots

import (
	"context"
	"strings"
	"time"
)

/*
Policy

Responsibilities:
- Fetch robots.txt per host (lazily, cached for the crawl lifetime)
- Map the parsed response to a ruleSet for the configured user-agent
- Decide whether a URL is admitted, and surface any Crawl-delay

Robots checks occur before a URL enters the frontier (spec.md §4.1). A
fetch failure or timeout defaults to allow, matching the spec's
documented failure mode.
*/
type Policy struct {
	fetcher   *RobotsFetcher
	userAgent string
}

// NewPolicy builds a robots Policy around a fetcher and the user-agent
// to evaluate rules for.
func NewPolicy(fetcher *RobotsFetcher, userAgent string) *Policy {
	return &Policy{fetcher: fetcher, userAgent: userAgent}
}

// Decide fetches (or reuses the cached) robots.txt for the host and
// reports whether the URL is admitted under the configured user-agent,
// along with any Crawl-delay the site specifies.
func (p *Policy) Decide(ctx context.Context, scheme, host, path string) Decision {
	result, err := p.fetcher.Fetch(ctx, scheme, host)
	if err != nil {
		return Decision{Allowed: true, Reason: EmptyRuleSet}
	}

	rs := MapResponseToRuleSet(result.Response, p.userAgent, result.FetchedAt)
	return evaluate(rs, path)
}

// evaluate applies exact/longest-prefix precedence across the matched
// group's allow/disallow rules.
func evaluate(rs ruleSet, path string) Decision {
	if !rs.hasGroups {
		return Decision{Allowed: true, Reason: EmptyRuleSet, CrawlDelay: rs.CrawlDelay()}
	}
	if !rs.matchedGroup {
		return Decision{Allowed: true, Reason: UserAgentNotMatched}
	}

	allowLen := longestMatch(rs.allowRules, path)
	disallowLen := longestMatch(rs.disallowRules, path)

	if allowLen == -1 && disallowLen == -1 {
		return Decision{Allowed: true, Reason: NoMatchingRules, CrawlDelay: rs.CrawlDelay()}
	}
	if allowLen >= disallowLen {
		return Decision{Allowed: true, Reason: AllowedByRobots, CrawlDelay: rs.CrawlDelay()}
	}
	return Decision{Allowed: false, Reason: DisallowedByRobots, CrawlDelay: rs.CrawlDelay()}
}

// longestMatch returns the length of the longest rule prefix matching
// path, or -1 if none match.
func longestMatch(rules []pathRule, path string) int {
	best := -1
	for _, r := range rules {
		prefix := r.Prefix()
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best = len(prefix)
		}
	}
	return best
}

// CrawlDelayFloor returns the larger of the configured base delay and
// the robots-declared crawl delay, per spec.md §4.3 ("robots Crawl-delay
// overrides D when present and >= configured D").
func CrawlDelayFloor(configured time.Duration, decision Decision) time.Duration {
	if decision.CrawlDelay == nil {
		return configured
	}
	if *decision.CrawlDelay > configured {
		return *decision.CrawlDelay
	}
	return configured
}
