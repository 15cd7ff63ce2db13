// Package urlnorm implements C1: deterministic URL normalization,
// internal/external scope classification against the seed-host set, and
// robots admission, in that order (spec.md §4.1).
package urlnorm

import (
	"context"
	"net/url"
	"time"

	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/robots"
	"github.com/cartographer/cartographer/pkg/urlutil"
)

// Scope classifies a URL relative to the crawl's seed hosts.
type Scope string

const (
	ScopeInternal Scope = "internal"
	ScopeExternal Scope = "external"
)

// Classification is the full result of running a discovered URL through
// normalization, scope classification, and robots admission.
type Classification struct {
	Canonical url.URL
	Scope     Scope
	Admitted  bool
	Decision  robots.Decision
}

// Classifier holds the seed-host set and robots policy needed to
// classify and admit URLs discovered during a crawl.
type Classifier struct {
	cfg          config.Config
	robotsPolicy *robots.Policy
	seedDomains  map[string]struct{}
	allowedHosts map[string]struct{}
}

// New builds a Classifier. The seed-host set is derived from
// cfg.SeedURLs(); any additionally configured cfg.AllowedHosts() are
// treated as internal too.
func New(cfg config.Config, robotsPolicy *robots.Policy) *Classifier {
	c := &Classifier{
		cfg:          cfg,
		robotsPolicy: robotsPolicy,
		seedDomains:  make(map[string]struct{}),
		allowedHosts: make(map[string]struct{}),
	}
	for _, u := range cfg.SeedURLs() {
		c.seedDomains[urlutil.RegistrableDomain(u.Host)] = struct{}{}
	}
	for _, host := range cfg.AllowedHosts() {
		c.allowedHosts[urlutil.RegistrableDomain(host)] = struct{}{}
	}
	return c
}

// Classify normalizes raw, classifies its scope, and (for admitted
// scopes) consults robots. External URLs are never checked against
// robots: they are recorded as edges, never fetched, unless
// followExternal is configured — admission of followed external URLs
// still goes through robots via a second Classify call once scope
// policy allows enqueueing them.
func (c *Classifier) Classify(ctx context.Context, raw url.URL) Classification {
	canonical := urlutil.Canonicalize(raw, c.cfg.NormalizeQueryOrder())

	scope := ScopeExternal
	domain := urlutil.RegistrableDomain(canonical.Host)
	if _, ok := c.seedDomains[domain]; ok {
		scope = ScopeInternal
	} else if _, ok := c.allowedHosts[domain]; ok {
		scope = ScopeInternal
	}

	result := Classification{Canonical: canonical, Scope: scope}

	if scope == ScopeExternal && !c.cfg.FollowExternal() {
		return result
	}

	decision := c.robotsPolicy.Decide(ctx, canonical.Scheme, canonical.Host, canonical.Path)
	result.Decision = decision
	result.Admitted = decision.Allowed
	return result
}

// CrawlDelay returns the effective per-host delay floor given the
// robots decision produced by a prior Classify call.
func (c *Classifier) CrawlDelay(decision robots.Decision) time.Duration {
	return robots.CrawlDelayFloor(c.cfg.BaseDelay(), decision)
}
