// Package urlutil implements the deterministic URL normalization rules
// the frontier dedup key and robots lookups are built on.
package urlutil

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize applies a deterministic normalization to a URL, producing a
// canonical form used as the frontier dedup key.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Default ports are omitted (e.g. :80 for http, :443 for https)
//   - Path is cleaned (trailing slashes removed, except root "/")
//   - Unreserved percent-escapes (letters, digits, '-' '.' '_' '~') are decoded
//   - Fragments are removed
//   - An empty query (a trailing "?") is dropped
//   - Query string is preserved as-is, unless normalizeQueryOrder is set, in
//     which case its parameters are sorted by key
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url, f), f) == Canonicalize(url, f)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceURL url.URL, normalizeQueryOrder bool) url.URL {
	canonical := sourceURL

	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	escapedPath := decodeUnreservedEscapes(canonical.EscapedPath())
	if len(escapedPath) > 1 {
		escapedPath = stripTrailingSlash(escapedPath)
	}
	if p, err := url.PathUnescape(escapedPath); err == nil {
		canonical.Path = p
		canonical.RawPath = escapedPath
	} else {
		canonical.RawPath = ""
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""
	if canonical.RawQuery == "" {
		canonical.ForceQuery = false
	}

	if canonical.RawQuery != "" && normalizeQueryOrder {
		canonical.RawQuery = sortQuery(canonical.RawQuery)
	}

	return canonical
}

// sortQuery reorders "k=v&k2=v2" query pairs by key, preserving the
// relative order of repeated keys (stable sort).
func sortQuery(rawQuery string) string {
	pairs := strings.Split(rawQuery, "&")
	sort.SliceStable(pairs, func(i, j int) bool {
		return queryKey(pairs[i]) < queryKey(pairs[j])
	})
	return strings.Join(pairs, "&")
}

func queryKey(pair string) string {
	if idx := strings.IndexByte(pair, '='); idx >= 0 {
		return pair[:idx]
	}
	return pair
}

// decodeUnreservedEscapes decodes percent-escapes of RFC 3986 unreserved
// characters (ALPHA / DIGIT / "-" / "." / "_" / "~") so equivalent
// spellings of the same path collapse to one canonical form, leaving
// every other escape (including "%2F") untouched.
func decodeUnreservedEscapes(path string) string {
	if !strings.Contains(path, "%") {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '%' && i+2 < len(path) {
			if v, err := strconv.ParseUint(path[i+1:i+3], 16, 8); err == nil && isUnreserved(byte(v)) {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	default:
		return false
	}
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// RegistrableDomain returns an approximation of the registrable domain
// (eTLD+1) of a host, used for internal/external scope classification.
// It strips a trailing port and takes the last two labels, which is
// sufficient for the common case this crawler targets; hosts with two
// label public suffixes (e.g. "co.uk") are not special-cased.
func RegistrableDomain(host string) string {
	host = lowerASCII(host)
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
