package urlutil

import (
	"net/url"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name                string
		input               string
		normalizeQueryOrder bool
		expected            string
	}{
		{"trailing slash removed", "https://docs.example.com/guide/", false, "https://docs.example.com/guide"},
		{"no trailing slash stays same", "https://docs.example.com/guide", false, "https://docs.example.com/guide"},
		{"fragment removed", "https://docs.example.com/guide#index", false, "https://docs.example.com/guide"},
		{"query preserved by default", "https://docs.example.com/guide?utm_source=twitter", false, "https://docs.example.com/guide?utm_source=twitter"},
		{"query order preserved when flag unset", "https://docs.example.com/guide?b=2&a=1", false, "https://docs.example.com/guide?b=2&a=1"},
		{"query sorted when flag set", "https://docs.example.com/guide?b=2&a=1", true, "https://docs.example.com/guide?a=1&b=2"},
		{"fragment removed, query kept", "https://docs.example.com/guide?utm_source=twitter#index", false, "https://docs.example.com/guide?utm_source=twitter"},
		{"scheme lowercased", "HTTPS://docs.example.com/guide", false, "https://docs.example.com/guide"},
		{"host lowercased", "https://DOCS.EXAMPLE.COM/guide", false, "https://docs.example.com/guide"},
		{"scheme and host lowercased", "HTTPS://DOCS.EXAMPLE.COM/GUIDE", false, "https://docs.example.com/GUIDE"},
		{"default http port removed", "http://docs.example.com:80/guide", false, "http://docs.example.com/guide"},
		{"default https port removed", "https://docs.example.com:443/guide", false, "https://docs.example.com/guide"},
		{"non-default port preserved", "https://docs.example.com:8080/guide", false, "https://docs.example.com:8080/guide"},
		{"multiple trailing slashes removed", "https://docs.example.com/guide///", false, "https://docs.example.com/guide"},
		{"root path preserved", "https://docs.example.com/", false, "https://docs.example.com/"},
		{"root path without slash", "https://docs.example.com", false, "https://docs.example.com"},
		{"unreserved percent-escape decoded", "https://docs.example.com/guide%2Dnotes", false, "https://docs.example.com/guide-notes"},
		{"reserved percent-escape preserved", "https://docs.example.com/a%2Fb", false, "https://docs.example.com/a%2Fb"},
		{"path with uppercase preserved", "https://docs.example.com/API/v1/Users", false, "https://docs.example.com/API/v1/Users"},
		{"empty query removed", "https://docs.example.com/guide?", false, "https://docs.example.com/guide"},
		{"empty fragment removed", "https://docs.example.com/guide#", false, "https://docs.example.com/guide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputURL, err := url.Parse(tt.input)
			if err != nil {
				t.Fatalf("failed to parse input URL %q: %v", tt.input, err)
			}

			result := Canonicalize(*inputURL, tt.normalizeQueryOrder)
			if got := result.String(); got != tt.expected {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	testURLs := []string{
		"https://docs.example.com/guide/",
		"https://docs.example.com/guide?utm_source=twitter",
		"https://docs.example.com/guide#index",
		"HTTPS://DOCS.EXAMPLE.COM:443/GUIDE/?b=2&a=1#",
		"http://example.com:80/path///",
	}

	for _, urlStr := range testURLs {
		for _, normalizeQueryOrder := range []bool{false, true} {
			t.Run(urlStr, func(t *testing.T) {
				inputURL, err := url.Parse(urlStr)
				if err != nil {
					t.Fatalf("failed to parse URL %q: %v", urlStr, err)
				}

				first := Canonicalize(*inputURL, normalizeQueryOrder)
				second := Canonicalize(first, normalizeQueryOrder)

				if first.String() != second.String() {
					t.Errorf("Canonicalize is not idempotent: first=%q, second=%q", first.String(), second.String())
				}
			})
		}
	}
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	input, _ := url.Parse("https://example.com/path/?query=1#frag")
	original := *input

	_ = Canonicalize(*input, false)

	if input.String() != original.String() {
		t.Error("Canonicalize mutated the input URL")
	}
}

func TestLowerASCII(t *testing.T) {
	tests := []struct{ input, expected string }{
		{"Hello", "hello"},
		{"HELLO", "hello"},
		{"hello", "hello"},
		{"HTTPS", "https"},
		{"MixedCASE", "mixedcase"},
		{"already-lower", "already-lower"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := lowerASCII(tt.input); result != tt.expected {
				t.Errorf("lowerASCII(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStripTrailingSlash(t *testing.T) {
	tests := []struct{ input, expected string }{
		{"/path/", "/path"},
		{"/path//", "/path"},
		{"/path///", "/path"},
		{"/path", "/path"},
		{"/", "/"},
		{"///", "/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := stripTrailingSlash(tt.input); result != tt.expected {
				t.Errorf("stripTrailingSlash(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct{ host, expected string }{
		{"docs.example.com", "example.com"},
		{"example.com", "example.com"},
		{"a.b.c.example.com", "example.com"},
		{"localhost", "localhost"},
		{"example.com:8080", "example.com"},
		{"DOCS.EXAMPLE.COM", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := RegistrableDomain(tt.host); got != tt.expected {
				t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.host, got, tt.expected)
			}
		})
	}
}
