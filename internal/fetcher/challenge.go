package fetcher

import "strings"

// ChallengeKind names the anti-bot layer a response was classified
// against. An empty ChallengeKind means no challenge was detected.
type ChallengeKind string

const (
	ChallengeNone       ChallengeKind = ""
	ChallengeCloudflare ChallengeKind = "cloudflare"
	ChallengeAkamai     ChallengeKind = "akamai"
	ChallengeCaptcha    ChallengeKind = "captcha"
)

// ChallengeClassification is the fetcher's verdict on whether a fetched
// page is real content or an anti-bot interstitial. Classified pages
// are emitted with the tag set and are not re-extracted (spec.md §4.4).
type ChallengeClassification struct {
	Kind      ChallengeKind
	Signature string
}

func (c ChallengeClassification) Detected() bool {
	return c.Kind != ChallengeNone
}

type challengeSignature struct {
	kind       ChallengeKind
	name       string
	statusCode int
	header     string
	headerHas  string
	bodyHas    string
}

// challengeSignatures inspects status, headers, and body against known
// fingerprints for the common anti-bot layers named in spec.md §4.4.
// Ordered most-specific first; the first match wins.
var challengeSignatures = []challengeSignature{
	{kind: ChallengeCloudflare, name: "cf-ray header", header: "Cf-Ray"},
	{kind: ChallengeCloudflare, name: "503 challenge body", statusCode: 503, bodyHas: "checking your browser"},
	{kind: ChallengeCloudflare, name: "cf challenge form", bodyHas: "cf-challenge-running"},
	{kind: ChallengeAkamai, name: "akamai bot manager header", header: "X-Akamai-Transformed"},
	{kind: ChallengeAkamai, name: "akamai sensor script", bodyHas: "_abck"},
	{kind: ChallengeCaptcha, name: "recaptcha widget", bodyHas: "g-recaptcha"},
	{kind: ChallengeCaptcha, name: "hcaptcha widget", bodyHas: "h-captcha"},
	{kind: ChallengeCaptcha, name: "generic captcha wording", bodyHas: "are you a human"},
}

// classifyChallenge returns the first matching signature, or a
// non-detected classification when none apply.
func classifyChallenge(statusCode int, headers map[string]string, body []byte) ChallengeClassification {
	lowerBody := strings.ToLower(string(body))

	for _, sig := range challengeSignatures {
		if sig.statusCode != 0 && sig.statusCode != statusCode {
			continue
		}
		if sig.header != "" {
			if _, ok := lookupHeaderCaseInsensitive(headers, sig.header); !ok {
				continue
			}
		}
		if sig.headerHas != "" {
			v, ok := lookupHeaderCaseInsensitive(headers, sig.header)
			if !ok || !strings.Contains(strings.ToLower(v), strings.ToLower(sig.headerHas)) {
				continue
			}
		}
		if sig.bodyHas != "" && !strings.Contains(lowerBody, strings.ToLower(sig.bodyHas)) {
			continue
		}
		return ChallengeClassification{Kind: sig.kind, Signature: sig.name}
	}

	return ChallengeClassification{Kind: ChallengeNone}
}

func lookupHeaderCaseInsensitive(headers map[string]string, key string) (string, bool) {
	if v, ok := headers[key]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
