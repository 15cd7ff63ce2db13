// Package failure defines the two-axis error contract shared by every
// crawl component: a control-flow severity and, separately, a reporting
// kind. Severity decides whether the scheduler may retry or must abort;
// kind never drives control flow, it only labels an error record.
package failure

// Severity controls scheduler behavior on an error.
type Severity int

const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

// Kind is the closed, observational set of error categories a crawl can
// emit. It labels error records for reporting and the error budget; it
// must never be switched on to decide retry behavior, that is Severity's
// job.
type Kind string

const (
	KindConfig            Kind = "config"
	KindRobotsDisallow     Kind = "robotsDisallow"
	KindDNSFailure         Kind = "dnsFailure"
	KindConnectFailure     Kind = "connectFailure"
	KindTLSFailure         Kind = "tlsFailure"
	KindHTTPStatus         Kind = "httpStatus"
	KindTimeout            Kind = "timeout"
	KindBodyTooLarge       Kind = "bodyTooLarge"
	KindChallengeDetected  Kind = "challengeDetected"
	KindRenderFailure      Kind = "renderFailure"
	KindExtractorFailure   Kind = "extractorFailure"
	KindWriterIO           Kind = "writerIO"
	KindCheckpointIO       Kind = "checkpointIO"
	KindInternal           Kind = "internal"
)

// ExpectedOutcome reports whether errors of this kind count toward the
// error budget. robotsDisallow and challengeDetected are expected
// outcomes of a healthy crawl and are excluded.
func (k Kind) ExpectedOutcome() bool {
	return k == KindRobotsDisallow || k == KindChallengeDetected
}

// ClassifiedError is the base error contract: every error the crawl
// produces carries both a severity (what the scheduler should do) and a
// kind (what to record).
type ClassifiedError interface {
	error
	Severity() Severity
	Kind() Kind
}
