package telemetry

// Cause is the closed, observational set of error causes recorded
// against a crawl. It exists purely for reporting and the error budget;
// it is never switched on to decide retry/abort behavior — that
// decision belongs to pkg/failure.Severity. Ported from the teacher's
// internal/metadata.ErrorCause and extended with spec.md §7's kinds.
type Cause string

const (
	CauseUnknown            Cause = "unknown"
	CauseConfig              Cause = "config"
	CauseRobotsDisallow      Cause = "robotsDisallow"
	CauseDNSFailure          Cause = "dnsFailure"
	CauseConnectFailure      Cause = "connectFailure"
	CauseTLSFailure          Cause = "tlsFailure"
	CauseHTTPStatus          Cause = "httpStatus"
	CauseTimeout             Cause = "timeout"
	CauseBodyTooLarge        Cause = "bodyTooLarge"
	CauseChallengeDetected   Cause = "challengeDetected"
	CauseRenderFailure       Cause = "renderFailure"
	CauseExtractorFailure    Cause = "extractorFailure"
	CauseWriterIO            Cause = "writerIO"
	CauseCheckpointIO        Cause = "checkpointIO"
	CauseInternal            Cause = "internal"
)

// AttributeKey names a structured attribute attached to an error record.
type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "httpStatus"
	AttrAssetURL   AttributeKey = "assetUrl"
	AttrWritePath  AttributeKey = "writePath"
	AttrMessage    AttributeKey = "message"
)

// Attribute is a single key/value pair attached to an error record.
type Attribute struct {
	Key   AttributeKey
	Value string
}
