// Package telemetry is the sole sink the scheduler, fetcher, and
// extractors write observability to. It keeps the teacher's separation
// between recording (this package) and control flow (pkg/failure):
// nothing here ever decides whether the crawl retries or aborts.
package telemetry

import (
	"go.uber.org/zap"
)

// Recorder wraps a *zap.Logger with crawl-scoped helper methods so call
// sites don't repeat the same field names.
type Recorder struct {
	log *zap.Logger
}

// New builds a Recorder around an existing zap logger.
func New(log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{log: log}
}

// NewProduction builds a Recorder with zap's production config, writing
// to the given path ("" or "stderr" for stderr).
func NewProduction(logFile string, quiet bool) (*Recorder, error) {
	cfg := zap.NewProductionConfig()
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
	}
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(log), nil
}

// WithHost returns a Recorder whose subsequent log lines are tagged with
// the given host.
func (r *Recorder) WithHost(host string) *Recorder {
	return &Recorder{log: r.log.With(zap.String("host", host))}
}

// WithPage returns a Recorder whose subsequent log lines are tagged with
// the given page URL.
func (r *Recorder) WithPage(pageURL string) *Recorder {
	return &Recorder{log: r.log.With(zap.String("url", pageURL))}
}

// RecordFetch logs a completed fetch attempt; purely observational.
func (r *Recorder) RecordFetch(url string, status int, attempt int, durationMs int64) {
	r.log.Info("fetch",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Int("attempt", attempt),
		zap.Int64("durationMs", durationMs),
	)
}

// RecordError logs a classified error record. cause is the closed,
// observational-only error kind (never switched on for control flow).
func (r *Recorder) RecordError(phase string, url string, cause Cause, attrs ...Attribute) {
	fields := make([]zap.Field, 0, len(attrs)+3)
	fields = append(fields, zap.String("phase", phase), zap.String("url", url), zap.String("cause", string(cause)))
	for _, a := range attrs {
		fields = append(fields, zap.String(string(a.Key), a.Value))
	}
	r.log.Warn("crawl error", fields...)
}

// RecordArtifact logs a successfully written archive part record.
func (r *Recorder) RecordArtifact(part string, rows int) {
	r.log.Debug("artifact", zap.String("part", part), zap.Int("rows", rows))
}

// Sync flushes buffered log entries.
func (r *Recorder) Sync() error {
	return r.log.Sync()
}

// Raw exposes the underlying zap logger for components that want
// structured fields beyond the helper methods above.
func (r *Recorder) Raw() *zap.Logger {
	return r.log
}
