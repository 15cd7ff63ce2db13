// Package events implements C10: fire-and-forget publication of crawl
// lifecycle events to synchronous subscribers (spec.md §4.10).
package events

import (
	"context"
	"sync"
	"time"

	"github.com/cartographer/cartographer/internal/telemetry"
)

// Kind is one of the five lifecycle events a crawl publishes.
type Kind string

const (
	KindCrawlStart      Kind = "crawl.start"
	KindCrawlProgress   Kind = "crawl.progress"
	KindCrawlCheckpoint Kind = "crawl.checkpoint"
	KindCrawlFinished   Kind = "crawl.finished"
	KindCrawlError      Kind = "crawl.error"
)

// Event is the payload delivered to every subscriber. Fields not
// relevant to Kind are left zero (e.g. Err is empty outside
// crawl.error).
type Event struct {
	Kind       Kind
	At         time.Time
	PagesDone  int
	Errors     int
	BytesWritten int64
	CheckpointPath string
	Err        error
}

// Handler receives events published to a Bus. Handlers run
// synchronously within Publish and must not block; a Handler that
// returns an error is logged and does not stop delivery to the
// remaining handlers (spec.md §4.10).
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus distributes lifecycle events to subscribed handlers in
// publication order. Safe for concurrent Subscribe/Publish calls: a
// snapshot of the handler list is taken under a read lock before
// dispatch, so a handler added mid-publish never sees a partial delivery.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	recorder *telemetry.Recorder
}

// NewBus constructs an empty event bus. recorder may be nil, in which
// case handler errors are silently dropped rather than logged.
func NewBus(recorder *telemetry.Recorder) *Bus {
	return &Bus{recorder: recorder}
}

// Subscribe registers a handler for all future Publish calls.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers evt to every subscribed handler, in subscription
// order, within the caller's goroutine. A handler's error is recorded
// and never propagated: one misbehaving subscriber must not stop the
// others or the publisher.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, evt); err != nil && b.recorder != nil {
			b.recorder.RecordError("events", "", telemetry.CauseInternal,
				telemetry.Attribute{Key: telemetry.AttrMessage, Value: err.Error()},
			)
		}
	}
}

// HandlerCount reports how many handlers are currently subscribed.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
