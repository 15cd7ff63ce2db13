package budget

import (
	"context"
	"runtime"
	"time"

	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/ratelimit"
	"github.com/cartographer/cartographer/internal/telemetry"
)

// Controller bundles the error budget and memory backpressure checks
// the scheduler must consult before every lease (spec.md §4.8). It is
// the single object the scheduler holds for "can I still admit work".
type Controller struct {
	Errors *ErrorBudget
	Memory *MemoryController
	rec    *telemetry.Recorder
}

// NewController wires an error budget and memory controller from cfg,
// resizing limiter's global gate as memory pressure rises and falls.
func NewController(cfg config.Config, limiter *ratelimit.Limiter, rec *telemetry.Recorder) *Controller {
	return &Controller{
		Errors: FromConfig(cfg),
		Memory: NewMemoryController(limiter, cfg.MemoryHighWaterMarkBytes(), cfg.MemoryLowWaterMarkBytes()),
		rec:    rec,
	}
}

// ShouldAdmit reports whether the scheduler may still lease new work.
// Only the error budget gates admission outright; memory pressure
// narrows concurrency instead of stopping it; spec.md §4.8's hard stop
// is the error budget tripping, §5's drain is triggered by the caller
// observing this.
func (c *Controller) ShouldAdmit() bool {
	return !c.Errors.Tripped()
}

// Poll reads current process memory and applies the watermark halving
// or restoration, logging a transition when one occurs. Intended to be
// called on the same ticker cadence as checkpoint snapshots, mirroring
// the teacher pack's ticker-driven monitor loop (erndmrc-spider2's
// perf.MemoryManager.monitorLoop) trimmed to the two-state transition
// spec.md §4.8 asks for.
func (c *Controller) Poll() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	if c.Memory.Check(stats.Alloc) && c.rec != nil {
		state := "halved"
		if !c.Memory.Halved() {
			state = "restored"
		}
		c.rec.RecordError("budget", "", telemetry.CauseInternal,
			telemetry.Attribute{Key: telemetry.AttrMessage, Value: "global concurrency " + state + " by memory watermark"},
		)
	}
}

// Run polls memory pressure every interval until ctx is cancelled.
// Callers that prefer to drive polling from their own scheduler tick
// loop can call Poll directly instead.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll()
		}
	}
}
