package budget

// MemoryController halves the global in-flight cap when resident-set
// estimate crosses the high-water mark and restores it once the
// estimate drops back below the low-water mark (spec.md §4.8), a
// considerably smaller surface than the teacher pack's PID-like
// BackpressureController/MemoryManager pair in erndmrc-spider2's
// internal/perf: spec.md asks only for a two-state halve/restore, not a
// five-level pressure gradient or GC forcing, so that extra machinery
// is not carried over (see DESIGN.md).
type MemoryController struct {
	limiter  ratelimiter
	baseline int
	high     int64
	low      int64
	halved   bool
}

// ratelimiter is the subset of internal/ratelimit.Limiter this
// controller needs, kept narrow so memory.go doesn't import the
// concrete type twice (ResizeGlobal/GlobalCapacity only).
type ratelimiter interface {
	ResizeGlobal(n int)
	GlobalCapacity() int
}

// NewMemoryController builds a controller over limiter's global gate,
// remembering its starting capacity as the "restored" target.
func NewMemoryController(limiter ratelimiter, highWaterMarkBytes, lowWaterMarkBytes int64) *MemoryController {
	return &MemoryController{
		limiter:  limiter,
		baseline: limiter.GlobalCapacity(),
		high:     highWaterMarkBytes,
		low:      lowWaterMarkBytes,
	}
}

// Check reads allocBytes (the caller's resident-set or heap-alloc
// estimate, typically runtime.MemStats.Alloc or Sys) and halves or
// restores global concurrency as the watermarks dictate. Returns true
// whenever it halves or restores, including when a cap of 1 stays at 1.
func (m *MemoryController) Check(allocBytes uint64) bool {
	switch {
	case !m.halved && int64(allocBytes) >= m.high:
		target := m.limiter.GlobalCapacity() / 2
		if target < 1 {
			target = 1
		}
		m.limiter.ResizeGlobal(target)
		m.halved = true
		return true
	case m.halved && int64(allocBytes) < m.low:
		m.limiter.ResizeGlobal(m.baseline)
		m.halved = false
		return true
	default:
		return false
	}
}

// Halved reports whether concurrency is currently reduced.
func (m *MemoryController) Halved() bool {
	return m.halved
}
