// Package ratelimit implements C3: a global in-flight concurrency cap
// nested with a per-host {minimum inter-request delay D, maximum
// concurrent requests K} policy (spec.md §4.3).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cartographer/cartographer/internal/config"
	"golang.org/x/time/rate"
)

// hostGate enforces one host's {K, D} policy: sem bounds concurrent
// in-flight requests to K, limiter bounds request spacing to D.
type hostGate struct {
	sem     chan struct{}
	mu      sync.Mutex
	limiter *rate.Limiter
}

func newHostGate(capK int, delay time.Duration) *hostGate {
	if capK < 1 {
		capK = 1
	}
	return &hostGate{
		sem:     make(chan struct{}, capK),
		limiter: rate.NewLimiter(delayToLimit(delay), 1),
	}
}

func delayToLimit(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

// updateDelay widens (or tightens) the host's minimum inter-request
// spacing, used when a robots Crawl-delay floor exceeds the configured
// default (spec.md §4.1/§4.3).
func (g *hostGate) updateDelay(delay time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiter.SetLimit(delayToLimit(delay))
}

func (g *hostGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		<-g.sem
		return err
	}
	return nil
}

func (g *hostGate) release() {
	<-g.sem
}

// GlobalGate is a resizable counting semaphore bounding the crawl's
// total in-flight fetches (the N of spec.md §4.3). It is resizable so
// C8's memory backpressure can halve/restore capacity at runtime.
type GlobalGate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	inFlight int
}

// NewGlobalGate builds a gate with the given initial capacity.
func NewGlobalGate(n int) *GlobalGate {
	g := &GlobalGate{capacity: n}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Acquire blocks until a global slot is free or ctx is done.
func (g *GlobalGate) Acquire(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		case <-stop:
		}
	}()

	g.mu.Lock()
	defer g.mu.Unlock()
	for g.inFlight >= g.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.cond.Wait()
	}
	g.inFlight++
	return nil
}

// Release frees one global slot.
func (g *GlobalGate) Release() {
	g.mu.Lock()
	g.inFlight--
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Resize changes the gate's capacity; a shrink takes effect as
// in-flight requests release, never preempting ones already running.
func (g *GlobalGate) Resize(n int) {
	if n < 1 {
		n = 1
	}
	g.mu.Lock()
	g.capacity = n
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Capacity returns the gate's current capacity.
func (g *GlobalGate) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity
}

// Limiter composes the global gate with per-host gates, implementing
// spec.md §4.3's nested admission rule: an acquire succeeds only once
// both the global cap and the host's {K, D} policy admit it.
type Limiter struct {
	global *GlobalGate

	mu         sync.Mutex
	hosts      map[string]*hostGate
	perHostCap int
	baseDelay  time.Duration
}

// New builds a Limiter from the resolved crawl configuration.
func New(cfg config.Config) *Limiter {
	return &Limiter{
		global:     NewGlobalGate(cfg.GlobalConcurrency()),
		hosts:      make(map[string]*hostGate),
		perHostCap: cfg.PerHostConcurrency(),
		baseDelay:  cfg.BaseDelay(),
	}
}

func (l *Limiter) gateFor(host string) *hostGate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.hosts[host]
	if !ok {
		g = newHostGate(l.perHostCap, l.baseDelay)
		l.hosts[host] = g
	}
	return g
}

// Acquire blocks until host may be fetched under both the global cap
// and its per-host policy. delayFloor is the effective minimum delay
// for this host (normally robots.CrawlDelayFloor applied to the
// configured base delay); a zero value falls back to the base delay.
func (l *Limiter) Acquire(ctx context.Context, host string, delayFloor time.Duration) error {
	if err := l.global.Acquire(ctx); err != nil {
		return err
	}

	gate := l.gateFor(host)
	if delayFloor <= 0 {
		delayFloor = l.baseDelay
	}
	gate.updateDelay(delayFloor)

	if err := gate.acquire(ctx); err != nil {
		l.global.Release()
		return err
	}
	return nil
}

// Release frees both the per-host and global slots acquired for host.
func (l *Limiter) Release(host string) {
	l.gateFor(host).release()
	l.global.Release()
}

// ResizeGlobal implements the memory-backpressure halving/restoring
// behavior of spec.md §4.8.
func (l *Limiter) ResizeGlobal(n int) {
	l.global.Resize(n)
}

// GlobalCapacity reports the gate's current capacity.
func (l *Limiter) GlobalCapacity() int {
	return l.global.Capacity()
}
