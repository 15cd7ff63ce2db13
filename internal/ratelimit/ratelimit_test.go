package ratelimit_test

import (
	"context"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cartographer/cartographer/internal/config"
	"github.com/cartographer/cartographer/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, globalN, perHostK int, delay time.Duration) config.Config {
	t.Helper()
	seed, err := url.Parse("https://example.com")
	require.NoError(t, err)
	cfg, err := config.WithDefault([]url.URL{*seed}).
		WithGlobalConcurrency(globalN).
		WithPerHostConcurrency(perHostK).
		WithBaseDelay(delay).
		Build()
	require.NoError(t, err)
	return cfg
}

func TestLimiter_EnforcesPerHostConcurrencyCap(t *testing.T) {
	lim := ratelimit.New(testConfig(t, 10, 1, 0))

	require.NoError(t, lim.Acquire(context.Background(), "example.com", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctx, "example.com", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	lim.Release("example.com")
}

func TestLimiter_ReleaseFreesSlot(t *testing.T) {
	lim := ratelimit.New(testConfig(t, 10, 1, 0))

	require.NoError(t, lim.Acquire(context.Background(), "example.com", 0))
	lim.Release("example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, lim.Acquire(ctx, "example.com", 0))
}

func TestLimiter_EnforcesGlobalCap(t *testing.T) {
	lim := ratelimit.New(testConfig(t, 1, 5, 0))

	require.NoError(t, lim.Acquire(context.Background(), "a.example.com", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := lim.Acquire(ctx, "b.example.com", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_HostsAreIndependent(t *testing.T) {
	lim := ratelimit.New(testConfig(t, 10, 1, 0))

	require.NoError(t, lim.Acquire(context.Background(), "a.example.com", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, lim.Acquire(ctx, "b.example.com", 0))
}

func TestLimiter_EnforcesMinimumDelay(t *testing.T) {
	lim := ratelimit.New(testConfig(t, 10, 5, 40*time.Millisecond))

	start := time.Now()
	require.NoError(t, lim.Acquire(context.Background(), "example.com", 0))
	lim.Release("example.com")
	require.NoError(t, lim.Acquire(context.Background(), "example.com", 0))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestGlobalGate_ResizeHalvesAndRestores(t *testing.T) {
	gate := ratelimit.NewGlobalGate(4)
	assert.Equal(t, 4, gate.Capacity())

	gate.Resize(2)
	assert.Equal(t, 2, gate.Capacity())

	gate.Resize(4)
	assert.Equal(t, 4, gate.Capacity())
}

func TestGlobalGate_ConcurrentAcquireRelease(t *testing.T) {
	gate := ratelimit.NewGlobalGate(3)
	var inFlight int32
	var maxSeen int32

	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_ = gate.Acquire(context.Background())
			n := atomic.AddInt32(&inFlight, 1)
			for {
				cur := atomic.LoadInt32(&maxSeen)
				if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			gate.Release()
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}

	assert.LessOrEqual(t, int(maxSeen), 3)
}
