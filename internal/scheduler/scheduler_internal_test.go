package scheduler

import (
	"errors"
	"testing"

	"github.com/cartographer/cartographer/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters_DueForCheckpoint_FiresEveryInterval(t *testing.T) {
	c := newCounters()

	assert.False(t, c.dueForCheckpoint(3))

	c.recordPage()
	c.recordPage()
	assert.False(t, c.dueForCheckpoint(3))

	c.recordPage()
	assert.True(t, c.dueForCheckpoint(3))
	// Immediately after firing, the marker resets: not due again until
	// another full interval of pages completes.
	assert.False(t, c.dueForCheckpoint(3))

	c.recordPage()
	c.recordPage()
	c.recordPage()
	assert.True(t, c.dueForCheckpoint(3))
}

func TestCounters_DueForCheckpoint_DisabledWhenIntervalIsZero(t *testing.T) {
	c := newCounters()
	for i := 0; i < 10; i++ {
		c.recordPage()
	}
	assert.False(t, c.dueForCheckpoint(0))
}

func TestCounters_RecordError_TalliesByKind(t *testing.T) {
	c := newCounters()
	c.recordError(failure.KindTimeout)
	c.recordError(failure.KindTimeout)
	c.recordError(failure.KindDNSFailure)

	pages, byKind := c.snapshot()
	assert.Equal(t, 0, pages)
	assert.Equal(t, 2, byKind[string(failure.KindTimeout)])
	assert.Equal(t, 1, byKind[string(failure.KindDNSFailure)])
	assert.Equal(t, 3, c.totalErrors())
}

func TestCounters_Restore_SeedsCountersAndCheckpointMarker(t *testing.T) {
	c := newCounters()
	c.restore(7, map[string]int{string(failure.KindTimeout): 2})

	pages, byKind := c.snapshot()
	assert.Equal(t, 7, pages)
	assert.Equal(t, 2, byKind[string(failure.KindTimeout)])

	// The checkpoint marker is restored alongside pagesDone, so a
	// resumed crawl doesn't immediately re-checkpoint on its first page.
	c.recordPage()
	assert.False(t, c.dueForCheckpoint(5))
}

func TestBeginDraining_FirstReasonWinsOverOrdinaryCauses(t *testing.T) {
	s := &Scheduler{state: StateRunning}

	s.beginDraining(RunCancelled, nil)
	s.beginDraining(RunBudgetExceeded, nil)

	assert.True(t, s.isDraining())
	assert.Equal(t, RunCancelled, s.drainReason)
}

func TestBeginDraining_FatalAlwaysEscalatesOverOrdinaryDrain(t *testing.T) {
	s := &Scheduler{state: StateRunning}
	s.beginDraining(RunCancelled, nil)

	boom := errors.New("disk full")
	s.beginDraining(RunFatal, boom)

	assert.Equal(t, RunFatal, s.drainReason)
	require.NotNil(t, s.fatalErr)
	assert.Equal(t, boom, s.fatalErr)
}

func TestBeginDraining_NoopOnceStopped(t *testing.T) {
	s := &Scheduler{state: StateStopped}
	s.beginDraining(RunFatal, errors.New("too late"))

	assert.Equal(t, StateStopped, s.state)
	assert.Empty(t, s.drainReason)
	assert.Nil(t, s.fatalErr)
}

func TestBeginDraining_SecondFatalKeepsFirstError(t *testing.T) {
	s := &Scheduler{state: StateRunning}
	first := errors.New("first")
	second := errors.New("second")

	s.beginDraining(RunFatal, first)
	s.beginDraining(RunFatal, second)

	assert.Equal(t, first, s.fatalErr)
}

func TestCancel_IsIdempotent(t *testing.T) {
	s := &Scheduler{cancel: make(chan struct{})}
	s.Cancel()
	assert.NotPanics(t, func() { s.Cancel() })

	select {
	case <-s.cancel:
	default:
		t.Fatal("expected cancel channel to be closed")
	}
}
