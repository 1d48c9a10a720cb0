package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Fires(t *testing.T) {
	tm := New()
	var fired atomic.Int32

	require.True(t, tm.Start(func() { fired.Add(1) }, 10*time.Millisecond))
	assert.True(t, tm.Pending())

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, tm.Pending(), "timer should be idle after firing")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "callback must run exactly once")
}

func TestTimer_ResetSuppressesCallback(t *testing.T) {
	tm := New()
	var fired atomic.Int32

	tm.Start(func() { fired.Add(1) }, 20*time.Millisecond)
	tm.Reset()
	assert.False(t, tm.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimer_StartSupersedes(t *testing.T) {
	tm := New()
	var first, second atomic.Int32

	tm.Start(func() { first.Add(1) }, 20*time.Millisecond)
	tm.Start(func() { second.Add(1) }, 40*time.Millisecond)

	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "superseded schedule must not fire")
}

func TestTimer_RestartAfterFire(t *testing.T) {
	tm := New()
	var fired atomic.Int32

	tm.Start(func() { fired.Add(1) }, 5*time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	tm.Start(func() { fired.Add(1) }, 5*time.Millisecond)
	require.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTimer_Cancel(t *testing.T) {
	tm := New()
	var fired atomic.Int32

	tm.Start(func() { fired.Add(1) }, 20*time.Millisecond)
	tm.Cancel()
	tm.Cancel() // idempotent

	assert.False(t, tm.Start(func() { fired.Add(1) }, time.Millisecond), "canceled timer must refuse new schedules")
	assert.False(t, tm.Pending())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
