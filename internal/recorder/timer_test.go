package recorder

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_FiresOnceAtMax(t *testing.T) {
	timer := NewTimer(5 * time.Millisecond)
	var fired atomic.Int32

	timer.Start(3, func() { fired.Add(1) })

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 3, timer.Elapsed())
	assert.Equal(t, 0, timer.Remaining())
}

func TestTimer_TickIsMonotonicAndCallsHook(t *testing.T) {
	timer := NewTimer(time.Hour)
	var seen []int
	timer.OnTick(func(e int) { seen = append(seen, e) })

	timer.Start(3, func() {})
	gen := timer.gen

	assert.False(t, timer.tick(gen))
	assert.False(t, timer.tick(gen))
	assert.True(t, timer.tick(gen))

	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, 3, timer.Elapsed())
}

func TestTimer_StopPreventsCallback(t *testing.T) {
	timer := NewTimer(5 * time.Millisecond)
	var fired atomic.Int32

	timer.Start(2, func() { fired.Add(1) })
	timer.Stop()
	timer.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTimer_StaleTickIgnoredAfterStop(t *testing.T) {
	timer := NewTimer(time.Hour)
	var fired atomic.Int32

	timer.Start(1, func() { fired.Add(1) })
	gen := timer.gen
	timer.Stop()

	assert.True(t, timer.tick(gen))
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, timer.Elapsed())
}

func TestTimer_StartResets(t *testing.T) {
	timer := NewTimer(time.Hour)
	timer.Start(10, func() {})
	timer.tick(timer.gen)
	timer.tick(timer.gen)
	assert.Equal(t, 2, timer.Elapsed())

	timer.Stop()
	assert.Equal(t, 2, timer.Elapsed())

	timer.Start(10, func() {})
	assert.Equal(t, 0, timer.Elapsed())
	assert.Equal(t, 10, timer.Remaining())
	assert.False(t, timer.EndingSoon())
}

func TestTimer_EndingSoon(t *testing.T) {
	timer := NewTimer(time.Hour)
	timer.Start(6, func() {})
	assert.False(t, timer.EndingSoon())

	timer.tick(timer.gen)
	assert.True(t, timer.EndingSoon())
	timer.Stop()
}
