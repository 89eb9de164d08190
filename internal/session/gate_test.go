package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
)

func TestGate_ShortPeriodNeverShown(t *testing.T) {
	t.Parallel()
	var shown atomic.Int32
	g := NewGate(abtime.NewRealTime(), 80*time.Millisecond, false, func() { shown.Add(1) })

	require.False(t, g.Set(true))
	time.Sleep(20 * time.Millisecond)
	require.False(t, g.Set(false))

	time.Sleep(150 * time.Millisecond)
	require.False(t, g.Visible())
	require.Zero(t, shown.Load())
}

func TestGate_LongPeriodShownThenHiddenImmediately(t *testing.T) {
	t.Parallel()
	var shown atomic.Int32
	g := NewGate(abtime.NewRealTime(), 30*time.Millisecond, false, func() { shown.Add(1) })

	require.False(t, g.Set(true))
	require.Eventually(t, g.Visible, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, shown.Load())

	// repeated raise keeps it visible without a new timer
	require.True(t, g.Set(true))

	require.False(t, g.Set(false))
	require.False(t, g.Visible())
}

func TestGate_InitialValue(t *testing.T) {
	t.Parallel()
	g := NewGate(nil, time.Hour, true, nil)
	require.True(t, g.Visible())
	require.True(t, g.Set(true))
	require.False(t, g.Set(false))
	require.False(t, g.Visible())
}

func TestGate_ZeroDelayShowsAtOnce(t *testing.T) {
	t.Parallel()
	g := NewGate(nil, 0, false, nil)
	require.True(t, g.Set(true))
	require.True(t, g.Visible())
}

func TestGate_ManualClockTrigger(t *testing.T) {
	t.Parallel()
	clock := abtime.NewManual()
	shown := make(chan struct{}, 1)
	g := NewGate(clock, DefaultFlickerDelay, false, func() { shown <- struct{}{} })

	require.False(t, g.Set(true))
	clock.Trigger(gateTimerID)

	select {
	case <-shown:
	case <-time.After(time.Second):
		t.Fatal("gate did not show after its timer fired")
	}
	require.True(t, g.Visible())
}

func TestGate_StopCancelsPendingShow(t *testing.T) {
	t.Parallel()
	g := NewGate(abtime.NewRealTime(), 30*time.Millisecond, false, nil)
	require.False(t, g.Set(true))
	g.Stop()
	time.Sleep(80 * time.Millisecond)
	require.False(t, g.Visible())
}
