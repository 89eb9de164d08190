package session

import (
	"sync"
	"time"

	"github.com/thejerf/abtime"
)

// DefaultFlickerDelay is how long a flag must stay raised before it is shown.
const DefaultFlickerDelay = 220 * time.Millisecond

const (
	gateTimerID = iota + 1
	waitTimerID
)

// Gate presents a boolean with delay-to-show and immediate-to-hide semantics,
// so that short-lived "true" periods are never seen.
type Gate struct {
	clock  abtime.AbstractTime
	delay  time.Duration
	onShow func()

	mu      sync.Mutex
	want    bool
	visible bool
	timer   abtime.Timer
	seq     uint64
}

// NewGate returns a gate whose visible value starts at initial. onShow is
// called, without locks held, whenever a delayed show takes effect.
func NewGate(clock abtime.AbstractTime, delay time.Duration, initial bool, onShow func()) *Gate {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Gate{clock: clock, delay: delay, onShow: onShow, want: initial, visible: initial}
}

// Set records the underlying flag and returns the value observers should see now.
func (g *Gate) Set(v bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.want = v
	if !v {
		g.stopLocked()
		g.visible = false
		return false
	}
	if g.visible || g.timer != nil {
		return g.visible
	}
	if g.delay <= 0 {
		g.visible = true
		return true
	}
	g.seq++
	seq := g.seq
	g.timer = g.clock.AfterFunc(g.delay, func() { g.fire(seq) }, gateTimerID)
	return false
}

// Visible returns the presented value.
func (g *Gate) Visible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visible
}

// Stop cancels a pending show.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
}

func (g *Gate) fire(seq uint64) {
	g.mu.Lock()
	if seq != g.seq || !g.want || g.timer == nil {
		g.mu.Unlock()
		return
	}
	g.timer = nil
	g.visible = true
	g.mu.Unlock()

	if g.onShow != nil {
		g.onShow()
	}
}

func (g *Gate) stopLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.seq++
}
