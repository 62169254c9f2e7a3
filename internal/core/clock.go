package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// HeightInterval is the wall time one height represents.
const HeightInterval = 400 * time.Millisecond

// Clock supplies the current height. The core reads it once per command.
type Clock interface {
	CurrentHeight() uint64
}

// WallClock derives height from the time elapsed since genesis. It never
// goes backwards, even if the system clock does.
type WallClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last uint64
}

func NewWallClock(genesis time.Time) *WallClock {
	return &WallClock{genesis: genesis, interval: HeightInterval, now: time.Now}
}

func (c *WallClock) CurrentHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.genesis)
	var h uint64
	if elapsed > 0 {
		h = uint64(elapsed / c.interval)
	}
	if h < c.last {
		return c.last
	}
	c.last = h
	return h
}

// AtLeast raises the floor to height. Recovery calls it with the height of
// the last replayed event.
func (c *WallClock) AtLeast(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.last {
		c.last = height
	}
}

// ManualClock is a settable clock for tests and tools.
type ManualClock struct {
	height atomic.Uint64
}

func NewManualClock(height uint64) *ManualClock {
	c := &ManualClock{}
	c.height.Store(height)
	return c
}

func (c *ManualClock) CurrentHeight() uint64 { return c.height.Load() }

func (c *ManualClock) Set(height uint64) { c.height.Store(height) }

func (c *ManualClock) Advance(by uint64) uint64 { return c.height.Add(by) }
