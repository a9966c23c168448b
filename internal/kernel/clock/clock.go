package clock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is invoked exactly once per tick with the tick number,
// starting at 1.
type TickFunc func(tick uint64)

// Clock is the monotonic tick source driving the scheduler. In timer
// mode it fires at a fixed interval; Advance drives the same TickFunc
// synchronously for deterministic tests.
type Clock struct {
	interval time.Duration
	fn       TickFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	ticks atomic.Uint64
}

// New creates a clock that invokes fn every interval once started.
func New(interval time.Duration, fn TickFunc) *Clock {
	return &Clock{
		interval: interval,
		fn:       fn,
	}
}

// Start launches the tick loop. Calling Start on a running clock is a
// no-op.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.loop(ctx, c.done)
}

// Stop halts the tick loop and waits for the in-flight tick, if any,
// to finish.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel, done := c.cancel, c.done
	c.running = false
	c.mu.Unlock()

	cancel()
	<-done
}

// Advance fires n ticks synchronously. Intended for tests and for
// driving the kernel without a timer; do not mix with Start.
func (c *Clock) Advance(n int) {
	for i := 0; i < n; i++ {
		c.fn(c.ticks.Add(1))
	}
}

// Ticks returns the number of ticks fired so far.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

// Interval returns the configured tick duration.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

func (c *Clock) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.fn(c.ticks.Add(1))
		}
	}
}
