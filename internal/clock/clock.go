// Package clock drives a callback at a fixed sample rate.
package clock

import (
	"sync"
	"time"
)

// SampleClock calls a tick function once per sample period from its own
// goroutine. Safe for concurrent use.
type SampleClock struct {
	mu      sync.Mutex
	rate    uint32
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// Start arms the clock at rateHz. The first tick fires one period after
// Start and every period after that. A zero rate or nil tick is ignored.
// Starting a running clock re-arms it with the new rate and tick.
func (c *SampleClock) Start(rateHz uint32, tick func()) {
	if rateHz == 0 || tick == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	c.rate = rateHz
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true
	go run(Period(rateHz), tick, c.stop, c.done)
}

func run(period time.Duration, tick func(), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		// Stop wins over a tick that became ready at the same time.
		select {
		case <-stop:
			return
		default:
		}
		tick()
	}
}

// Stop disarms the clock and returns once the tick goroutine has exited, so
// no tick runs after Stop returns. Stopping an idle clock is a no-op. Must
// not be called from the tick function.
func (c *SampleClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *SampleClock) stopLocked() {
	if !c.running {
		return
	}
	close(c.stop)
	<-c.done
	c.running = false
}

// Running reports whether the clock is armed.
func (c *SampleClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Rate returns the rate of the last Start.
func (c *SampleClock) Rate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Period returns the tick period for rateHz, 1e9/rate nanoseconds.
func Period(rateHz uint32) time.Duration {
	if rateHz == 0 {
		return 0
	}
	return time.Duration(1_000_000_000 / uint64(rateHz))
}
