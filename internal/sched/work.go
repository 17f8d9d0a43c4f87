// Package sched provides a delayable work item: a function that runs once
// after a delay, can reschedule itself, and can be cancelled synchronously.
//
// A Work never runs concurrently with itself. [Work.CancelSync] returns only
// after any in-flight run has finished, and reschedules issued while it
// waits are discarded.
package sched

import (
	"sync"
	"time"
)

// Work is a delayable, self-rescheduling work item. The zero value is not
// usable; create one with [New].
type Work struct {
	fn func()

	mu        sync.Mutex
	idle      *sync.Cond
	timer     *time.Timer
	gen       uint64
	pending   bool
	running   bool
	canceling bool
	runs      uint64
}

// New returns a Work that calls fn when it fires.
func New(fn func()) *Work {
	w := &Work{fn: fn}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Schedule arms the work to run after d, replacing any pending delay. It
// returns false when the call was discarded because a synchronous cancel is
// in progress.
func (w *Work) Schedule(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.canceling {
		return false
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.pending = true
	w.timer = time.AfterFunc(d, func() { w.fire(gen) })
	return true
}

func (w *Work) fire(gen uint64) {
	w.mu.Lock()
	for w.running && gen == w.gen {
		w.idle.Wait()
	}
	if gen != w.gen || w.canceling {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.running = true
	w.runs++
	w.mu.Unlock()

	w.fn()

	w.mu.Lock()
	w.running = false
	w.idle.Broadcast()
	w.mu.Unlock()
}

// CancelSync disarms a pending run and waits for an in-flight run to return.
// Must not be called from the work function itself.
func (w *Work) CancelSync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.canceling = true
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.pending = false
	for w.running {
		w.idle.Wait()
	}
	w.canceling = false
	w.idle.Broadcast()
}

// Pending reports whether a run is armed and has not started yet.
func (w *Work) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Runs returns how many times the work function has been entered.
func (w *Work) Runs() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}
