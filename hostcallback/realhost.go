package hostcallback

import (
	"sync"
	"sync/atomic"
	"time"
)

// immediateBroker maps a monotonically increasing handle to a pending
// function, posts the
// handle through a self-pipe (here, a buffered channel), and on receipt
// looks up and invokes the function, or skips it if it was cancelled
// first. Cancellation is O(1): delete the map entry before the dispatch
// goroutine reaches it.
type immediateBroker struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func()
	pipe    chan uint64
}

func newImmediateBroker() *immediateBroker {
	b := &immediateBroker{
		pending: make(map[uint64]func()),
		pipe:    make(chan uint64, 256),
	}
	go b.run()
	return b
}

func (b *immediateBroker) run() {
	for handle := range b.pipe {
		b.mu.Lock()
		fn, ok := b.pending[handle]
		delete(b.pending, handle)
		b.mu.Unlock()
		if ok {
			fn()
		}
	}
}

func (b *immediateBroker) schedule(fn func()) CancelFunc {
	b.mu.Lock()
	handle := b.next
	b.next++
	b.pending[handle] = fn
	b.mu.Unlock()

	b.pipe <- handle

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.pending, handle)
			b.mu.Unlock()
		})
	}
}

// idleSlice is how long ScheduleIdle defers a callback before handing it
// to the idle broker. Go has no native idle-callback primitive (no
// analogue of requestIdleCallback), so idle-time dispatch is approximated
// by deprioritizing through a short deferred tick instead of posting
// through the immediate self-pipe.
const idleSlice = 2 * time.Millisecond

// realHost is the OS-backed implementation of IdleHost: ScheduleTimer uses
// time.AfterFunc directly, ScheduleImmediate posts through the shared
// immediateBroker, and ScheduleIdle waits idleSlice on a time.AfterFunc
// timer and then posts through a second broker, so idle work starts later
// than an immediate tick scheduled in the same instant. The two brokers
// dispatch from separate goroutines.
type realHost struct {
	immediate *immediateBroker
	idle      *immediateBroker
}

// NewRealHost returns the default OS-backed Host/IdleHost implementation.
func NewRealHost() IdleHost {
	return &realHost{
		immediate: newImmediateBroker(),
		idle:      newImmediateBroker(),
	}
}

func (h *realHost) ScheduleImmediate(fn func()) CancelFunc {
	return h.immediate.schedule(fn)
}

func (h *realHost) ScheduleIdle(fn func()) CancelFunc {
	var cancelled atomic.Bool
	timer := time.AfterFunc(idleSlice, func() {
		h.idle.schedule(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			cancelled.Store(true)
			timer.Stop()
		})
	}
}

func (h *realHost) ScheduleTimer(d time.Duration, fn func()) CancelFunc {
	timer := time.AfterFunc(d, fn)
	var once sync.Once
	return func() {
		once.Do(func() { timer.Stop() })
	}
}
