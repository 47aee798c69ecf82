// Package abortsignal implements the cancellation-signal base
// abstraction: a value exposing an aborted flag, a reason, and
// abort-event registration. The scheduler and tasksignal packages build
// on top of it; nothing here is scheduler-aware.
package abortsignal

import (
	"errors"
	"sync"
)

// ErrAborted is the default reason used when Abort is called without one.
var ErrAborted = errors.New("abortsignal: aborted")

// Signal is an abort-capable observable. The zero value is not usable;
// construct one with New.
type Signal struct {
	mu        sync.Mutex
	aborted   bool
	reason    error
	listeners map[int]func()
	nextID    int
}

// Controller is the only way to abort a Signal. Signals are never
// constructed directly by callers; they are obtained only through a
// controller.
type Controller struct {
	signal *Signal
}

// New returns a fresh controller and its associated signal.
func New() *Controller {
	return &Controller{signal: &Signal{listeners: make(map[int]func())}}
}

// Signal returns the controller's associated signal.
func (c *Controller) Signal() *Signal {
	return c.signal
}

// Abort marks the signal as aborted and fires every registered listener.
// It is idempotent: a second call (with any reason) is a silent no-op,
// which also makes it safe to call from within a listener of the same
// signal.
func (c *Controller) Abort(reason error) {
	if reason == nil {
		reason = ErrAborted
	}
	s := c.signal
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}
	s.aborted = true
	s.reason = reason
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Aborted reports whether the signal has been aborted.
func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the reason passed to Abort, or nil if not yet aborted.
func (s *Signal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// OnAbort registers fn to run when the signal aborts. If the signal is
// already aborted, fn runs synchronously before OnAbort returns. The
// returned function deregisters the listener and is safe to call more
// than once.
func (s *Signal) OnAbort(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
