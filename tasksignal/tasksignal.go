// Package tasksignal implements the controller/signal protocol the
// scheduler coordinates with: an abort-capable signal augmented with a
// mutable priority and a prioritychange notification, plus the event
// value that notification carries.
package tasksignal

import (
	"errors"
	"sync"

	"github.com/fluxsched/scheduler/abortsignal"
	"github.com/fluxsched/scheduler/priority"
)

// ErrInvalidPriority is returned when a caller supplies a priority outside
// the closed enum.
var ErrInvalidPriority = errors.New("tasksignal: invalid priority")

// ErrPriorityChangeInProgress is returned by SetPriority when called
// re-entrantly from within a prioritychange listener. The recursive call
// is rejected rather than silently queued or allowed.
var ErrPriorityChangeInProgress = errors.New("tasksignal: setPriority called recursively from a prioritychange listener")

// PriorityChangeEvent carries the signal's priority immediately before a
// change. Constructing one with an invalid previous priority is a
// programmer error, so NewPriorityChangeEvent panics rather than returning a zero value a
// caller might silently propagate.
type PriorityChangeEvent struct {
	PreviousPriority priority.Priority
}

// NewPriorityChangeEvent validates prev and returns the event.
func NewPriorityChangeEvent(prev priority.Priority) PriorityChangeEvent {
	if !priority.Valid(prev) {
		panic(ErrInvalidPriority)
	}
	return PriorityChangeEvent{PreviousPriority: prev}
}

// Signal is an abort signal (embeds *abortsignal.Signal) augmented with a
// read-only priority and a prioritychange event topic.
type Signal struct {
	*abortsignal.Signal

	mu        sync.Mutex
	pr        priority.Priority
	listeners map[int]func(PriorityChangeEvent)
	nextID    int
}

// Priority returns the signal's current priority.
func (s *Signal) Priority() priority.Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pr
}

// OnPriorityChange registers fn to run whenever the controller changes this
// signal's priority. The returned function deregisters fn.
func (s *Signal) OnPriorityChange(fn func(PriorityChangeEvent)) (unsubscribe func()) {
	s.mu.Lock()
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

func (s *Signal) setPriority(p priority.Priority) {
	s.mu.Lock()
	s.pr = p
	s.mu.Unlock()
}

func (s *Signal) snapshotListeners() []func(PriorityChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(PriorityChangeEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

// Controller is the only way to abort or re-prioritize a Signal.
type Controller struct {
	signal *Signal
	abort  *abortsignal.Controller

	mu                 sync.Mutex
	isPriorityChanging bool
}

// Options configures a new Controller. A zero-value Priority field means
// "use priority.Default"; pass priority.Unset explicitly for the same
// effect.
type Options struct {
	Priority priority.Priority
}

// New creates a controller with its associated signal at the given
// priority (defaulting to priority.Default). An explicitly invalid
// priority is rejected.
func New(opts Options) (*Controller, error) {
	p := opts.Priority
	if p == priority.Unset {
		p = priority.Default
	} else if !priority.Valid(p) {
		return nil, ErrInvalidPriority
	}

	abortController := abortsignal.New()
	sig := &Signal{
		Signal:    abortController.Signal(),
		pr:        p,
		listeners: make(map[int]func(PriorityChangeEvent)),
	}
	return &Controller{signal: sig, abort: abortController}, nil
}

// Signal returns the controller's associated TaskSignal.
func (c *Controller) Signal() *Signal {
	return c.signal
}

// Abort delegates to the embedded abort base; reason propagates into any
// future awaiting a task submitted with this signal.
func (c *Controller) Abort(reason error) {
	c.abort.Abort(reason)
}

// SetPriority changes the signal's priority and dispatches a
// prioritychange event carrying the previous priority. A no-op call (same
// priority) emits no event. Calling SetPriority re-entrantly from within a
// prioritychange listener fails with ErrPriorityChangeInProgress.
func (c *Controller) SetPriority(p priority.Priority) error {
	if !priority.Valid(p) {
		return ErrInvalidPriority
	}

	c.mu.Lock()
	if c.isPriorityChanging {
		c.mu.Unlock()
		return ErrPriorityChangeInProgress
	}

	previous := c.signal.Priority()
	if previous == p {
		c.mu.Unlock()
		return nil
	}

	c.isPriorityChanging = true
	c.mu.Unlock()

	c.signal.setPriority(p)
	event := NewPriorityChangeEvent(previous)
	for _, fn := range c.signal.snapshotListeners() {
		fn(event)
	}

	c.mu.Lock()
	c.isPriorityChanging = false
	c.mu.Unlock()
	return nil
}
