// Package hostcallback provides a uniform cancel/run wrapper over three
// event-loop primitives: an idle-time callback, an immediate tick, and a
// delayed timer. The primitives themselves sit behind the small Host
// capability interface so that tests can supply a deterministic fake
// while production code runs on the OS-backed implementation.
package hostcallback

import (
	"fmt"
	"time"

	"github.com/fluxsched/scheduler/priority"
)

// Mode identifies which of the three host primitives backs a Callback.
type Mode int

const (
	ModeTimer Mode = iota
	ModeImmediate
	ModeIdle
)

func (m Mode) String() string {
	switch m {
	case ModeTimer:
		return "timer"
	case ModeImmediate:
		return "immediate"
	case ModeIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// CancelFunc releases a host handle. It is idempotent.
type CancelFunc func()

// Host is the capability interface a concrete event loop exposes for the
// two primitives every implementation must support.
type Host interface {
	ScheduleImmediate(fn func()) CancelFunc
	ScheduleTimer(d time.Duration, fn func()) CancelFunc
}

// IdleHost is implemented by a Host that also exposes an idle-time
// primitive. New falls back to ScheduleImmediate for background-priority,
// zero-delay callbacks when host does not implement this interface.
type IdleHost interface {
	Host
	ScheduleIdle(fn func()) CancelFunc
}

// Callback wraps a single pending scheduling of fn on the host, in
// whichever of the three modes New selected.
type Callback struct {
	mode   Mode
	cancel CancelFunc
}

// New schedules fn on host according to priority p and delay d, choosing
// a mode as follows:
//
//  1. idle-time, when p is priority.Background, d <= 0, and host exposes
//     ScheduleIdle;
//  2. immediate tick, when d <= 0 (this is also the background fallback
//     when no idle primitive exists);
//  3. timer, always available, and the only mode used when d > 0.
//
// p is ignored when d > 0 (timer is the only valid mode for a positive
// delay); in that case p need not be a valid priority. When d <= 0, p
// must be a valid priority or New panics: a bad priority on a zero-delay
// callback is a programmer error, not a recoverable condition.
func New(host Host, p priority.Priority, d time.Duration, fn func()) *Callback {
	if d > 0 {
		return &Callback{mode: ModeTimer, cancel: host.ScheduleTimer(d, fn)}
	}

	if !priority.Valid(p) {
		panic(fmt.Errorf("hostcallback: invalid priority %v for zero-delay callback", p))
	}

	if p == priority.Background {
		if idle, ok := host.(IdleHost); ok {
			return &Callback{mode: ModeIdle, cancel: idle.ScheduleIdle(fn)}
		}
	}
	return &Callback{mode: ModeImmediate, cancel: host.ScheduleImmediate(fn)}
}

// Cancel prevents fn from running if it has not already fired. It is
// idempotent.
func (c *Callback) Cancel() {
	c.cancel()
}

// Mode reports which host primitive backs this callback.
func (c *Callback) Mode() Mode {
	return c.mode
}

// IsIdle reports whether this callback is scheduled in idle-time mode.
func (c *Callback) IsIdle() bool {
	return c.mode == ModeIdle
}

// IsImmediate reports whether this callback is scheduled as an immediate
// tick.
func (c *Callback) IsImmediate() bool {
	return c.mode == ModeImmediate
}
