// Package yield implements a cooperative yield point inside a long
// task, returning once the dispatcher has had a chance to run other
// work.
//
// Two modes:
//
//   - NewPolyfillContinuator builds yield directly atop a
//     *scheduler.Scheduler (no native scheduler available): the
//     continuation is a self-post with a boosted effective priority, and
//     abort/priority-change on the caller's signal are relayed into an
//     inner TaskController so the continuation participates in the same
//     queue-migration machinery as any other task.
//   - NewNativeContinuator wraps an existing PostTask-shaped function
//     (a native scheduler already exists): the continuation is an empty
//     task at user-blocking priority with no signal inheritance.
package yield

import (
	"context"

	"github.com/fluxsched/scheduler/priority"
	"github.com/fluxsched/scheduler/scheduler"
	"github.com/fluxsched/scheduler/tasksignal"
)

// Options configures a single Yield call. Priority and Signal left at
// their zero values (priority.Unset and nil) mean "inherit": Go has no
// ambient async execution context to inherit a priority or signal from,
// so inherit and "not specified" are the same value here, and both
// degrade to the default mapping.
type Options struct {
	Priority priority.Priority
	Signal   scheduler.AbortSignal
}

// Continuator implements Yield in one of the two modes above.
type Continuator struct {
	post   func(scheduler.Options) *scheduler.Future
	native bool
}

// NewPolyfillContinuator returns a Continuator that implements yield
// directly through s (Mode A).
func NewPolyfillContinuator(s *scheduler.Scheduler) *Continuator {
	return &Continuator{
		post: func(opts scheduler.Options) *scheduler.Future {
			return s.PostTask(func() (any, error) { return nil, nil }, opts)
		},
	}
}

// NewNativeContinuator returns a Continuator that implements yield by
// posting through an already-existing scheduler-shaped post function
// (Mode B). Signal and priority inheritance are not supported in this
// mode: the wrapper cannot observe the caller's execution context.
func NewNativeContinuator(post func(scheduler.Options) *scheduler.Future) *Continuator {
	return &Continuator{post: post, native: true}
}

// mapPriority maps a requested yield priority to the continuation's
// effective priority: user-visible (the default) and Unset boost to
// user-blocking so continuations run ahead of ordinary user-visible
// tasks; user-blocking and background pass through unchanged.
func mapPriority(p priority.Priority) priority.Priority {
	switch p {
	case priority.UserBlocking:
		return priority.UserBlocking
	case priority.Background:
		return priority.Background
	default:
		return priority.UserBlocking
	}
}

// Yield returns once the dispatcher has processed other work, or with an
// error if ctx is cancelled first. In polyfill mode an already-aborted
// opts.Signal makes it return that signal's reason at once; in native
// mode opts is ignored.
func (c *Continuator) Yield(ctx context.Context, opts Options) error {
	if c.native {
		_, err := c.post(scheduler.Options{Priority: priority.UserBlocking}).Wait(ctx)
		return err
	}
	return c.yieldPolyfill(ctx, opts)
}

func (c *Continuator) yieldPolyfill(ctx context.Context, opts Options) error {
	if opts.Signal != nil && opts.Signal.Aborted() {
		return opts.Signal.Reason()
	}

	effective := mapPriority(opts.Priority)
	inner, err := tasksignal.New(tasksignal.Options{Priority: effective})
	if err != nil {
		return err
	}

	var detachAbort, detachPriority func()
	if opts.Signal != nil {
		detachAbort = opts.Signal.OnAbort(func() {
			inner.Abort(opts.Signal.Reason())
		})
		if ps, ok := opts.Signal.(scheduler.PrioritySignal); ok && opts.Priority == priority.Unset {
			detachPriority = ps.OnPriorityChange(func(tasksignal.PriorityChangeEvent) {
				_ = inner.SetPriority(mapPriority(ps.Priority()))
			})
		}
	}

	future := c.post(scheduler.Options{Priority: priority.Unset, Signal: inner.Signal()})
	_, waitErr := future.Wait(ctx)

	if detachAbort != nil {
		detachAbort()
	}
	if detachPriority != nil {
		detachPriority()
	}
	return waitErr
}
