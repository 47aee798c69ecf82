// Package scheduler implements a prioritized cooperative task
// dispatcher: it owns one intrusive FIFO queue per priority level,
// drives dispatch through host wake-ups posted via package
// hostcallback, and honors abort and dynamic re-prioritization from
// package tasksignal via a sequence-preserving queue merge.
//
// Only one callback ever runs at a time and dispatch only ever happens
// from inside a host wake-up; PostTask never blocks and never runs the
// callback synchronously.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"runtime"
	"sync"
	"time"
	"weak"

	"github.com/fluxsched/scheduler/hostcallback"
	"github.com/fluxsched/scheduler/priority"
	"github.com/fluxsched/scheduler/streaming"
	"github.com/fluxsched/scheduler/tasksignal"
	"github.com/fluxsched/scheduler/timeline"
)

// Scheduler owns the three priority queues and drives dispatch through
// host wake-ups. The zero value is not usable; construct one with New.
type Scheduler struct {
	mu sync.Mutex

	queues  [priority.Background + 1]queue // indexed by Priority; index 0 (Unset) unused
	nextSeq int64

	pendingHost hostWake
	pendingMode hostcallback.Mode

	// signals is a lookup from an observed TaskSignal to its last-known
	// priority, keyed by a
	// weak.Pointer so that a signal outliving its tasks does not pin
	// memory. Entries are pruned by a runtime.AddCleanup callback
	// registered the first time a signal is observed, not by any
	// explicit unsubscribe.
	signals map[weak.Pointer[tasksignal.Signal]]priority.Priority

	host      hostcallback.Host
	logger    *log.Logger
	metrics   MetricsRecorder
	timeline  *timeline.Store
	publisher streaming.Publisher
}

// New constructs a Scheduler from cfg. cfg.Host must be set; use
// DefaultConfig() for the real OS-backed primitives or pass a
// *hostcallback.FakeHost in tests.
func New(cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	if cfg.Host == nil {
		panic("scheduler: Config.Host must not be nil")
	}
	return &Scheduler{
		signals:   make(map[weak.Pointer[tasksignal.Signal]]priority.Priority),
		host:      cfg.Host,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		timeline:  cfg.Timeline,
		publisher: cfg.Publisher,
	}
}

// PostTask validates opts, resolves the task's effective priority, and
// either queues it immediately or schedules a delay timer for it,
// returning a Future that settles with the callback's result. It never
// runs callback synchronously and never blocks.
func (s *Scheduler) PostTask(callback func() (any, error), opts Options) *Future {
	future := newFuture()

	if opts.Delay < 0 {
		future.settle(nil, ErrNegativeDelay)
		return future
	}
	if isNilSignal(opts.Signal) {
		future.settle(nil, ErrInvalidSignal)
		return future
	}
	if opts.Priority != priority.Unset && !priority.Valid(opts.Priority) {
		future.settle(nil, ErrInvalidPriority)
		return future
	}
	if ps, ok := opts.Signal.(PrioritySignal); ok && !priority.Valid(ps.Priority()) {
		future.settle(nil, ErrInvalidPriority)
		return future
	}

	if opts.Signal != nil && opts.Signal.Aborted() {
		future.settle(nil, opts.Signal.Reason())
		return future
	}

	effective := s.resolveEffectivePriority(opts)

	task := &Task{
		priority: effective,
		signal:   opts.Signal,
		callback: callback,
		future:   future,
	}

	if opts.Signal != nil {
		task.unsubscribeAbort = opts.Signal.OnAbort(func() {
			s.handleAbort(task)
		})
	}

	if opts.Delay > 0 {
		s.mu.Lock()
		task.hostCallback = hostcallback.New(s.host, effective, opts.Delay, func() {
			s.onDelayExpired(task)
		})
		s.mu.Unlock()
		s.timeline.Record(timeline.TaskEvent{Stage: timeline.StageDelayed, Priority: int(effective)})
		return future
	}

	s.mu.Lock()
	s.enqueueLocked(task)
	s.scheduleHostIfNeededLocked()
	s.mu.Unlock()
	return future
}

// resolveEffectivePriority picks the task's queue placement: a pinned
// Options.Priority wins outright; otherwise a
// TaskSignal's current priority is used and the signal is registered for
// tracking on first sight; otherwise priority.Default.
func (s *Scheduler) resolveEffectivePriority(opts Options) priority.Priority {
	if opts.Priority != priority.Unset {
		return opts.Priority
	}
	if ts, ok := opts.Signal.(*tasksignal.Signal); ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		wp := weak.Make(ts)
		if _, tracked := s.signals[wp]; !tracked {
			s.trackSignalLocked(ts, wp)
		}
		return ts.Priority()
	}
	return priority.Default
}

func (s *Scheduler) trackSignalLocked(ts *tasksignal.Signal, wp weak.Pointer[tasksignal.Signal]) {
	s.signals[wp] = ts.Priority()
	ts.OnPriorityChange(func(e tasksignal.PriorityChangeEvent) {
		s.handlePriorityChange(ts, wp, e)
	})
	runtime.AddCleanup(ts, func(key weak.Pointer[tasksignal.Signal]) {
		s.mu.Lock()
		delete(s.signals, key)
		s.mu.Unlock()
	}, wp)
}

// handlePriorityChange merges the signal's tasks from their old queue
// into the new one, preserving global posting
// order, and update the recorded priority. An idempotent (no-op) change
// event is ignored.
func (s *Scheduler) handlePriorityChange(ts *tasksignal.Signal, wp weak.Pointer[tasksignal.Signal], _ tasksignal.PriorityChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, tracked := s.signals[wp]
	if !tracked {
		return
	}
	newPriority := ts.Priority()
	if old == newPriority {
		return
	}

	var tsAsSignal AbortSignal = ts
	s.queues[newPriority].merge(&s.queues[old], func(t *Task) bool {
		return t.signal == tsAsSignal
	})
	s.signals[wp] = newPriority
	s.metrics.SetQueueDepth(old, queueLen(&s.queues[old]))
	s.metrics.SetQueueDepth(newPriority, queueLen(&s.queues[newPriority]))
	s.metrics.RecordMigration(old, newPriority)
	s.timeline.Record(timeline.TaskEvent{Stage: timeline.StageMigrated, Priority: int(newPriority)})
	s.publish("priority-migrated", newPriority, map[string]string{"from": old.String(), "to": newPriority.String()})
	s.scheduleHostIfNeededLocked()
}

// onDelayExpired pushes the now-ready task onto its resolved queue and
// re-arms the host wake. Dispatch then
// chooses the globally highest-priority non-empty queue, so a delayed
// background task never cuts in front of higher-priority arrivals that
// queued up during its delay, regardless of which host wake delivers the
// next dispatch tick.
func (s *Scheduler) onDelayExpired(task *Task) {
	s.mu.Lock()
	task.hostCallback = nil
	if task.settled {
		s.mu.Unlock()
		return
	}
	s.enqueueLocked(task)
	s.scheduleHostIfNeededLocked()
	s.mu.Unlock()
}

// handleAbort settles a task whose signal fired. An aborted task still linked
// into a queue is left there and skipped when the dispatcher reaches it,
// an O(1) trade-off against an O(n) queue search.
func (s *Scheduler) handleAbort(task *Task) {
	s.mu.Lock()
	if task.settled {
		s.mu.Unlock()
		return
	}
	task.settled = true
	if task.hostCallback != nil {
		task.hostCallback.Cancel()
		task.hostCallback = nil
	}
	unsubscribe := task.unsubscribeAbort
	task.unsubscribeAbort = nil
	reason := task.signal.Reason()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	task.future.settle(nil, reason)
	s.metrics.RecordDispatch(task.priority, "aborted")
	s.timeline.Record(timeline.TaskEvent{Stage: timeline.StageAborted, Priority: int(task.priority)})
	s.publish("task-aborted", task.priority, nil)
}

// isNilSignal catches an AbortSignal interface wrapping a nil pointer,
// which would otherwise pass the != nil check and panic on first use.
func isNilSignal(sig AbortSignal) bool {
	if sig == nil {
		return false
	}
	v := reflect.ValueOf(sig)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (s *Scheduler) enqueueLocked(task *Task) {
	s.nextSeq++
	task.sequence = s.nextSeq
	s.queues[task.priority].push(task)
	s.metrics.SetQueueDepth(task.priority, queueLen(&s.queues[task.priority]))
	s.timeline.Record(timeline.TaskEvent{Stage: timeline.StageQueued, Priority: int(task.priority)})
}

func queueLen(q *queue) int {
	n := 0
	for t := q.head; t != nil; t = t.next {
		n++
	}
	return n
}

// scheduleHostIfNeededLocked arms a host wake for the highest non-empty
// queue, keeping at most one wake outstanding. A pending idle-mode wake
// is cancelled and replaced when non-background work arrives: idle
// dispatch is too slow for a newly queued user-visible or user-blocking
// task.
func (s *Scheduler) scheduleHostIfNeededLocked() {
	top, ok := s.highestNonEmptyLocked()
	if !ok {
		return
	}

	if s.pendingHost != nil {
		if s.pendingMode == hostcallback.ModeIdle && top != priority.Background {
			s.pendingHost.Cancel()
			s.pendingHost = nil
		} else {
			return
		}
	}

	issuedAt := time.Now()
	cb := hostcallback.New(s.host, top, 0, func() {
		s.dispatchTick(issuedAt)
	})
	s.pendingHost = cb
	s.pendingMode = cb.Mode()
}

func (s *Scheduler) highestNonEmptyLocked() (priority.Priority, bool) {
	for p := priority.UserBlocking; p <= priority.Background; p++ {
		if !s.queues[p].isEmpty() {
			return p, true
		}
	}
	return priority.Unset, false
}

// dispatchTick is the scheduler-entry callback for one host wake: it
// clears the pending host wake, runs exactly one non-aborted task, then
// re-arms the host wake if work remains.
func (s *Scheduler) dispatchTick(issuedAt time.Time) {
	s.mu.Lock()
	s.pendingHost = nil
	s.mu.Unlock()

	s.metrics.RecordHostWakeLatency(time.Since(issuedAt).Seconds())
	s.runNextTask()

	s.mu.Lock()
	s.scheduleHostIfNeededLocked()
	s.mu.Unlock()
}

// runNextTask pops the highest non-empty queue's head repeatedly,
// discarding any task already settled by abort, until it runs exactly one
// live task or the dispatcher runs dry.
func (s *Scheduler) runNextTask() {
	for {
		s.mu.Lock()
		p, task := s.popHighestLocked()
		if task == nil {
			s.mu.Unlock()
			return
		}
		if task.settled {
			s.mu.Unlock()
			s.metrics.RecordDispatch(p, "skipped-aborted")
			continue
		}
		task.settled = true
		unsubscribe := task.unsubscribeAbort
		callback := task.callback
		future := task.future
		s.mu.Unlock()

		s.timeline.Record(timeline.TaskEvent{Stage: timeline.StageRunning, Priority: int(p)})
		value, err := s.runGuarded(callback)
		if unsubscribe != nil {
			unsubscribe()
		}
		future.settle(value, err)

		outcome := "resolved"
		stage := timeline.StageSettled
		if err != nil {
			outcome = "rejected"
			stage = timeline.StageFailed
		}
		s.metrics.RecordDispatch(p, outcome)
		s.timeline.Record(timeline.TaskEvent{Stage: stage, Priority: int(p)})
		s.publish("task-"+outcome, p, nil)
		return
	}
}

func (s *Scheduler) popHighestLocked() (priority.Priority, *Task) {
	for p := priority.UserBlocking; p <= priority.Background; p++ {
		if !s.queues[p].isEmpty() {
			t := s.queues[p].takeNextTask()
			s.metrics.SetQueueDepth(p, queueLen(&s.queues[p]))
			return p, t
		}
	}
	return priority.Unset, nil
}

// runGuarded invokes callback and recovers from any panic, converting it
// to an error so a single misbehaving task can never take the dispatcher
// down; the scheduler survives and proceeds to the next task.
func (s *Scheduler) runGuarded(callback func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: task callback panicked: %v", r)
			s.logger.Printf("scheduler: recovered panic from task callback: %v", r)
		}
	}()
	return callback()
}

func (s *Scheduler) publish(topic string, p priority.Priority, detail map[string]string) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(context.Background(), streaming.Event{
		Topic:    topic,
		Priority: p.String(),
		Detail:   detail,
	})
}
