package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxsched/scheduler/hostcallback"
	"github.com/fluxsched/scheduler/observability"
	"github.com/fluxsched/scheduler/priority"
	"github.com/fluxsched/scheduler/streaming"
	"github.com/fluxsched/scheduler/tasksignal"
	"github.com/fluxsched/scheduler/timeline"
)

// Priority re-exports the closed enum from package priority so callers of
// package scheduler rarely need a second import.
type Priority = priority.Priority

const (
	UserBlocking = priority.UserBlocking
	UserVisible  = priority.UserVisible
	Background   = priority.Background
)

// Validation errors, surfaced as the rejection of the Future returned
// by PostTask/Yield.
var (
	ErrInvalidPriority = errors.New("scheduler: invalid priority")
	ErrInvalidSignal   = errors.New("scheduler: signal does not satisfy AbortSignal")
	ErrNegativeDelay   = errors.New("scheduler: delay must be >= 0")
)

// AbortSignal is the minimal capability PostTask requires of
// options.Signal: an aborted flag, a reason, and abort-event registration.
// *abortsignal.Signal and *tasksignal.Signal both satisfy it.
type AbortSignal interface {
	Aborted() bool
	Reason() error
	OnAbort(fn func()) (unsubscribe func())
}

// PrioritySignal is the richer capability a TaskSignal exposes. The
// dispatcher distinguishes plain abort signals from priority-aware ones
// with a single type assertion against this interface rather than a
// type hierarchy.
type PrioritySignal interface {
	AbortSignal
	Priority() priority.Priority
	OnPriorityChange(fn func(tasksignal.PriorityChangeEvent)) (unsubscribe func())
}

// MetricsRecorder decouples the dispatcher from any specific metrics
// backend; package observability implements it on top of
// github.com/prometheus/client_golang.
type MetricsRecorder interface {
	SetQueueDepth(p priority.Priority, depth int)
	RecordDispatch(p priority.Priority, outcome string)
	RecordHostWakeLatency(seconds float64)
	RecordMigration(from, to priority.Priority)
}

type noopMetrics struct{}

func (noopMetrics) SetQueueDepth(priority.Priority, int)                {}
func (noopMetrics) RecordDispatch(priority.Priority, string)            {}
func (noopMetrics) RecordHostWakeLatency(float64)                       {}
func (noopMetrics) RecordMigration(priority.Priority, priority.Priority) {}

// Config wires the Scheduler's ambient stack: the host-callback
// capability set it dispatches through, structured logging, optional
// metrics, a lifecycle trace store, and an event publisher. Every field
// has a usable zero value except Host, which has no safe default because
// it determines which OS-level primitive backs the scheduler's wake-ups.
type Config struct {
	Host      hostcallback.Host
	Logger    *log.Logger
	Metrics   MetricsRecorder
	Timeline  *timeline.Store
	Publisher streaming.Publisher
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *observability.Recorder
)

// DefaultConfig returns a Scheduler configuration wired to the real
// OS-backed host primitives, the standard logger, a fresh in-memory
// timeline, and a log-backed event publisher. Its metrics recorder is
// registered against prometheus.DefaultRegisterer once per process and
// shared by every configuration DefaultConfig returns.
func DefaultConfig() Config {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = observability.New(prometheus.DefaultRegisterer)
	})
	return Config{
		Host:      hostcallback.NewRealHost(),
		Logger:    log.Default(),
		Metrics:   defaultMetrics,
		Timeline:  timeline.NewStore(),
		Publisher: streaming.NewLogPublisher(),
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	if c.Timeline == nil {
		c.Timeline = timeline.NewStore()
	}
	if c.Publisher == nil {
		c.Publisher = streaming.NewLogPublisher()
	}
	return c
}

// Options configures a single PostTask/Yield submission. Priority is
// priority.Unset (its zero value) when the caller did not pin a
// priority, signalling the dispatcher to resolve it dynamically.
type Options struct {
	Priority priority.Priority
	Signal   AbortSignal
	Delay    time.Duration
}

// Result is the value a Future settles with.
type Result struct {
	Value any
	Err   error
}

// Future is returned by PostTask and Yield. It settles exactly once, with
// either the callback's return value or its error, or with the signal's
// abort reason.
type Future struct {
	done   chan struct{}
	result Result
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(v any, err error) {
	f.result = Result{Value: v, Err: err}
	close(f.done)
}

// Wait blocks until the future settles or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result.Value, f.result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed once the future has settled, for use
// directly in a select statement.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result blocks until settlement and returns the value and error.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.result.Value, f.result.Err
}
