// Package sched installs a process-global Scheduler and yield
// Continuator the first time either is needed and leaves an existing
// installation untouched on any later call.
package sched

import (
	"context"
	"sync"

	"github.com/fluxsched/scheduler/scheduler"
	"github.com/fluxsched/scheduler/yield"
)

var (
	mu          sync.Mutex
	installed   bool
	defaultSche *scheduler.Scheduler
	defaultYld  *yield.Continuator
)

// Install populates the global scheduler with cfg if one is not already
// installed, and returns the (possibly pre-existing) global scheduler.
// A later Install call is a no-op: it never replaces an installation
// already in place.
func Install(cfg scheduler.Config) *scheduler.Scheduler {
	mu.Lock()
	defer mu.Unlock()
	if installed {
		return defaultSche
	}
	defaultSche = scheduler.New(cfg)
	defaultYld = yield.NewPolyfillContinuator(defaultSche)
	installed = true
	return defaultSche
}

// Default returns the global scheduler and whether one has been
// installed.
func Default() (*scheduler.Scheduler, bool) {
	mu.Lock()
	defer mu.Unlock()
	return defaultSche, installed
}

// ensureInstalled installs a scheduler.DefaultConfig()-backed global
// scheduler on first use if Install was never called.
func ensureInstalled() (*scheduler.Scheduler, *yield.Continuator) {
	mu.Lock()
	defer mu.Unlock()
	if !installed {
		defaultSche = scheduler.New(scheduler.DefaultConfig())
		defaultYld = yield.NewPolyfillContinuator(defaultSche)
		installed = true
	}
	return defaultSche, defaultYld
}

// PostTask posts callback through the global scheduler, installing one
// with the default configuration first if needed.
func PostTask(callback func() (any, error), opts scheduler.Options) *scheduler.Future {
	s, _ := ensureInstalled()
	return s.PostTask(callback, opts)
}

// Yield cooperatively yields through the global scheduler's Continuator,
// installing one with the default configuration first if needed.
func Yield(ctx context.Context, opts yield.Options) error {
	_, y := ensureInstalled()
	return y.Yield(ctx, opts)
}

// reset clears the global installation. Test-only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	installed = false
	defaultSche = nil
	defaultYld = nil
}
