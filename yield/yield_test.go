package yield

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluxsched/scheduler/abortsignal"
	"github.com/fluxsched/scheduler/hostcallback"
	"github.com/fluxsched/scheduler/priority"
	"github.com/fluxsched/scheduler/scheduler"
	"github.com/fluxsched/scheduler/tasksignal"
)

func TestYieldDefaultBoostsToUserBlocking(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewPolyfillContinuator(s)

	done := make(chan struct{})
	go func() {
		_ = c.Yield(context.Background(), Options{})
		close(done)
	}()

	if host.PendingImmediate() == 0 {
		// the continuation is posted asynchronously from Yield's caller
		// goroutine; give it a moment to land.
		time.Sleep(time.Millisecond)
	}
	if host.PendingImmediate() != 1 {
		t.Fatalf("PendingImmediate() = %d, want 1 (user-blocking boost => immediate mode)", host.PendingImmediate())
	}
	host.RunImmediate()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Yield did not return after its continuation ran")
	}
}

func TestYieldBackgroundStaysBackground(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewPolyfillContinuator(s)

	done := make(chan struct{})
	go func() {
		_ = c.Yield(context.Background(), Options{Priority: priority.Background})
		close(done)
	}()
	time.Sleep(time.Millisecond)

	if host.PendingIdle() != 1 {
		t.Fatalf("PendingIdle() = %d, want 1", host.PendingIdle())
	}
	host.RunIdle()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Yield did not return")
	}
}

func TestYieldPropagatesAbort(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewPolyfillContinuator(s)

	abortCtrl := abortsignal.New()
	reason := errors.New("caller gave up")

	errCh := make(chan error, 1)
	go func() { errCh <- c.Yield(context.Background(), Options{Signal: abortCtrl.Signal()}) }()
	time.Sleep(time.Millisecond)

	abortCtrl.Abort(reason)

	select {
	case err := <-errCh:
		if !errors.Is(err, reason) {
			t.Errorf("err = %v, want %v", err, reason)
		}
	case <-time.After(time.Second):
		t.Fatal("Yield did not return after abort")
	}
}

func TestYieldAlreadyAbortedSignalFailsImmediately(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewPolyfillContinuator(s)

	abortCtrl := abortsignal.New()
	reason := errors.New("pre-aborted")
	abortCtrl.Abort(reason)

	err := c.Yield(context.Background(), Options{Signal: abortCtrl.Signal()})
	if !errors.Is(err, reason) {
		t.Errorf("err = %v, want %v", err, reason)
	}
}

func TestYieldTaskSignalPriorityChangeRemapsContinuation(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewPolyfillContinuator(s)

	ctrl, err := tasksignal.New(tasksignal.Options{Priority: priority.UserVisible})
	if err != nil {
		t.Fatal(err)
	}

	order := make(chan string, 2)
	go func() {
		_ = c.Yield(context.Background(), Options{Signal: ctrl.Signal()})
		order <- "continuation"
	}()
	time.Sleep(time.Millisecond)

	if host.PendingImmediate() != 1 {
		t.Fatalf("PendingImmediate() = %d, want 1 (default maps to user-blocking)", host.PendingImmediate())
	}

	// Demote the caller's signal; the continuation remaps to background
	// and an ordinary user-visible task posted afterwards must now run
	// ahead of it. The already-pending immediate wake is kept: a
	// downgrade never cancels an outstanding wake.
	if err := ctrl.SetPriority(priority.Background); err != nil {
		t.Fatal(err)
	}
	if host.PendingImmediate() != 1 {
		t.Fatalf("PendingImmediate() = %d, want 1 (downgrade keeps the pending wake)", host.PendingImmediate())
	}

	s.PostTask(func() (any, error) { order <- "user-visible"; return nil, nil },
		scheduler.Options{Priority: priority.UserVisible})

	for host.RunImmediate() || host.RunIdle() {
	}

	for _, want := range []string{"user-visible", "continuation"} {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("ran %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestNativeContinuatorIgnoresSignalAndPriority(t *testing.T) {
	host := hostcallback.NewFakeHost()
	s := scheduler.New(scheduler.Config{Host: host})
	c := NewNativeContinuator(func(opts scheduler.Options) *scheduler.Future {
		return s.PostTask(func() (any, error) { return nil, nil }, opts)
	})

	abortCtrl := abortsignal.New()
	abortCtrl.Abort(errors.New("would abort in polyfill mode"))

	done := make(chan struct{})
	go func() {
		_ = c.Yield(context.Background(), Options{Priority: priority.Background, Signal: abortCtrl.Signal()})
		close(done)
	}()
	time.Sleep(time.Millisecond)

	if host.PendingImmediate() != 1 {
		t.Fatalf("PendingImmediate() = %d, want 1 (native mode always posts at user-blocking)", host.PendingImmediate())
	}
	host.RunImmediate()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Yield did not return")
	}
}
