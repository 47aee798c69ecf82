package sched

import (
	"context"
	"testing"
	"time"

	"github.com/fluxsched/scheduler/hostcallback"
	"github.com/fluxsched/scheduler/scheduler"
	"github.com/fluxsched/scheduler/yield"
)

func TestInstallIsIdempotent(t *testing.T) {
	reset()
	defer reset()

	host1 := hostcallback.NewFakeHost()
	first := Install(scheduler.Config{Host: host1})

	host2 := hostcallback.NewFakeHost()
	second := Install(scheduler.Config{Host: host2})

	if first != second {
		t.Error("a second Install must return the already-installed scheduler, not replace it")
	}
}

func TestPostTaskLazilyInstalls(t *testing.T) {
	reset()
	defer reset()

	if _, ok := Default(); ok {
		t.Fatal("expected no global scheduler before first use")
	}

	var ran bool
	f := PostTask(func() (any, error) { ran = true; return nil, nil }, scheduler.Options{})

	if _, ok := Default(); !ok {
		t.Fatal("PostTask must lazily install a global scheduler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !ran {
		t.Error("task callback did not run")
	}
}

func TestYieldLazilyInstalls(t *testing.T) {
	reset()
	defer reset()

	done := make(chan error, 1)
	go func() { done <- Yield(context.Background(), yield.Options{}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Yield() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Yield did not return")
	}
}
