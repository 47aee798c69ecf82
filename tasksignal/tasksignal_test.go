package tasksignal

import (
	"testing"

	"github.com/fluxsched/scheduler/priority"
)

func TestNewDefaultsToUserVisible(t *testing.T) {
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := c.Signal().Priority(); got != priority.UserVisible {
		t.Errorf("default priority = %v, want UserVisible", got)
	}
}

func TestNewRejectsInvalidPriority(t *testing.T) {
	_, err := New(Options{Priority: priority.Priority(42)})
	if err != ErrInvalidPriority {
		t.Errorf("err = %v, want ErrInvalidPriority", err)
	}
}

func TestSetPriorityEmitsEvent(t *testing.T) {
	c, _ := New(Options{Priority: priority.Background})

	var got PriorityChangeEvent
	calls := 0
	c.Signal().OnPriorityChange(func(e PriorityChangeEvent) {
		calls++
		got = e
	})

	if err := c.SetPriority(priority.UserBlocking); err != nil {
		t.Fatalf("SetPriority() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 event, got %d", calls)
	}
	if got.PreviousPriority != priority.Background {
		t.Errorf("PreviousPriority = %v, want Background", got.PreviousPriority)
	}
	if c.Signal().Priority() != priority.UserBlocking {
		t.Errorf("Priority() = %v, want UserBlocking", c.Signal().Priority())
	}
}

func TestSetPriorityNoOpEmitsNoEvent(t *testing.T) {
	c, _ := New(Options{Priority: priority.UserVisible})
	calls := 0
	c.Signal().OnPriorityChange(func(PriorityChangeEvent) { calls++ })

	if err := c.SetPriority(priority.UserVisible); err != nil {
		t.Fatalf("SetPriority() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no event for no-op SetPriority, got %d", calls)
	}
}

func TestSetPriorityRejectsInvalid(t *testing.T) {
	c, _ := New(Options{})
	if err := c.SetPriority(priority.Priority(-7)); err != ErrInvalidPriority {
		t.Errorf("err = %v, want ErrInvalidPriority", err)
	}
}

func TestSetPriorityRecursionRejected(t *testing.T) {
	c, _ := New(Options{Priority: priority.Background})

	var innerErr error
	c.Signal().OnPriorityChange(func(PriorityChangeEvent) {
		innerErr = c.SetPriority(priority.UserVisible)
	})

	if err := c.SetPriority(priority.UserBlocking); err != nil {
		t.Fatalf("outer SetPriority() error = %v", err)
	}
	if innerErr != ErrPriorityChangeInProgress {
		t.Errorf("inner SetPriority() error = %v, want ErrPriorityChangeInProgress", innerErr)
	}
	// The re-entrant call must not have taken effect.
	if c.Signal().Priority() != priority.UserBlocking {
		t.Errorf("Priority() = %v, want UserBlocking (recursive call must be rejected)", c.Signal().Priority())
	}
}

func TestAbortDelegatesToBase(t *testing.T) {
	c, _ := New(Options{})
	if c.Signal().Aborted() {
		t.Fatal("signal must start unaborted")
	}
	c.Abort(nil)
	if !c.Signal().Aborted() {
		t.Fatal("expected signal to be aborted")
	}
}
