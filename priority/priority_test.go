package priority

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		p    Priority
		want bool
	}{
		{UserBlocking, true},
		{UserVisible, true},
		{Background, true},
		{Unset, false},
		{Priority(99), false},
	}
	for _, c := range cases {
		if got := Valid(c.p); got != c.want {
			t.Errorf("Valid(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestOrdering(t *testing.T) {
	if !UserBlocking.Less(UserVisible) {
		t.Error("expected user-blocking to rank before user-visible")
	}
	if !UserVisible.Less(Background) {
		t.Error("expected user-visible to rank before background")
	}
	if Background.Less(UserBlocking) {
		t.Error("background must not rank before user-blocking")
	}
}

func TestDefaultIsUserVisible(t *testing.T) {
	if Default != UserVisible {
		t.Errorf("Default = %v, want UserVisible", Default)
	}
}
