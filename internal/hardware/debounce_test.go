package hardware

import (
	"testing"
	"time"
)

func TestDebouncerSinglePressSingleEvent(t *testing.T) {
	start := time.Now()
	d := NewDebouncer(start)

	if d.Observe(true, start) {
		t.Error("Press edge must not fire before the window elapses")
	}
	if d.Observe(true, start.Add(DebounceWindow/2)) {
		t.Error("Press must not fire inside the window")
	}
	if !d.Observe(true, start.Add(DebounceWindow+time.Millisecond)) {
		t.Error("Press should fire once the window has elapsed")
	}
	if d.Observe(true, start.Add(DebounceWindow+10*time.Millisecond)) {
		t.Error("Held press must not fire again")
	}
}

func TestDebouncerBounceSuppressed(t *testing.T) {
	start := time.Now()
	d := NewDebouncer(start)

	// Bounce for just under one window: alternate levels every few
	// milliseconds, each flip restarting the window.
	now := start
	for i := 0; i < 8; i++ {
		now = now.Add(5 * time.Millisecond)
		if d.Observe(i%2 == 0, now) {
			t.Fatalf("Bounce sample %d fired an event", i)
		}
	}

	// Settle pressed; only now may a single event fire.
	now = now.Add(time.Millisecond)
	if d.Observe(true, now) {
		t.Error("Settling sample must not fire immediately")
	}
	if !d.Observe(true, now.Add(DebounceWindow+time.Millisecond)) {
		t.Error("Settled press should fire exactly once")
	}
}

func TestDebouncerReleaseIsSilent(t *testing.T) {
	start := time.Now()
	d := NewDebouncer(start)

	d.Observe(true, start)
	if !d.Observe(true, start.Add(DebounceWindow+time.Millisecond)) {
		t.Fatal("Expected press event")
	}

	releaseAt := start.Add(200 * time.Millisecond)
	if d.Observe(false, releaseAt) {
		t.Error("Release edge fired an event")
	}
	if d.Observe(false, releaseAt.Add(DebounceWindow+time.Millisecond)) {
		t.Error("Committed release fired an event")
	}
	if d.Stable() {
		t.Error("Expected stable level released")
	}
}

func TestDebouncerSecondPressFiresAgain(t *testing.T) {
	start := time.Now()
	d := NewDebouncer(start)

	d.Observe(true, start)
	if !d.Observe(true, start.Add(DebounceWindow+time.Millisecond)) {
		t.Fatal("Expected first press event")
	}

	releaseAt := start.Add(time.Second)
	d.Observe(false, releaseAt)
	d.Observe(false, releaseAt.Add(DebounceWindow+time.Millisecond))

	pressAt := releaseAt.Add(time.Second)
	d.Observe(true, pressAt)
	if !d.Observe(true, pressAt.Add(DebounceWindow+time.Millisecond)) {
		t.Error("Expected second press event after a full release")
	}
}
