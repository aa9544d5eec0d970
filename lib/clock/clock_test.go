// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before Advance")
	default:
	}

	fake.Advance(5 * time.Second)

	select {
	case fired := <-ch:
		want := time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)
		if !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("timer did not fire after Advance")
	}
}

func TestFakeAfterNotDueYet(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ch := fake.After(10 * time.Second)
	fake.Advance(9 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before its deadline")
	default:
	}
}

func TestFakeTickerFiresRepeatedly(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}
}

func TestFakeTickerStop(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ticker := fake.NewTicker(time.Second)
	ticker.Stop()
	fake.Advance(5 * time.Second)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeTickerDropsTicksWhenBehind(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	// Three intervals with no consumer: capacity 1 means only one
	// tick is buffered.
	fake.Advance(3 * time.Second)

	received := 0
	for {
		select {
		case <-ticker.C:
			received++
			continue
		default:
		}
		break
	}
	if received != 1 {
		t.Errorf("received %d buffered ticks, want 1", received)
	}
}

func TestFakeNowAdvances(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	fake.Advance(90 * time.Minute)

	if got, want := fake.Now(), start.Add(90*time.Minute); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	done := make(chan struct{})
	go func() {
		fake.After(time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	<-done
}

func TestRealClockBasics(t *testing.T) {
	t.Parallel()
	real := Real()

	before := time.Now()
	now := real.Now()
	if now.Before(before.Add(-time.Minute)) {
		t.Errorf("Real().Now() far in the past: %v", now)
	}

	select {
	case <-real.After(time.Millisecond):
	case <-time.After(5 * time.Second):
		t.Fatal("Real().After never fired")
	}
}
