// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Timers and tickers
// registered on it fire only when Advance moves the clock past their
// deadline, in deadline order.
type FakeClock struct {
	mu             sync.Mutex
	waitersChanged *sync.Cond
	current        time.Time
	waiters        []*fakeWaiter
}

// fakeWaiter is a pending timer or ticker registration.
type fakeWaiter struct {
	deadline time.Time
	period   time.Duration // zero for one-shot timers
	ch       chan time.Time
	stopped  bool
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a one-shot waiter that fires when the clock advances
// past d from now.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		ch:       make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()
	return waiter.ch
}

// NewTicker registers a periodic waiter that fires each time the clock
// advances past a multiple of d.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		period:   d,
		ch:       make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()
	return &Ticker{
		C: waiter.ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline falls within the advanced window, in deadline order.
// Tickers re-arm and can fire multiple times in one Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		next := c.earliestDueLocked(target)
		if next == nil {
			break
		}
		c.current = next.deadline
		// Non-blocking send matching real ticker semantics: a slow
		// consumer drops ticks instead of queueing them.
		select {
		case next.ch <- c.current:
		default:
		}
		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			next.stopped = true
		}
	}
	c.current = target
	c.compactLocked()
}

// WaitForTimers blocks until at least count live waiters are
// registered. Call this before Advance when the timers are created by
// another goroutine.
func (c *FakeClock) WaitForTimers(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveWaitersLocked() < count {
		c.waitersChanged.Wait()
	}
}

func (c *FakeClock) liveWaitersLocked() int {
	live := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			live++
		}
	}
	return live
}

// earliestDueLocked returns the live waiter with the earliest deadline
// at or before target, or nil if none is due.
func (c *FakeClock) earliestDueLocked(target time.Time) *fakeWaiter {
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	for _, waiter := range c.waiters {
		if waiter.stopped {
			continue
		}
		if !waiter.deadline.After(target) {
			return waiter
		}
	}
	return nil
}

func (c *FakeClock) compactLocked() {
	live := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			live = append(live, waiter)
		}
	}
	c.waiters = live
}
