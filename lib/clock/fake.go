// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given instant. Time moves only
// when Advance is called; After and Sleep register sleepers that fire
// when the clock passes their deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. A test that needs a
// goroutine to reach its Sleep before time moves should call
// WaitForSleepers first; advancing races the registration otherwise.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*sleeper
	changed *sync.Cond
}

// sleeper is one blocked After or Sleep call.
type sleeper struct {
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has been
// advanced past the deadline. If d <= 0 the channel receives
// immediately without registering a sleeper.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.pending = append(c.pending, &sleeper{
		deadline: c.current.Add(d),
		ch:       ch,
	})
	c.changed.Broadcast()
	return ch
}

// Sleep blocks until the clock is advanced past the deadline. Returns
// immediately when d <= 0.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and releases every sleeper whose
// deadline falls within the new time, in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current

	var due []*sleeper
	var waiting []*sleeper
	for _, s := range c.pending {
		if !s.deadline.After(target) {
			due = append(due, s)
		} else {
			waiting = append(waiting, s)
		}
	}
	c.pending = waiting
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, s := range due {
		s.fired = true
		s.ch <- target
	}
}

// Set jumps the clock to an absolute instant. Panics if the target is
// before the current fake time: the engine assumes monotonic time and
// a backwards jump would leave sleepers stranded.
func (c *FakeClock) Set(target time.Time) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if target.Before(current) {
		panic("clock: FakeClock.Set moving backwards")
	}
	c.Advance(target.Sub(current))
}

// WaitForSleepers blocks until at least n sleepers are registered.
// Call this before Advance when the sleeping goroutine was started by
// the test, so the registration cannot race the advance.
func (c *FakeClock) WaitForSleepers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}
