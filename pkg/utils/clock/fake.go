package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Clock that only moves when Advance is called. Timer
// callbacks run synchronously inside Advance in deadline order, so
// callbacks must not call Advance themselves.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	done     bool
}

// NewFake returns a Fake clock set to start
func NewFake(start time.Time) *Fake {
	c := &Fake{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), fn: f}
	if d <= 0 {
		t.done = true
		c.mu.Unlock()
		f()
		return t
	}
	c.timers = append(c.timers, t)
	c.changed.Broadcast()
	c.mu.Unlock()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.changed.Broadcast()
	return true
}

// Advance moves the clock forward and fires every timer whose deadline
// has been reached, including timers scheduled by the fired callbacks.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		expired := c.collect(target)
		if len(expired) == 0 {
			return
		}
		for _, t := range expired {
			t.fn()
		}
	}
}

func (c *Fake) collect(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, pending []*fakeTimer
	for _, t := range c.timers {
		switch {
		case t.done:
		case !t.deadline.After(target):
			t.done = true
			expired = append(expired, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	return expired
}

// Pending returns the number of timers that have not fired or been stopped
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *Fake) pendingLocked() int {
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// WaitForTimers blocks until at least n timers are pending. Goroutines
// that schedule timers race with the test advancing the clock; this
// closes that window.
func (c *Fake) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}
