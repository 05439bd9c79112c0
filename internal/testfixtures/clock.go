package testfixtures

import (
	"sort"
	"sync"
	"time"

	"github.com/bohemiyan/ugibdd"
)

// ReferenceTime is the default starting instant of test clocks.
func ReferenceTime() time.Time {
	return time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests. Timers fire
// synchronously inside Advance once their deadline is reached.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*timer
}

type timer struct {
	clock    *Clock
	deadline time.Time
	fn       func()
	stopped  bool
	fired    bool
}

// NewClock returns a clock initialised to start, or ReferenceTime when zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules fn to run when the clock reaches now+d.
func (c *Clock) AfterFunc(d time.Duration, fn func()) ugibdd.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &timer{clock: c, deadline: c.current.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Pending returns the number of armed timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in deadline order,
// and returns the updated time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	var due []*timer
	var keep []*timer
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.deadline.After(now):
			t.fired = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, t := range due {
		t.fn()
	}
	return now
}
