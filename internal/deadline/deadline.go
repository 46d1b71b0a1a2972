// Package deadline provides the self-scheduling timers the benchmark roles use for
// pacing and peer-inactivity detection.
//
// A Deadline has a single purpose (for example "next tick" or "peer inactive"). Arming
// it again supersedes the previous arm: the old timer is stopped and, should it have
// fired already, its firing is recognised as stale by Fired and must be dropped. Firings
// are delivered on C so a role can select on them next to its inbox and process timer
// events in the same loop as messages.
package deadline

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Firing is a timer event produced by a Deadline.
type Firing struct {
	gen uint64
}

// Deadline is a cancellable, superseding one-shot timer.
type Deadline struct {
	name string
	clk  clock.Clock

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	armed bool
	at    time.Time

	c         chan Firing
	quit      chan struct{}
	closeOnce sync.Once
}

// New creates an unarmed deadline driven by clk. A nil clk uses the wall clock.
func New(clk clock.Clock, name string) *Deadline {
	if clk == nil {
		clk = clock.New()
	}
	return &Deadline{
		name: name,
		clk:  clk,
		c:    make(chan Firing, 1),
		quit: make(chan struct{}),
	}
}

// Name returns the purpose the deadline was created for.
func (d *Deadline) Name() string {
	return d.name
}

// C delivers firings. Each one must be checked with Fired before acting on it.
func (d *Deadline) C() <-chan Firing {
	return d.c
}

// Arm schedules a firing after the given delay, superseding any earlier arm.
func (d *Deadline) Arm(after time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	d.armed = true
	d.at = d.clk.Now().Add(after)

	f := Firing{gen: d.gen}
	d.timer = d.clk.AfterFunc(after, func() {
		select {
		case d.c <- f:
		case <-d.quit:
		}
	})
}

// Disarm cancels the pending firing, if any.
func (d *Deadline) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.armed = false
	d.at = time.Time{}
}

// Fired reports whether f belongs to the current arm. A current firing disarms the
// deadline; a stale one leaves it untouched.
func (d *Deadline) Fired(f Firing) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.armed || f.gen != d.gen {
		return false
	}
	d.armed = false
	d.timer = nil
	d.at = time.Time{}
	return true
}

// Armed reports whether a firing is pending.
func (d *Deadline) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// At returns the instant the pending firing is due, or the zero time.
func (d *Deadline) At() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.at
}

// Close disarms the deadline and releases any timer goroutine blocked on delivery.
func (d *Deadline) Close() {
	d.Disarm()
	d.closeOnce.Do(func() { close(d.quit) })
}
