// Package clock abstracts wall-clock time for the listener.
//
// Two things in twentyfivefive wait on time: the subscription loop sleeps
// between retries, and the alert loop re-prints its status line every
// tick. Accomplishments are stamped with the current time. Production
// code uses Real; tests use Fake, which never blocks.
package clock

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the listener depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	// If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time {
	if d <= 0 {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	return time.After(d)
}

// Fake is a stepping clock: every call to After advances the fake time by
// d and fires immediately. Loops that wait on After therefore run at full
// speed in tests while still observing a consistent, advancing Now.
//
// Fake is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
}

// NewFake returns a Fake starting at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After advances the clock by d and returns an already-fired channel.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.current = f.current.Add(d)
	}
	f.waits = append(f.waits, d)
	ch := make(chan time.Time, 1)
	ch <- f.current
	return ch
}

// Advance moves the clock forward by d without recording a wait.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Waits returns the durations passed to After, in call order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}
