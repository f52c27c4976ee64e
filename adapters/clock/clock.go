// Package clock provides Clock implementations.
//
// Times are truncated to microseconds and returned in UTC so that a value
// read back from either SQL backend compares equal to the one written.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/recordbase/ports"
)

// Precision is the resolution every stored timestamp is cut to.
const Precision = time.Microsecond

// Real reads the system clock.
type Real struct{}

// Now returns the current UTC time at storage precision.
func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

var _ ports.Clock = Real{}

// Fake is a controllable clock for tests.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFake creates a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t.UTC().Truncate(Precision)}
}

// WithStep makes every Now call advance the clock by d afterwards, so that
// successive writes get distinct, increasing timestamps.
func (f *Fake) WithStep(d time.Duration) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = d
	return f
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t.UTC().Truncate(Precision)
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var _ ports.Clock = (*Fake)(nil)
