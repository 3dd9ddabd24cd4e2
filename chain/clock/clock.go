// Package clock provides the engine's injectable now() capability
// (spec.md §9: "Process-wide clock ... an injected clock with init
// (optional override timestamp) and teardown"). It is a thin wrapper
// around lnd/clock so production code reads the system clock and tests
// can pin it to a fixed instant.
package clock

import (
	"time"

	lndclock "github.com/lightningnetwork/lnd/clock"
)

// Clock is the capability the engine depends on everywhere it needs
// "now" instead of calling time.Now() directly.
type Clock struct {
	impl lndclock.Clock
}

// New constructs a production clock backed by the system clock.
func New() *Clock {
	return &Clock{impl: lndclock.NewDefaultClock()}
}

// NewTest constructs a clock pinned at the given instant, for use in
// tests that need to drive time deterministically. Advance moves it
// forward explicitly; it never advances on its own.
func NewTest(at time.Time) *Clock {
	return &Clock{impl: lndclock.NewTestClock(at)}
}

// Now returns the current time according to this clock.
func (c *Clock) Now() time.Time {
	return c.impl.Now()
}

// NowUnix is a convenience for the engine's integer-second timestamps.
func (c *Clock) NowUnix() int64 {
	return c.impl.Now().Unix()
}

// Advance moves a test clock forward by d. It panics if called on a
// production clock, the same way lnd/clock's TestClock does for a type
// assertion failure — tests own their own Clock value and should never
// call Advance on one returned by New.
func (c *Clock) Advance(d time.Duration) {
	tc, ok := c.impl.(*lndclock.TestClock)
	if !ok {
		panic("clock: Advance called on a non-test clock")
	}
	tc.SetTime(tc.Now().Add(d))
}
