package clock_test

import (
	"testing"
	"time"

	"github.com/deltachain/core/chain/clock"
)

func Test_TestClockIsPinned(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewTest(at)

	if !c.Now().Equal(at) {
		t.Fatalf("Should report the pinned instant: got %s, want %s", c.Now(), at)
	}
	if c.NowUnix() != at.Unix() {
		t.Fatalf("Should report the pinned instant as unix seconds: got %d, want %d", c.NowUnix(), at.Unix())
	}

	// A pinned test clock never advances on its own.
	time.Sleep(10 * time.Millisecond)
	if !c.Now().Equal(at) {
		t.Fatalf("Should not advance without an explicit override")
	}
}

func Test_NewTracksWallClock(t *testing.T) {
	c := clock.New()
	before := time.Now().Unix()
	got := c.NowUnix()
	after := time.Now().Unix()

	if got < before || got > after {
		t.Fatalf("Should report a time close to the system clock: got %d, want between %d and %d", got, before, after)
	}
}
