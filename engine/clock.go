package engine

import (
	"time"

	"github.com/leocurrie/httpofo"
)

// Clock supplies the monotonic tick counter of spec.md §4.7. Implementations
// must tolerate unsigned wraparound, matching [httpofo.Tick]'s contract.
type Clock interface {
	Now() httpofo.Tick
}

// RealClock derives ticks from the monotonic wall clock at
// [httpofo.TicksPerSecond], approximating the original host's coarse
// hardware timer with whatever resolution the OS scheduler grants.
type RealClock struct {
	start time.Time
}

// NewRealClock returns a RealClock whose epoch is the moment of the call.
func NewRealClock() *RealClock { return &RealClock{start: time.Now()} }

func (c *RealClock) Now() httpofo.Tick {
	elapsed := time.Since(c.start)
	return httpofo.Tick(elapsed.Seconds() * float64(httpofo.TicksPerSecond))
}

// FakeClock is a settable clock for deterministic tests, in the spirit of
// the teacher's in-memory fakes for hardware-adjacent components (c.f.
// [github.com/leocurrie/httpofo/serial.FakePort]).
type FakeClock struct {
	tick httpofo.Tick
}

func (c *FakeClock) Now() httpofo.Tick { return c.tick }

// Advance moves the clock forward by n ticks.
func (c *FakeClock) Advance(n httpofo.Tick) { c.tick += n }

// Set pins the clock to an exact tick value.
func (c *FakeClock) Set(t httpofo.Tick) { c.tick = t }
