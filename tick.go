package httpofo

// Tick is a coarse monotonic counter, incremented at an implementation
// defined rate (≈18Hz on the original embedded host, see spec.md §4.7).
// Arithmetic on Tick must tolerate wraparound, so subtraction is always
// performed as unsigned subtraction rather than by comparing values
// directly.
type Tick uint32

// TicksPerSecond is the default tick rate used by engine.RealClock. It is
// a variable, not a constant, only to let tests and ports retune it; the
// spec leaves the exact rate to the implementation.
var TicksPerSecond uint32 = 18

// Sub returns t-u, the number of ticks that have elapsed since u, correctly
// handling wraparound of the underlying uint32 counter.
func (t Tick) Sub(u Tick) Tick { return t - u }

// Before reports whether t occurred strictly before u, tolerating
// wraparound by treating the difference as a signed 32-bit quantity (valid
// as long as the two ticks are within 2^31 ticks of each other, which at
// 18Hz is about 3.7 years).
func (t Tick) Before(u Tick) bool { return int32(t-u) < 0 }

// SecondsToTicks converts a whole number of seconds to ticks using the
// current TicksPerSecond rate.
func SecondsToTicks(seconds uint32) Tick { return Tick(seconds * TicksPerSecond) }
