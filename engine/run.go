package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/leocurrie/httpofo"
)

// idleBackoff is slept between loop iterations that did nothing, so the
// cooperative loop does not spin a host CPU core at 100% the way bare
// metal firmware would on an otherwise-idle core. Real embedded targets
// have no such concern; this is the accommodation for running the same
// loop on a general-purpose OS thread.
const idleBackoff = 2 * time.Millisecond

// Run drives the main loop of spec.md §5: SLIP poll (and, on a complete
// datagram, IP receive), retransmit check, then an optional shutdown
// probe, repeated until stop is closed or probe returns true.
func (c *Context) Run(stop <-chan struct{}, probe func() (shutdown bool)) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		progressed, err := c.PollOne()
		if err != nil && errors.Is(err, httpofo.ErrPacketDrop) {
			// Malformed/rejected input is dropped silently per spec.md §7;
			// only trace it.
			c.Trace("engine: dropped inbound datagram")
		} else if err != nil {
			c.Warn("engine: poll error", slog.String("err", err.Error()))
		}
		if tickErr := c.Tick(); tickErr != nil {
			c.Warn("engine: tick error", slog.String("err", tickErr.Error()))
		}
		if probe != nil && probe() {
			return nil
		}
		if !progressed {
			time.Sleep(idleBackoff)
		}
	}
}
