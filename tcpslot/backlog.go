package tcpslot

import (
	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/metrics"
)

// backlogCapacity is the SYN backlog's fixed table size (spec.md §3).
const backlogCapacity = 16

// backlogExpiry is "10 seconds of ticks" (spec.md §3).
var backlogExpiry = httpofo.SecondsToTicks(10)

// backlogEntry is a pending remote connection attempt received while the
// slot was busy.
type backlogEntry struct {
	valid      bool
	remoteAddr [4]byte
	remotePort uint16
	irs        Seq
	enqueued   httpofo.Tick
}

// backlog is the fixed-capacity SYN backlog of spec.md §3/§4.6. The zero
// value is an empty backlog.
type backlog struct {
	entries [backlogCapacity]backlogEntry
}

// push enqueues a pending SYN. If the table is full the entry is
// silently dropped (spec.md §7's resource-exhaustion rule: oldest data
// preferred, newest dropped): the oldest valid slot is never evicted to
// make room.
func (b *backlog) push(remoteAddr [4]byte, remotePort uint16, irs Seq, now httpofo.Tick) (dropped bool) {
	for i := range b.entries {
		if !b.entries[i].valid {
			b.entries[i] = backlogEntry{
				valid:      true,
				remoteAddr: remoteAddr,
				remotePort: remotePort,
				irs:        irs,
				enqueued:   now,
			}
			return false
		}
	}
	metrics.BacklogDrops.Inc()
	return true
}

// popValid scans for the first non-expired entry, removing it from the
// table (spec.md §4.6 "Backlog drain": "Expire entries older than 10
// seconds; otherwise pop the first valid entry"). Expired entries
// encountered along the way are dropped in place.
func (b *backlog) popValid(now httpofo.Tick) (backlogEntry, bool) {
	for i := range b.entries {
		e := b.entries[i]
		if !e.valid {
			continue
		}
		if now.Sub(e.enqueued) >= backlogExpiry {
			b.entries[i].valid = false
			metrics.BacklogExpired.Inc()
			continue
		}
		b.entries[i].valid = false
		return e, true
	}
	return backlogEntry{}, false
}
