package tcpslot

import "github.com/leocurrie/httpofo"

// MaxSendPayload bounds a single Slot.Send call's payload (spec.md §3: "a
// single bounded byte buffer (up to 64 bytes)"). Callers that need to send
// more, such as httpfs.Server streaming a response body, must chunk their
// writes and pace them with Slot.CanSend.
const MaxSendPayload = 64

const retransmitCellCapacity = MaxSendPayload

// retransmitInterval is the "2 ticks elapsed" retry threshold and
// maxRetransmitAttempts the "exceeds 3" abandon threshold (spec.md
// §4.6).
const (
	retransmitInterval     httpofo.Tick = 2
	maxRetransmitAttempts               = 3
)

// retransmitCell holds the most recent unacknowledged outbound payload.
// An empty cell (len == 0) means nothing is outstanding.
type retransmitCell struct {
	buf      [retransmitCellCapacity]byte
	len      int
	seq      Seq
	sentAt   httpofo.Tick
	attempts int
}

func (c *retransmitCell) empty() bool { return c.len == 0 }

func (c *retransmitCell) clear() { *c = retransmitCell{} }

// fill records bytes (truncated to capacity) as the cell's payload, tags
// it with the sequence number that preceded the send, and resets the
// attempt counter (spec.md §4.6 "Send").
func (c *retransmitCell) fill(seq Seq, now httpofo.Tick, payload []byte) {
	n := copy(c.buf[:], payload)
	c.len = n
	c.seq = seq
	c.sentAt = now
	c.attempts = 0
}

func (c *retransmitCell) payload() []byte { return c.buf[:c.len] }

// due reports whether at least retransmitInterval ticks have elapsed
// since the cell's recorded send time.
func (c *retransmitCell) due(now httpofo.Tick) bool {
	return !c.empty() && now.Sub(c.sentAt) >= retransmitInterval
}

// exhausted reports whether the cell has used up its retry budget.
func (c *retransmitCell) exhausted() bool { return c.attempts > maxRetransmitAttempts }
