// Package tcpslot implements the TCP engine of spec.md §4.6: a single,
// process-wide connection slot driven by a simplified nine-state machine,
// a one-segment retransmit cell, and a fixed-capacity SYN backlog.
package tcpslot

import "math/bits"

// Seq is a TCP sequence or acknowledgement number. Arithmetic on Seq
// tolerates 32-bit wraparound, matching spec.md §4.7's tick discipline.
type Seq uint32

// Add returns s+n, wrapping at 2^32.
func (s Seq) Add(n uint32) Seq { return s + Seq(n) }

// Before reports whether s precedes u on the sequence-number circle,
// using the signed-difference trick (RFC 1982).
func (s Seq) Before(u Seq) bool { return int32(s-u) < 0 }

// Sub returns the forward distance from u to s, i.e. s-u modulo 2^32
// (for example, Seq(5).Sub(3) is 2).
func (s Seq) Sub(u Seq) uint32 { return uint32(s - u) }

// Flags is the TCP control-bit field. Only the five bits spec.md names
// (FIN, SYN, RST, PSH, ACK) are ever set by this stack.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
)

const flagMask = FlagFIN | FlagSYN | FlagRST | FlagPSH | FlagACK

// HasAll reports whether every bit in mask is set in flags.
func (f Flags) HasAll(mask Flags) bool { return f&mask == mask }

// HasAny reports whether any bit in mask is set in flags.
func (f Flags) HasAny(mask Flags) bool { return f&mask != 0 }

// Mask clears bits this stack never interprets.
func (f Flags) Mask() Flags { return f & flagMask }

func (f Flags) String() string {
	if f == 0 {
		return "[]"
	}
	const names = "FINSYNRSTPSHACK"
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(f)))
	buf = append(buf, '[')
	first := true
	for i := 0; i < 5; i++ {
		if f&(Flags(1)<<i) == 0 {
			continue
		}
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf = append(buf, names[i*3:i*3+3]...)
	}
	return string(append(buf, ']'))
}

// State enumerates the nine states of spec.md §4.6. CLOSING and TIME_WAIT
// are reserved but unreachable: the engine short-circuits active close
// back to LISTEN on receipt of the peer's FIN, per spec.md §4.6's note
// and SPEC_FULL.md's REDESIGN FLAGS.
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// Segment is the decoded form of an inbound TCP header used by the state
// machine, independent of its wire encoding (see [Frame.Segment]).
type Segment struct {
	SrcPort, DstPort uint16
	SEQ, ACK         Seq
	Flags            Flags
	Window           uint16
	DataLen          int
}
