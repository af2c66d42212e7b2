// Package icmp implements the ICMP Echo responder of spec.md §4.5: only
// Echo Request is handled, by rewriting it in place into an Echo Reply.
package icmp

import (
	"encoding/binary"
	"errors"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/metrics"
)

// Type is an ICMP message type.
type Type uint8

const (
	TypeEchoReply Type = 0 // echo reply
	TypeEcho      Type = 8 // echo request
)

var errShort = errors.New("icmp: frame shorter than 8 bytes")

// Frame is an accessor over a raw ICMP message.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an ICMP Frame. buf must be at least 8 bytes (the
// fixed header for Echo Request/Reply messages).
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < 8 {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

func (f Frame) Type() Type { return Type(f.buf[0]) }

func (f Frame) SetType(t Type) { f.buf[0] = uint8(t) }

func (f Frame) Code() uint8 { return f.buf[1] }

func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

func (f Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

func (f Frame) Identifier() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

func (f Frame) SequenceNumber() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

func (f Frame) Data() []byte { return f.buf[8:] }

func (f Frame) RawData() []byte { return f.buf }

// calculateCRC computes the ICMP checksum over the whole message, treating
// the stored checksum field as zero.
func (f Frame) calculateCRC() uint16 {
	var c httpofo.CRC791
	c.AddUint16(uint16(f.buf[0])<<8 | uint16(f.buf[1]))
	c.Write(f.buf[4:])
	return c.Sum16()
}

// HandleEcho validates buf as an ICMP message and, if it is a correctly
// checksummed Echo Request, rewrites it in place into an Echo Reply with a
// freshly computed checksum, per spec.md §4.5. Any other ICMP type, or a
// checksum mismatch, is dropped (ok=false), matching the classification in
// spec.md §7 ("malformed input"/not handled types).
func HandleEcho(buf []byte) (reply []byte, ok bool) {
	f, err := NewFrame(buf)
	if err != nil {
		return nil, false
	}
	if f.Type() != TypeEcho {
		return nil, false
	}
	if f.CRC() != f.calculateCRC() {
		return nil, false
	}
	f.SetType(TypeEchoReply)
	f.SetCRC(0)
	f.SetCRC(f.calculateCRC())
	metrics.EchoRequests.Inc()
	return f.RawData(), true
}
