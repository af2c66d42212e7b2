package tcpslot

import (
	"encoding/binary"
	"errors"

	"github.com/leocurrie/httpofo"
)

// HeaderSize is the fixed TCP header length this stack generates and
// expects: no options are produced (spec.md §3/§4.6).
const HeaderSize = 20

var (
	errShort     = errors.New("tcpslot: buffer shorter than header")
	errBadOffset = errors.New("tcpslot: header offset invalid")
)

// Frame is an accessor over a raw TCP segment buffer.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as a TCP Frame. An error is returned if buf is
// shorter than the fixed header size (spec.md §4.6's "reject segments
// shorter than 20 bytes").
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

func (f Frame) SetSourcePort(v uint16) { binary.BigEndian.PutUint16(f.buf[0:2], v) }

func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

func (f Frame) SetDestinationPort(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

func (f Frame) Seq() Seq { return Seq(binary.BigEndian.Uint32(f.buf[4:8])) }

func (f Frame) SetSeq(v Seq) { binary.BigEndian.PutUint32(f.buf[4:8], uint32(v)) }

func (f Frame) Ack() Seq { return Seq(binary.BigEndian.Uint32(f.buf[8:12])) }

func (f Frame) SetAck(v Seq) { binary.BigEndian.PutUint32(f.buf[8:12], uint32(v)) }

// OffsetAndFlags returns the data offset (in 32-bit words) and the
// control bits.
func (f Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(f.buf[12:14])
	return uint8(v >> 12), Flags(v).Mask()
}

// SetOffsetAndFlags writes offset and flags. Per spec.md §4.6, this
// stack always emits offset 5 (data offset byte 0x50).
func (f Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(f.buf[12:14], v)
}

// HeaderLength returns the header length in bytes as advertised by the
// data offset field. Performs no validation.
func (f Frame) HeaderLength() int {
	offset, _ := f.OffsetAndFlags()
	return 4 * int(offset)
}

// ValidateSize accumulates a data-offset error into v if the offset is
// smaller than the fixed header or larger than the actual buffer,
// mirroring the teacher's tcp.Frame.ValidateSize (tcp/frame.go).
func (f Frame) ValidateSize(v *httpofo.Validator) {
	offset, _ := f.OffsetAndFlags()
	if offset < 5 || int(offset)*4 > len(f.buf) {
		v.GotErr(errBadOffset)
	}
}

func (f Frame) WindowSize() uint16 { return binary.BigEndian.Uint16(f.buf[14:16]) }

func (f Frame) SetWindowSize(v uint16) { binary.BigEndian.PutUint16(f.buf[14:16], v) }

func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[16:18]) }

func (f Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[16:18], v) }

func (f Frame) UrgentPtr() uint16 { return binary.BigEndian.Uint16(f.buf[18:20]) }

func (f Frame) SetUrgentPtr(v uint16) { binary.BigEndian.PutUint16(f.buf[18:20], v) }

// Payload returns everything past the (option-free) header.
func (f Frame) Payload() []byte { return f.buf[HeaderSize:] }

// Segment decodes the frame's header fields plus the given payload
// length into a [Segment] for the state machine to act on.
func (f Frame) Segment(payloadLen int) Segment {
	_, flags := f.OffsetAndFlags()
	return Segment{
		SrcPort: f.SourcePort(),
		DstPort: f.DestinationPort(),
		SEQ:     f.Seq(),
		ACK:     f.Ack(),
		Flags:   flags,
		Window:  f.WindowSize(),
		DataLen: payloadLen,
	}
}

// WriteHeader writes ports, sequence numbers, flags, window and urgent
// pointer, always at offset 5 (spec.md §4.6 "Header emission": always 20
// bytes, no options, data offset 0x50, window = 2048).
func WriteHeader(buf []byte, srcPort, dstPort uint16, seq, ack Seq, flags Flags, window uint16) (Frame, error) {
	f, err := NewFrame(buf)
	if err != nil {
		return Frame{}, err
	}
	f.SetSourcePort(srcPort)
	f.SetDestinationPort(dstPort)
	f.SetSeq(seq)
	f.SetAck(ack)
	f.SetOffsetAndFlags(5, flags)
	f.SetWindowSize(window)
	f.SetUrgentPtr(0)
	return f, nil
}
