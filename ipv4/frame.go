// Package ipv4 implements the IPv4 input/output path of spec.md §4.4: a
// [Frame] byte-accessor over a raw datagram, validation of inbound
// datagrams, and construction of outbound ones.
package ipv4

import (
	"encoding/binary"
	"errors"

	"github.com/leocurrie/httpofo"
)

// HeaderSize is the fixed IPv4 header length this stack generates and
// expects: no options are produced (spec.md §3).
const HeaderSize = 20

var errShort = errors.New("ipv4: buffer shorter than header")

// Frame is an accessor over a raw IPv4 datagram buffer. It performs no
// allocation; all methods read or write directly into buf.
type Frame struct {
	buf []byte
}

// NewFrame wraps buf as an IPv4 Frame. An error is returned if buf is
// shorter than the fixed header size.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, errShort
	}
	return Frame{buf: buf}, nil
}

// RawData returns the frame's underlying buffer.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) VersionAndIHL() (version, ihl uint8) {
	v := f.buf[0]
	return v >> 4, v & 0xf
}

func (f Frame) SetVersionAndIHL(version, ihl uint8) { f.buf[0] = version<<4 | ihl&0xf }

func (f Frame) ToS() uint8 { return f.buf[1] }

func (f Frame) SetToS(v uint8) { f.buf[1] = v }

func (f Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

func (f Frame) SetTotalLength(v uint16) { binary.BigEndian.PutUint16(f.buf[2:4], v) }

func (f Frame) ID() uint16 { return binary.BigEndian.Uint16(f.buf[4:6]) }

func (f Frame) SetID(v uint16) { binary.BigEndian.PutUint16(f.buf[4:6], v) }

// FragmentWord returns the combined flags+fragment-offset field. This
// stack never inspects it beyond leaving it zero on output, per spec.md
// §4.4 ("the fragmentation word is simply not inspected").
func (f Frame) FragmentWord() uint16 { return binary.BigEndian.Uint16(f.buf[6:8]) }

func (f Frame) SetFragmentWord(v uint16) { binary.BigEndian.PutUint16(f.buf[6:8], v) }

func (f Frame) TTL() uint8 { return f.buf[8] }

func (f Frame) SetTTL(v uint8) { f.buf[8] = v }

func (f Frame) Protocol() httpofo.IPProto { return httpofo.IPProto(f.buf[9]) }

func (f Frame) SetProtocol(p httpofo.IPProto) { f.buf[9] = uint8(p) }

func (f Frame) CRC() uint16 { return binary.BigEndian.Uint16(f.buf[10:12]) }

func (f Frame) SetCRC(v uint16) { binary.BigEndian.PutUint16(f.buf[10:12], v) }

func (f Frame) SourceAddr() *[4]byte { return (*[4]byte)(f.buf[12:16]) }

func (f Frame) DestinationAddr() *[4]byte { return (*[4]byte)(f.buf[16:20]) }

// HeaderLength returns the header length in bytes as advertised by IHL.
func (f Frame) HeaderLength() int {
	_, ihl := f.VersionAndIHL()
	return int(ihl) * 4
}

// Payload returns the datagram's payload, i.e. everything after the
// header up to TotalLength. Callers must validate the frame first.
func (f Frame) Payload() []byte {
	off := f.HeaderLength()
	return f.buf[off:f.TotalLength()]
}

// CalculateHeaderCRC computes the header checksum, treating the stored
// checksum field as zero, per spec.md §4.4.
func (f Frame) CalculateHeaderCRC() uint16 {
	var c httpofo.CRC791
	hlen := f.HeaderLength()
	if hlen > len(f.buf) {
		hlen = len(f.buf)
	}
	c.Write(f.buf[0:10])
	c.Write(f.buf[12:hlen])
	return c.Sum16()
}
