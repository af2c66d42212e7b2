package ipv4

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/metrics"
)

var (
	errBadVersion = errors.New("ipv4: bad version")
	errBadIHL     = errors.New("ipv4: IHL out of range")
	errBadTL      = errors.New("ipv4: total length out of range")
	errNotLocal   = errors.New("ipv4: destination not local")
)

// ValidateSize accumulates version/IHL/total-length errors into v without
// touching the header checksum, mirroring the teacher's
// ValidateSize/ValidateExceptCRC split (validation.go,
// internet/basicstack.go's StackBasic.Recv): the checksum is only worth
// computing once the size fields are known sane, since HeaderLength/
// TotalLength feed directly into CalculateHeaderCRC's slice bounds.
func (f Frame) ValidateSize(v *httpofo.Validator, receivedLen int) {
	version, ihl := f.VersionAndIHL()
	if version != 4 {
		v.GotErr(errBadVersion)
	}
	hlen := int(ihl) * 4
	if hlen < HeaderSize || hlen > receivedLen {
		v.GotErr(errBadIHL)
	}
	if int(f.TotalLength()) > receivedLen {
		v.GotErr(errBadTL)
	}
}

// validator is reused across calls to Input, exactly as the teacher reuses
// a validator field across calls on a long-lived stack struct
// (internet/basicstack.go's StackBasic.validator) -- safe here since the
// engine's main loop is single-threaded (spec.md §9) and Input is never
// reentered.
var validator httpofo.Validator

// Validate implements spec.md §8's "IP acceptance predicate": a datagram
// is accepted iff version==4, 20<=IHL*4<=receivedLen, totalLen<=receivedLen,
// the header checksum is valid, and the destination matches localAddr.
// receivedLen is the number of bytes actually read off the wire (frame may
// be backed by a larger scratch buffer). Errors accumulate into a
// [httpofo.Validator] rather than short-circuiting on the first mismatch,
// per the teacher's validation idiom.
func Validate(f Frame, receivedLen int, localAddr [4]byte) error {
	validator.ResetErr()
	f.ValidateSize(&validator, receivedLen)
	if err := validator.Err(); err != nil {
		return err
	}
	if f.CRC() != f.CalculateHeaderCRC() {
		validator.GotErr(httpofo.ErrBadCRC)
	}
	if *f.DestinationAddr() != localAddr {
		validator.GotErr(errNotLocal)
	}
	return validator.Err()
}

// Dispatcher routes a validated datagram's payload to the protocol it
// names. Implementations are the ICMP echo responder, the TCP engine, and
// a UDP sink (spec.md §4.4: "UDP is a stub sink").
type Dispatcher interface {
	HandleIPv4(proto httpofo.IPProto, srcAddr [4]byte, payload []byte) error
}

// Input validates an inbound datagram occupying buf[:receivedLen] against
// localAddr and, if accepted, dispatches its payload to d by protocol
// number. Malformed input is silently dropped (spec.md §7), reported to
// the caller only so it can be logged at debug level; it is never
// propagated as an application error.
func Input(buf []byte, receivedLen int, localAddr [4]byte, d Dispatcher) error {
	f, err := NewFrame(buf[:receivedLen])
	if err != nil {
		metrics.DatagramsDropped.With(prometheus.Labels{"reason": "short_header"}).Inc()
		return httpofo.ErrPacketDrop
	}
	if err := Validate(f, receivedLen, localAddr); err != nil {
		metrics.DatagramsDropped.With(prometheus.Labels{"reason": dropReason(err)}).Inc()
		return httpofo.ErrPacketDrop
	}
	return d.HandleIPv4(f.Protocol(), *f.SourceAddr(), f.Payload())
}

// dropReason maps a Validate error to the short label metrics.DatagramsDropped
// groups by.
func dropReason(err error) string {
	switch {
	case errors.Is(err, errBadVersion):
		return "bad_version"
	case errors.Is(err, errBadIHL):
		return "bad_ihl"
	case errors.Is(err, errBadTL):
		return "bad_total_length"
	case errors.Is(err, httpofo.ErrBadCRC):
		return "bad_checksum"
	case errors.Is(err, errNotLocal):
		return "not_local"
	default:
		return "other"
	}
}

// idCounter is the monotonically incrementing IP identification counter
// shared by all outbound datagrams (spec.md §4.4).
var idCounter atomic.Uint32

// BuildOutbound writes a 20-byte IPv4 header into buf followed by payload,
// returning the total datagram length. buf must have capacity for
// HeaderSize+len(payload). Matches spec.md §4.4's Outbound rule: IHL=5,
// TOS=0, incrementing ID, fragmentation word zero, TTL=64.
func BuildOutbound(buf []byte, srcAddr, dstAddr [4]byte, proto httpofo.IPProto, payload []byte) (int, error) {
	total := HeaderSize + len(payload)
	if len(buf) < total {
		return 0, httpofo.ErrShortBuffer
	}
	f, err := NewFrame(buf[:total])
	if err != nil {
		return 0, err
	}
	f.SetVersionAndIHL(4, 5)
	f.SetToS(0)
	f.SetTotalLength(uint16(total))
	f.SetID(uint16(idCounter.Add(1)))
	f.SetFragmentWord(0)
	f.SetTTL(64)
	f.SetProtocol(proto)
	*f.SourceAddr() = srcAddr
	*f.DestinationAddr() = dstAddr
	f.SetCRC(0)
	copy(f.buf[HeaderSize:], payload)
	f.SetCRC(f.CalculateHeaderCRC())
	return total, nil
}
