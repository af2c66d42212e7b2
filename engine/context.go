// Package engine wires the lower layers -- serial, SLIP, IPv4, ICMP and
// the TCP slot -- into the single cooperative main loop described in
// spec.md §5.
package engine

import (
	"log/slog"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/icmp"
	"github.com/leocurrie/httpofo/internal"
	"github.com/leocurrie/httpofo/ipv4"
	"github.com/leocurrie/httpofo/serial"
	"github.com/leocurrie/httpofo/slip"
	"github.com/leocurrie/httpofo/tcpslot"
)

// Context is the network context: one serial port, one SLIP framer, one
// IPv4 address, one TCP [tcpslot.Slot], constructed once per process and
// passed explicitly wherever the lower layers must reach upward, rather
// than through package-level state (spec.md §9's Design Note 1).
type Context struct {
	internal.Logger

	localAddr [4]byte
	framer    *slip.Framer
	slot      *tcpslot.Slot
	clock     Clock

	txScratch []byte // outbound IP datagram scratch (spec.md §3 "transmit scratch")
}

// New constructs a Context. port is the serial device the SLIP framer
// reads and writes; cb is the application's [tcpslot.Callbacks]
// implementation; clock supplies the tick counter driving retransmission.
func New(localAddr [4]byte, port serial.Port, cb tcpslot.Callbacks, clock Clock) *Context {
	c := &Context{
		localAddr: localAddr,
		framer:    slip.NewFramer(port),
		clock:     clock,
		txScratch: make([]byte, slip.MTU),
	}
	tcpScratch := make([]byte, tcpslot.HeaderSize+256)
	c.slot = tcpslot.NewSlot(localAddr, tcpScratch, c, cb)
	return c
}

// Slot returns the process's single TCP connection slot, so the
// application can call Listen/Connect/Send/Close on it directly (spec.md
// §6 "downward surface").
func (c *Context) Slot() *tcpslot.Slot { return c.slot }

// SetLogger attaches log to the context and to the TCP slot it owns,
// matching the teacher's convention of propagating one *slog.Logger
// through an embeddable internal.Logger at construction.
func (c *Context) SetLogger(log *slog.Logger) {
	c.Logger.SetLogger(log)
	c.slot.SetLogger(log)
}

// Poll drains the serial port through the SLIP framer and, on a complete
// datagram, runs it through IPv4 input. It is the first step of spec.md
// §5's repeated main-loop sequence.
func (c *Context) Poll() error {
	_, err := c.PollOne()
	return err
}

// PollOne is Poll, additionally reporting whether a datagram was
// assembled and dispatched this call -- used by [Context.Run] to decide
// whether to back off before the next iteration.
func (c *Context) PollOne() (polled bool, err error) {
	if !c.framer.Poll() {
		return false, nil
	}
	datagram := c.framer.Datagram()
	return true, ipv4.Input(datagram, len(datagram), c.localAddr, c)
}

// Tick runs the retransmission check, the second step of spec.md §5's
// main-loop sequence.
func (c *Context) Tick() error {
	return c.slot.Tick(c.clock.Now())
}

// Now returns the context's current tick, for callers (e.g. the
// application layer) that need to stamp an application-level send.
func (c *Context) Now() httpofo.Tick { return c.clock.Now() }

// HandleIPv4 implements [ipv4.Dispatcher]: demultiplex by protocol number
// to ICMP, the TCP slot, or a no-op UDP sink (spec.md §4.4).
func (c *Context) HandleIPv4(proto httpofo.IPProto, srcAddr [4]byte, payload []byte) error {
	switch proto {
	case httpofo.IPProtoICMP:
		reply, ok := icmp.HandleEcho(payload)
		if !ok {
			return nil
		}
		return c.sendICMP(srcAddr, reply)
	case httpofo.IPProtoTCP:
		return c.slot.HandleSegment(srcAddr, payload, c.clock.Now())
	case httpofo.IPProtoUDP:
		return nil // stub sink, per spec.md §4.4.
	default:
		return nil
	}
}

// SendTCP implements [tcpslot.IPSender]: wrap segment in an IPv4 datagram
// addressed to remoteAddr and hand it to the SLIP framer.
func (c *Context) SendTCP(remoteAddr [4]byte, segment []byte) error {
	return c.sendIP(remoteAddr, httpofo.IPProtoTCP, segment)
}

func (c *Context) sendICMP(remoteAddr [4]byte, payload []byte) error {
	return c.sendIP(remoteAddr, httpofo.IPProtoICMP, payload)
}

func (c *Context) sendIP(remoteAddr [4]byte, proto httpofo.IPProto, payload []byte) error {
	n, err := ipv4.BuildOutbound(c.txScratch, c.localAddr, remoteAddr, proto, payload)
	if err != nil {
		return err
	}
	return c.framer.Send(c.txScratch[:n])
}
