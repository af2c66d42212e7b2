package engine_test

import (
	"errors"
	"testing"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/engine"
	"github.com/leocurrie/httpofo/icmp"
	"github.com/leocurrie/httpofo/ipv4"
	"github.com/leocurrie/httpofo/serial"
	"github.com/leocurrie/httpofo/slip"
	"github.com/leocurrie/httpofo/tcpslot"
)

var errNoDatagram = errors.New("decodeSLIP: no complete datagram found")

// icmpChecksum writes a valid ICMP checksum into buf in place, computed
// independently of the icmp package's own implementation so the test
// doesn't validate the responder against itself.
func icmpChecksum(buf []byte) {
	buf[2], buf[3] = 0, 0
	var c httpofo.CRC791
	c.AddUint16(uint16(buf[0])<<8 | uint16(buf[1]))
	c.Write(buf[4:])
	sum := c.Sum16()
	buf[2] = byte(sum >> 8)
	buf[3] = byte(sum)
}

var (
	localAddr  = [4]byte{192, 168, 1, 2}
	remoteAddr = [4]byte{192, 168, 1, 10}
)

// slipEncode frames datagram exactly as a peer would before putting it on
// the wire, reusing the framer's own Send so the test stays honest about
// the wire format.
func slipEncode(t *testing.T, datagram []byte) []byte {
	t.Helper()
	port := &serial.FakePort{}
	f := slip.NewFramer(port)
	if err := f.Send(datagram); err != nil {
		t.Fatalf("slipEncode: %v", err)
	}
	return port.Sent()
}

type noopCallbacks struct {
	accept bool
	data   [][]byte
	states []struct {
		old, new tcpslot.State
	}
}

func (c *noopCallbacks) OnData(data []byte) {
	c.data = append(c.data, append([]byte(nil), data...))
}

func (c *noopCallbacks) OnStateChange(old, new tcpslot.State, remoteAddr [4]byte, remotePort uint16) {
	c.states = append(c.states, struct{ old, new tcpslot.State }{old, new})
}

func (c *noopCallbacks) OnAccept(remoteAddr [4]byte, remotePort uint16) bool { return c.accept }

func TestContextEchoScenario(t *testing.T) {
	port := &serial.FakePort{}
	cb := &noopCallbacks{}
	clk := &engine.FakeClock{}
	ctx := engine.New(localAddr, port, cb, clk)

	payload := []byte{0x61, 0x62, 0x63, 0x64}
	icmpBuf := make([]byte, 8+len(payload))
	icmpBuf[0] = byte(icmp.TypeEcho)
	icmpBuf[4] = 0x12
	icmpBuf[5] = 0x34
	icmpBuf[6] = 0x00
	icmpBuf[7] = 0x01
	copy(icmpBuf[8:], payload)
	icmpChecksum(icmpBuf)

	ipBuf := make([]byte, ipv4.HeaderSize+len(icmpBuf))
	n, err := ipv4.BuildOutbound(ipBuf, remoteAddr, localAddr, httpofo.IPProtoICMP, icmpBuf)
	if err != nil {
		t.Fatalf("build IP: %v", err)
	}

	port.Feed(slipEncode(t, ipBuf[:n]))

	if err := ctx.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	out := port.Sent()
	if len(out) == 0 {
		t.Fatal("expected an outbound reply")
	}
	datagram, _, err := decodeSLIP(out)
	if err != nil {
		t.Fatalf("decode reply framing: %v", err)
	}
	outIP, err := ipv4.NewFrame(datagram)
	if err != nil {
		t.Fatalf("outbound IP frame: %v", err)
	}
	if *outIP.SourceAddr() != localAddr || *outIP.DestinationAddr() != remoteAddr {
		t.Fatalf("IP src/dst = %v/%v, want %v/%v", *outIP.SourceAddr(), *outIP.DestinationAddr(), localAddr, remoteAddr)
	}
	outICMP, err := icmp.NewFrame(outIP.Payload())
	if err != nil {
		t.Fatalf("outbound ICMP frame: %v", err)
	}
	if outICMP.Type() != icmp.TypeEchoReply {
		t.Fatalf("ICMP type = %v, want EchoReply", outICMP.Type())
	}
	if outICMP.Identifier() != 0x1234 || outICMP.SequenceNumber() != 0x0001 {
		t.Fatalf("id/seq = %#x/%#x, want 0x1234/0x0001", outICMP.Identifier(), outICMP.SequenceNumber())
	}
}

// decodeSLIP unframes a single SLIP-encoded datagram by feeding it back
// through a Framer, returning the assembled datagram.
func decodeSLIP(framed []byte) ([]byte, bool, error) {
	port := &serial.FakePort{}
	port.Feed(framed)
	f := slip.NewFramer(port)
	if !f.Poll() {
		return nil, false, errNoDatagram
	}
	return append([]byte(nil), f.Datagram()...), true, nil
}

func TestContextTCPHandshake(t *testing.T) {
	port := &serial.FakePort{}
	cb := &noopCallbacks{accept: true}
	clk := &engine.FakeClock{}
	ctx := engine.New(localAddr, port, cb, clk)
	ctx.Slot().Listen(80)

	seg := make([]byte, tcpslot.HeaderSize)
	f, _ := tcpslot.WriteHeader(seg, 12345, 80, 100, 0, tcpslot.FlagSYN, 2048)
	f.SetCRC(0)
	f.SetCRC(tcpslot.Checksum(remoteAddr, localAddr, f.RawData()))

	ipBuf := make([]byte, ipv4.HeaderSize+len(seg))
	n, err := ipv4.BuildOutbound(ipBuf, remoteAddr, localAddr, httpofo.IPProtoTCP, seg)
	if err != nil {
		t.Fatalf("build IP: %v", err)
	}
	port.Feed(slipEncode(t, ipBuf[:n]))

	if err := ctx.Poll(); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if ctx.Slot().State() != tcpslot.StateSynReceived {
		t.Fatalf("state = %v, want SYN_RECEIVED", ctx.Slot().State())
	}
	out := port.Sent()
	datagram, _, err := decodeSLIP(out)
	if err != nil {
		t.Fatalf("decode reply framing: %v", err)
	}
	outIP, err := ipv4.NewFrame(datagram)
	if err != nil {
		t.Fatalf("outbound IP frame: %v", err)
	}
	outTCP, err := tcpslot.NewFrame(outIP.Payload())
	if err != nil {
		t.Fatalf("outbound TCP frame: %v", err)
	}
	if outTCP.Seq() != 1000 || outTCP.Ack() != 101 {
		t.Fatalf("SYN|ACK seq/ack = %d/%d, want 1000/101", outTCP.Seq(), outTCP.Ack())
	}
}
