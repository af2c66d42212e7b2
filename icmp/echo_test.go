package icmp_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/icmp"
)

// requestChecksum computes the checksum a well-formed message must carry:
// the Internet checksum over the whole message with the checksum field
// taken as zero, computed with the root package's routine rather than by
// asking HandleEcho (which rejects any message whose checksum is wrong).
func requestChecksum(buf []byte) uint16 {
	tmp := make([]byte, len(buf))
	copy(tmp, buf)
	tmp[2], tmp[3] = 0, 0
	return httpofo.Checksum(tmp)
}

func buildEcho(id, seq uint16, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	buf[0] = byte(icmp.TypeEcho)
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], seq)
	copy(buf[8:], payload)
	f, _ := icmp.NewFrame(buf)
	f.SetCRC(requestChecksum(buf))
	return buf
}

func TestEchoScenario(t *testing.T) {
	// Scenario 1 from spec.md §8: payload {0x61,0x62,0x63,0x64}, id
	// 0x1234, seq 0x0001.
	payload := []byte{0x61, 0x62, 0x63, 0x64}
	buf := buildEcho(0x1234, 0x0001, payload)

	reply, ok := icmp.HandleEcho(buf)
	if !ok {
		t.Fatal("expected echo reply")
	}
	rf, _ := icmp.NewFrame(reply)
	if rf.Type() != icmp.TypeEchoReply {
		t.Fatalf("type = %v, want EchoReply", rf.Type())
	}
	if rf.Identifier() != 0x1234 || rf.SequenceNumber() != 0x0001 {
		t.Fatalf("id/seq mismatch: %#x/%#x", rf.Identifier(), rf.SequenceNumber())
	}
	if !bytes.Equal(rf.Data(), payload) {
		t.Fatalf("payload mismatch: %x", rf.Data())
	}
}

func TestEchoIdempotence(t *testing.T) {
	// Two successive identical echo requests produce replies with equal
	// checksums (spec.md §8 "ICMP echo idempotence").
	payload := []byte{1, 2, 3, 4}
	req1 := buildEcho(7, 9, payload)
	req2 := buildEcho(7, 9, payload)

	reply1, ok1 := icmp.HandleEcho(req1)
	reply2, ok2 := icmp.HandleEcho(req2)
	if !ok1 || !ok2 {
		t.Fatal("expected both echoes to be handled")
	}
	f1, _ := icmp.NewFrame(reply1)
	f2, _ := icmp.NewFrame(reply2)
	if f1.CRC() != f2.CRC() {
		t.Fatalf("checksums differ: %#x vs %#x", f1.CRC(), f2.CRC())
	}
}

func TestEchoRejectsBadChecksum(t *testing.T) {
	buf := buildEcho(1, 1, []byte{1})
	f, _ := icmp.NewFrame(buf)
	f.SetCRC(f.CRC() ^ 0xFFFF) // flip every bit -- guaranteed mismatch.
	if _, ok := icmp.HandleEcho(buf); ok {
		t.Fatal("expected rejection of bad checksum")
	}
}

func TestEchoRejectsNonEchoType(t *testing.T) {
	buf := buildEcho(1, 1, []byte{1})
	f, _ := icmp.NewFrame(buf)
	f.SetType(icmp.TypeEchoReply)
	f.SetCRC(0)
	f.SetCRC(requestChecksum(buf))
	if _, ok := icmp.HandleEcho(buf); ok {
		t.Fatal("expected rejection of non-Echo type")
	}
}

func TestEchoRejectsShortBuffer(t *testing.T) {
	if _, ok := icmp.HandleEcho([]byte{1, 2, 3}); ok {
		t.Fatal("expected rejection of short buffer")
	}
}
