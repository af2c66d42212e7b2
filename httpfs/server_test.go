package httpfs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/httpfs"
	"github.com/leocurrie/httpofo/tcpslot"
)

var (
	localAddr  = [4]byte{10, 0, 0, 1}
	remoteAddr = [4]byte{10, 0, 0, 2}
)

type fakeClock struct{ tick httpofo.Tick }

func (c *fakeClock) Now() httpofo.Tick { return c.tick }

type fakeSender struct{ sent [][]byte }

func (f *fakeSender) SendTCP(remoteAddr [4]byte, segment []byte) error {
	f.sent = append(f.sent, append([]byte(nil), segment...))
	return nil
}

func (f *fakeSender) lastPayload() []byte {
	if len(f.sent) == 0 {
		return nil
	}
	seg := f.sent[len(f.sent)-1]
	fr, err := tcpslot.NewFrame(seg)
	if err != nil {
		return nil
	}
	return fr.Payload()
}

// buildInbound constructs a raw TCP segment (header+payload) addressed to
// localPort from remotePort, carrying payload, with a correct checksum.
func buildInbound(t *testing.T, localPort, remotePort uint16, seq, ack tcpslot.Seq, flags tcpslot.Flags, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, tcpslot.HeaderSize+len(payload))
	f, err := tcpslot.WriteHeader(buf, remotePort, localPort, seq, ack, flags, 2048)
	if err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	copy(f.Payload(), payload)
	f.SetCRC(0)
	f.SetCRC(tcpslot.Checksum(remoteAddr, localAddr, f.RawData()))
	return f.RawData()
}

// newConnectedServer returns a Server whose slot has already completed a
// handshake with a synthetic peer on localPort, ready to receive request
// bytes via HandleSegment.
func newConnectedServer(t *testing.T, root string, writable bool) (*httpfs.Server, *tcpslot.Slot, *fakeSender, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	srv := httpfs.NewServer(root, writable)
	sender := &fakeSender{}
	scratch := make([]byte, tcpslot.HeaderSize+256)
	slot := tcpslot.NewSlot(localAddr, scratch, sender, srv)
	srv.BindSlot(slot)

	slot.Listen(80)
	if err := slot.HandleSegment(remoteAddr, buildInbound(t, 80, 12345, 100, 0, tcpslot.FlagSYN, nil), clock.Now()); err != nil {
		t.Fatalf("SYN: %v", err)
	}
	if err := slot.HandleSegment(remoteAddr, buildInbound(t, 80, 12345, 101, 1001, tcpslot.FlagACK, nil), clock.Now()); err != nil {
		t.Fatalf("ACK: %v", err)
	}
	if slot.State() != tcpslot.StateEstablished {
		t.Fatalf("state = %v, want ESTABLISHED", slot.State())
	}
	sender.sent = nil
	return srv, slot, sender, clock
}

func sendRequest(t *testing.T, slot *tcpslot.Slot, clock *fakeClock, seq tcpslot.Seq, request string) {
	t.Helper()
	if err := slot.HandleSegment(remoteAddr, buildInbound(t, 80, 12345, seq, 1001, tcpslot.FlagPSH|tcpslot.FlagACK, []byte(request)), clock.Now()); err != nil {
		t.Fatalf("HandleSegment: %v", err)
	}
}

// drainResponse acks each response chunk the slot has sent, as the peer
// would, and keeps polling srv until the slot starts its close. It returns
// the concatenated payload of every segment sent: a response longer than
// tcpslot.MaxSendPayload goes out in several chunks, one per Poll.
func drainResponse(t *testing.T, srv *httpfs.Server, slot *tcpslot.Slot, sender *fakeSender, clock *fakeClock) string {
	t.Helper()
	for i := 0; i < 64 && slot.State() != tcpslot.StateFinWait1; i++ {
		if p := sender.lastPayload(); len(p) > 0 {
			last, _ := tcpslot.NewFrame(sender.sent[len(sender.sent)-1])
			ack := last.Seq().Add(uint32(len(p)))
			if err := slot.HandleSegment(remoteAddr, buildInbound(t, 80, 12345, 1001, ack, tcpslot.FlagACK, nil), clock.Now()); err != nil {
				t.Fatalf("HandleSegment ack: %v", err)
			}
		}
		if err := srv.Poll(clock.Now()); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
	var all []byte
	for _, seg := range sender.sent {
		if fr, err := tcpslot.NewFrame(seg); err == nil {
			all = append(all, fr.Payload()...)
		}
	}
	return string(all)
}

func TestGetFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET /hello.txt HTTP/1.1\r\nHost: x\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	resp := drainResponse(t, srv, slot, sender, clock)
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK") {
		t.Fatalf("response = %q, want 200 OK prefix", resp)
	}
	if !strings.Contains(resp, "hello world") {
		t.Fatalf("response = %q, want body present", resp)
	}
}

func TestGetMissingFile404(t *testing.T) {
	root := t.TempDir()
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET /nope.txt HTTP/1.1\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 404") {
		t.Fatalf("response = %q, want 404", sender.lastPayload())
	}
}

func TestPathTraversalRejected(t *testing.T) {
	root := t.TempDir()
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET /../../etc/passwd HTTP/1.1\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 404") {
		t.Fatalf("response = %q, want 404", sender.lastPayload())
	}
}

func TestPutForbiddenWhenNotWritable(t *testing.T) {
	root := t.TempDir()
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "PUT /new.txt HTTP/1.1\r\nContent-Length: 4\r\n\r\nabcd")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 403") {
		t.Fatalf("response = %q, want 403", sender.lastPayload())
	}
}

func TestPutCreatesFile(t *testing.T) {
	root := t.TempDir()
	srv, slot, sender, clock := newConnectedServer(t, root, true)

	sendRequest(t, slot, clock, 101, "PUT /new.txt HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 201") {
		t.Fatalf("response = %q, want 201", sender.lastPayload())
	}
	got, err := os.ReadFile(filepath.Join(root, "new.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("file content = %q, want %q", got, "hello")
	}
}

func TestPutOverwriteReturns204(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "existing.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, slot, sender, clock := newConnectedServer(t, root, true)

	sendRequest(t, slot, clock, 101, "PUT /existing.txt HTTP/1.1\r\nContent-Length: 3\r\n\r\nnew")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 204") {
		t.Fatalf("response = %q, want 204", sender.lastPayload())
	}
}

func TestPutMissingContentLengthReturns411(t *testing.T) {
	root := t.TempDir()
	srv, slot, sender, clock := newConnectedServer(t, root, true)

	sendRequest(t, slot, clock, 101, "PUT /new.txt HTTP/1.1\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !strings.HasPrefix(string(sender.lastPayload()), "HTTP/1.1 411") {
		t.Fatalf("response = %q, want 411", sender.lastPayload())
	}
}

func TestDirectoryListing(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET / HTTP/1.1\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	resp := drainResponse(t, srv, slot, sender, clock)
	if !strings.Contains(resp, "a.txt") || !strings.Contains(resp, "sub/") {
		t.Fatalf("listing = %q, want entries for a.txt and sub/", resp)
	}
	if !strings.Contains(resp, "1</li>") {
		t.Fatalf("listing = %q, want a.txt's size (1 byte) present", resp)
	}
}

func TestDirectoryServesIndexHtm(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.htm"), []byte("<h1>home</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET / HTTP/1.1\r\n\r\n")
	if err := srv.Poll(clock.Now()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	resp := drainResponse(t, srv, slot, sender, clock)
	if !strings.Contains(resp, "<h1>home</h1>") {
		t.Fatalf("response = %q, want index.htm body, not a listing", resp)
	}
	if strings.Contains(resp, "a.txt") {
		t.Fatalf("response = %q, want index.htm served instead of a listing", resp)
	}
}

func TestResponseDrainsAndCloses(t *testing.T) {
	root := t.TempDir()
	body := strings.Repeat("x", 200) // bigger than tcpslot.MaxSendPayload
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, slot, sender, clock := newConnectedServer(t, root, false)

	sendRequest(t, slot, clock, 101, "GET /big.txt HTTP/1.1\r\n\r\n")

	var allSent []byte
	for i := 0; i < 16 && slot.State() != tcpslot.StateFinWait1; i++ {
		if err := srv.Poll(clock.Now()); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if p := sender.lastPayload(); len(p) > 0 {
			allSent = append(allSent, p...)
			// ack the chunk just sent so the retransmit cell frees up
			seg, err := tcpslot.NewFrame(sender.sent[len(sender.sent)-1])
			if err != nil {
				t.Fatalf("NewFrame: %v", err)
			}
			_, flags := seg.OffsetAndFlags()
			adv := uint32(len(seg.Payload()))
			if flags.HasAll(tcpslot.FlagFIN) {
				adv++
			}
			ackSeq := seg.Seq().Add(adv)
			if err := slot.HandleSegment(remoteAddr, buildInbound(t, 80, 12345, 1001, ackSeq, tcpslot.FlagACK, nil), clock.Now()); err != nil {
				t.Fatalf("HandleSegment ack: %v", err)
			}
		}
	}
	if slot.State() != tcpslot.StateFinWait1 {
		t.Fatalf("state = %v, want FIN_WAIT_1 after response fully drained", slot.State())
	}
	if !strings.Contains(string(allSent), body) {
		t.Fatalf("reassembled response missing full body")
	}
}
