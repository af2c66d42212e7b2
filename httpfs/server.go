// Package httpfs is the application layer: a [tcpslot.Callbacks]
// implementation that serves a file hierarchy over the single TCP
// connection slot. It is out-of-core per spec.md §1 ("external
// collaborator"), specified and implemented here in full per
// SPEC_FULL.md, grounded loosely on the teacher's
// examples/httpserver/main.go request/response shape and http/httpraw's
// incremental header parsing -- rewritten around this engine's
// callback-driven transport rather than httpraw's io.Reader-based Conn.
package httpfs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/xid"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/internal"
	"github.com/leocurrie/httpofo/tcpslot"
)

// maxRequestSize bounds the accumulated request header, a defensive cap
// against an unbounded peer (not named by spec.md, which is silent on
// request sizing; a from-scratch server on a single shared connection
// slot cannot let one request grow without limit).
const maxRequestSize = 8192

// connState is the request/response state for the one connection the
// single slot can ever be serving. It is reset on every OnAccept and on
// every return to LISTEN.
type connState struct {
	id xid.ID

	buf        []byte
	headerDone bool

	method        string
	path          string
	contentLength int

	bodyBuf []byte

	responded       bool
	pendingResponse []byte
	closePending    bool
}

// Server implements tcpslot.Callbacks, serving GET (file + directory
// listing) and, when writable is set, PUT under root.
type Server struct {
	internal.Logger

	root     string
	writable bool

	slot *tcpslot.Slot

	conn connState
}

// NewServer constructs a Server rooted at root. The slot itself is
// supplied afterward via BindSlot, since the slot's own construction
// requires a Callbacks implementation -- this breaks that construction
// cycle.
func NewServer(root string, writable bool) *Server {
	return &Server{root: root, writable: writable}
}

// BindSlot attaches the connection slot responses are written through.
// Must be called once, before the slot begins handling segments.
func (s *Server) BindSlot(slot *tcpslot.Slot) {
	s.slot = slot
}

// OnAccept implements tcpslot.Callbacks: a single global root with no
// virtual hosting accepts every connection.
func (s *Server) OnAccept(remoteAddr [4]byte, remotePort uint16) bool {
	s.conn = connState{id: xid.New()}
	s.Debug("httpfs: accepted", slog.String("cid", s.conn.id.String()))
	return true
}

// OnStateChange implements tcpslot.Callbacks: discard any in-flight
// request/response state once the slot returns to LISTEN.
func (s *Server) OnStateChange(old, next tcpslot.State, remoteAddr [4]byte, remotePort uint16) {
	if next == tcpslot.StateListen {
		s.conn = connState{}
	}
}

// OnData implements tcpslot.Callbacks: accumulate bytes into the request
// buffer until a full "\r\n\r\n"-terminated header is seen, dispatch on
// the method, and for PUT keep accumulating the body until Content-Length
// bytes have arrived.
func (s *Server) OnData(data []byte) {
	if s.conn.responded {
		return // response already queued; ignore trailing bytes
	}
	if !s.conn.headerDone {
		if len(s.conn.buf)+len(data) > maxRequestSize {
			s.respond(413, "Request Entity Too Large", nil, "")
			return
		}
		s.conn.buf = append(s.conn.buf, data...)
		if !s.tryParseHeader() {
			return
		}
		s.dispatch()
		return
	}
	s.conn.bodyBuf = append(s.conn.bodyBuf, data...)
	s.maybeFinishPut()
}

// Poll drains the queued response through the slot, MaxSendPayload bytes
// at a time, waiting for Slot.CanSend between chunks rather than
// promoting the retransmit cell into an ordered queue (the
// single-outstanding-send contract is documented, not worked around).
// Once the whole response has drained, it closes the connection. Callers
// must invoke Poll once per main-loop iteration.
func (s *Server) Poll(now httpofo.Tick) error {
	if s.conn.closePending {
		if !s.slot.CanSend() {
			return nil
		}
		s.conn.closePending = false
		return s.slot.Close()
	}
	if len(s.conn.pendingResponse) == 0 || !s.slot.CanSend() {
		return nil
	}
	n := tcpslot.MaxSendPayload
	if n > len(s.conn.pendingResponse) {
		n = len(s.conn.pendingResponse)
	}
	chunk := s.conn.pendingResponse[:n]
	if err := s.slot.Send(now, chunk); err != nil {
		return err
	}
	s.conn.pendingResponse = s.conn.pendingResponse[n:]
	if len(s.conn.pendingResponse) == 0 {
		s.conn.closePending = true
	}
	return nil
}

// tryParseHeader looks for the header terminator and, once found, parses
// the request line and header lines (mirroring httpraw.Header's
// incremental TryParse, simplified to CRLF tokenizing since this stack's
// callback transport has no io.Reader to hand httpraw's full parser).
func (s *Server) tryParseHeader() bool {
	idx := bytes.Index(s.conn.buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return false
	}
	lines := bytes.Split(s.conn.buf[:idx], []byte("\r\n"))
	requestLine := strings.Fields(string(lines[0]))
	if len(requestLine) != 3 {
		s.respond(400, "Bad Request", nil, "")
		return false
	}
	s.conn.method = requestLine[0]
	s.conn.path = requestLine[1]

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "content-length") {
			s.conn.contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
		}
	}
	s.conn.bodyBuf = append([]byte(nil), s.conn.buf[idx+4:]...)
	s.conn.headerDone = true
	return true
}

func (s *Server) dispatch() {
	switch s.conn.method {
	case "GET":
		s.handleGet()
	case "PUT":
		s.handlePut()
	default:
		s.respond(405, "Method Not Allowed", nil, "")
	}
}

func (s *Server) handleGet() {
	full, ok := s.resolvePath(s.conn.path)
	if !ok {
		s.respond(404, "Not Found", nil, "")
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		s.respond(404, "Not Found", nil, "")
		return
	}
	if info.IsDir() {
		// index.htm, if present, is served ahead of a directory listing
		// (original_source/httpofo.c's handle_request).
		indexPath := filepath.Join(full, "index.htm")
		if indexInfo, err := os.Stat(indexPath); err == nil && !indexInfo.IsDir() {
			body, err := os.ReadFile(indexPath)
			if err != nil {
				s.respond(500, "Internal Server Error", nil, "")
				return
			}
			s.respond(200, "OK", body, mimeType(indexPath))
			return
		}
		body, err := renderDirListing(full, s.conn.path)
		if err != nil {
			s.respond(500, "Internal Server Error", nil, "")
			return
		}
		s.respond(200, "OK", body, "text/html")
		return
	}
	body, err := os.ReadFile(full)
	if err != nil {
		s.respond(500, "Internal Server Error", nil, "")
		return
	}
	s.respond(200, "OK", body, mimeType(full))
}

// handlePut validates writability and Content-Length up front; the write
// itself happens once the full body has arrived (maybeFinishPut).
func (s *Server) handlePut() {
	if !s.writable {
		s.respond(403, "Forbidden", nil, "")
		return
	}
	// Per the stricter interpretation of spec.md §9's open question: a
	// missing or zero Content-Length is 411, not treated as a 404.
	if s.conn.contentLength <= 0 {
		s.respond(411, "Length Required", nil, "")
		return
	}
	s.maybeFinishPut()
}

func (s *Server) maybeFinishPut() {
	if s.conn.responded || s.conn.method != "PUT" {
		return
	}
	if s.conn.contentLength <= 0 || len(s.conn.bodyBuf) < s.conn.contentLength {
		return
	}
	body := s.conn.bodyBuf[:s.conn.contentLength]
	full, ok := s.resolvePath(s.conn.path)
	if !ok {
		s.respond(404, "Not Found", nil, "")
		return
	}
	_, statErr := os.Stat(full)
	existed := statErr == nil
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		s.respond(500, "Internal Server Error", nil, "")
		return
	}
	if err := os.WriteFile(full, body, 0o644); err != nil {
		s.respond(500, "Internal Server Error", nil, "")
		return
	}
	if existed {
		s.respond(204, "No Content", nil, "")
	} else {
		s.respond(201, "Created", nil, "")
	}
}

// resolvePath cleans reqPath as a URL path, joins it under root, and
// rejects anything that resolves outside root -- path traversal via ".."
// is a correctness requirement implicit in "exposes a file hierarchy"
// that no server can skip, whether or not spec.md spells it out.
func (s *Server) resolvePath(reqPath string) (string, bool) {
	clean := path.Clean("/" + reqPath)
	full := filepath.Join(s.root, filepath.FromSlash(clean))

	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", false
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", false
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return "", false
	}
	return fullAbs, true
}

// respond builds the response into the connection's pending-send buffer;
// Poll drains it. Connection: close is always set, matching the teacher
// example server's resp.Set("Connection", "close").
func (s *Server) respond(status int, statusText string, body []byte, contentType string) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, statusText)
	if contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.Write(body)

	s.conn.pendingResponse = b.Bytes()
	s.conn.responded = true
	s.Info("httpfs: responding",
		slog.String("cid", s.conn.id.String()),
		slog.String("method", s.conn.method),
		slog.String("path", s.conn.path),
		slog.Int("status", status))
}
