// Package slip implements SLIP (RFC 1055) framing over a serial.Port,
// turning a byte stream into whole datagrams and back, per spec.md §4.2.
package slip

import "github.com/leocurrie/httpofo/serial"

// Sentinel bytes defined by RFC 1055.
const (
	End    byte = 0xC0
	Esc    byte = 0xDB
	EscEnd byte = 0xDC
	EscEsc byte = 0xDD
)

// MTU is the conventional SLIP maximum transmission unit (spec.md §6).
const MTU = 576

// Framer turns the byte stream read from a serial.Port into complete
// datagrams and frames outgoing datagrams for transmission. It holds a
// single "escape pending" flag and a running length, matching spec.md
// §4.2's description of the decoder's state.
type Framer struct {
	port serial.Port
	buf  [MTU]byte
	n    int
	esc  bool
}

// NewFramer returns a Framer reading from port.
func NewFramer(port serial.Port) *Framer {
	return &Framer{port: port}
}

// Poll drains any bytes currently available from the port and returns true
// as soon as a complete datagram has been assembled into the receive
// scratch buffer, retrievable with Datagram. It should be called
// repeatedly from the main loop (spec.md §5: "the main loop must invoke...
// SLIP poll").
func (f *Framer) Poll() bool {
	for f.port.RxAvailable() > 0 {
		b, ok := f.port.RxGetchar()
		if !ok {
			break
		}
		if done := f.feed(b); done {
			return true
		}
	}
	return false
}

// feed processes a single received byte per RFC 1055's escaping rules and
// reports whether it completed a datagram.
func (f *Framer) feed(b byte) (complete bool) {
	switch {
	case f.esc:
		f.esc = false
		switch b {
		case EscEnd:
			f.appendByte(End)
		case EscEsc:
			f.appendByte(Esc)
		default:
			// Not a valid escape sequence; per RFC 1055 guidance we pass
			// the byte through rather than silently losing data.
			f.appendByte(b)
		}
		return false
	case b == Esc:
		f.esc = true
		return false
	case b == End:
		if f.n == 0 {
			return false // Leading END: ignored, supports sync (spec.md §4.2).
		}
		complete = true
		return true
	default:
		f.appendByte(b)
		return false
	}
}

// appendByte appends b to the in-progress datagram, silently dropping
// bytes once the scratch buffer is full. The in-progress datagram is
// allowed to complete regardless; it will likely fail an upper-layer
// length check, per spec.md §4.2.
func (f *Framer) appendByte(b byte) {
	if f.n < len(f.buf) {
		f.buf[f.n] = b
		f.n++
	}
}

// Datagram returns the most recently assembled datagram. Valid only until
// the next call to Poll that begins assembling a new one.
func (f *Framer) Datagram() []byte {
	d := f.buf[:f.n]
	f.n = 0
	f.esc = false
	return d
}

// Send frames datagram with leading/trailing END bytes and escapes any
// embedded END/ESC bytes per RFC 1055, writing the result byte-by-byte to
// the port.
func (f *Framer) Send(datagram []byte) error {
	if err := f.port.TxPutchar(End); err != nil {
		return err
	}
	for _, b := range datagram {
		switch b {
		case End:
			if err := f.port.TxPutchar(Esc); err != nil {
				return err
			}
			if err := f.port.TxPutchar(EscEnd); err != nil {
				return err
			}
		case Esc:
			if err := f.port.TxPutchar(Esc); err != nil {
				return err
			}
			if err := f.port.TxPutchar(EscEsc); err != nil {
				return err
			}
		default:
			if err := f.port.TxPutchar(b); err != nil {
				return err
			}
		}
	}
	return f.port.TxPutchar(End)
}
