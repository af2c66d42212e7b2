package serial

// Port is the narrow byte-level surface the SLIP framer polls, matching
// spec.md §4.1's exposed surface: init/shutdown/rx_available/rx_getchar/
// tx_putchar. The surface is deliberately narrow so the layers above can
// be tested against FakePort instead of real hardware.
type Port interface {
	// Init prepares the port for use (opens the device, configures
	// framing/baud for a real UART; a no-op for fakes).
	Init() error
	// Shutdown releases any resources held by Init.
	Shutdown() error
	// RxAvailable returns the number of bytes buffered and ready to read.
	RxAvailable() int
	// RxGetchar returns the next buffered byte. ok is false if none is
	// available; callers should check RxAvailable first but RxGetchar
	// must not panic if called on an empty buffer.
	RxGetchar() (b byte, ok bool)
	// TxPutchar transmits a single byte, busy-waiting on the underlying
	// transmit-ready signal as needed (spec.md §4.1/§5: "tx_putchar may
	// busy-wait on the UART's transmit-ready signal").
	TxPutchar(b byte) error
}

// FakePort is an in-memory Port implementation backed by a Ring, used to
// exercise the SLIP/IP/TCP layers in tests without a real serial device.
// It also records every byte written via TxPutchar so tests can assert on
// outbound framing.
type FakePort struct {
	rx  Ring
	out []byte
}

func (f *FakePort) Init() error     { return nil }
func (f *FakePort) Shutdown() error { return nil }

// Feed injects bytes as if they had arrived on the wire, as the receive
// interrupt would. Bytes beyond the ring's capacity are dropped, exactly
// as real hardware would drop them on overflow.
func (f *FakePort) Feed(b []byte) (accepted int) {
	for _, c := range b {
		if f.rx.Push(c) {
			accepted++
		}
	}
	return accepted
}

func (f *FakePort) RxAvailable() int { return f.rx.Available() }

func (f *FakePort) RxGetchar() (byte, bool) { return f.rx.Pop() }

func (f *FakePort) TxPutchar(b byte) error {
	f.out = append(f.out, b)
	return nil
}

// Sent returns (and does not clear) the bytes written so far via TxPutchar.
func (f *FakePort) Sent() []byte { return f.out }

// ResetSent clears the recorded outbound byte log.
func (f *FakePort) ResetSent() { f.out = f.out[:0] }
