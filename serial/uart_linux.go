//go:build linux

package serial

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// UARTPort is a Port backed by a real TTY device, configured 8-N-1 at a
// fixed baud rate as spec.md §6 requires ("SLIP per RFC 1055 over an 8-N-1
// serial link at 9600 baud (implementation-configurable)").
//
// The only goroutine in this stack lives here: a background reader that
// copies bytes from the file descriptor into the receive Ring, playing the
// role of the receive interrupt handler described in spec.md §4.1/§5. No
// other stack package spawns goroutines (cmd/slipfileserver's optional
// metrics listener runs in its own, outside the stack); all protocol logic
// runs from the caller's single cooperative loop.
type UARTPort struct {
	path string
	baud uint32
	f    *os.File
	rx   Ring
	done chan struct{}
}

// NewUARTPort returns a Port for the TTY at path, configured for the given
// baud rate. Call Init before use.
func NewUARTPort(path string, baud uint32) *UARTPort {
	return &UARTPort{path: path, baud: baud}
}

func (u *UARTPort) Init() error {
	f, err := os.OpenFile(u.path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", u.path, err)
	}
	fd := int(f.Fd())
	term, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return fmt.Errorf("serial: get termios: %w", err)
	}
	speed, err := baudConst(u.baud)
	if err != nil {
		f.Close()
		return err
	}
	term.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	term.Oflag &^= unix.OPOST
	term.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	term.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	term.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	term.Ispeed = speed
	term.Ospeed = speed
	term.Cc[unix.VMIN] = 1
	term.Cc[unix.VTIME] = 0
	err = unix.IoctlSetTermios(fd, unix.TCSETS, term)
	if err != nil {
		f.Close()
		return fmt.Errorf("serial: set termios: %w", err)
	}
	u.f = f
	u.done = make(chan struct{})
	go u.readLoop()
	return nil
}

func (u *UARTPort) readLoop() {
	var buf [64]byte
	for {
		select {
		case <-u.done:
			return
		default:
		}
		n, err := u.f.Read(buf[:])
		if err != nil {
			return
		}
		for _, b := range buf[:n] {
			u.rx.Push(b) // overflow drops the newest byte, per spec.md §4.1.
		}
	}
}

func (u *UARTPort) Shutdown() error {
	if u.done != nil {
		close(u.done)
	}
	if u.f != nil {
		return u.f.Close()
	}
	return nil
}

func (u *UARTPort) RxAvailable() int { return u.rx.Available() }

func (u *UARTPort) RxGetchar() (byte, bool) { return u.rx.Pop() }

func (u *UARTPort) TxPutchar(b byte) error {
	_, err := u.f.Write([]byte{b}) // the OS driver provides the busy-wait on transmit-ready.
	return err
}

func baudConst(baud uint32) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, errors.New("serial: unsupported baud rate")
	}
}
