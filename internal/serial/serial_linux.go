package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	300:    unix.B300,
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// Open opens name at baud in raw 8N1 mode.
func Open(name string, baud int) (*Port, error) {
	rate, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBaudRate, baud)
	}

	// O_NONBLOCK keeps open() from waiting on carrier detect
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	if err := configure(fd, rate); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configuring %s: %w", name, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Port{Name: name, f: os.NewFile(uintptr(fd), name)}, nil
}

func configure(fd int, rate uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | rate
	t.Ispeed = rate
	t.Ospeed = rate

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 1

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// SetDTR drives the DTR line.
func (p *Port) SetDTR(on bool) error {
	req := uint(unix.TIOCMBIC)
	if on {
		req = unix.TIOCMBIS
	}
	return unix.IoctlSetPointerInt(int(p.f.Fd()), req, unix.TIOCM_DTR)
}

// Flush discards unread input and unsent output.
func (p *Port) Flush() error {
	return unix.IoctlSetInt(int(p.f.Fd()), unix.TCFLSH, unix.TCIOFLUSH)
}
