// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: serial  -  serial port discovery, DTR reset and raw reads
// ─────────────────────────────────────────────────────────────────────────────

package serial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrUnsupported = errors.New("serial ports are not supported on " + runtime.GOOS)
	ErrBaudRate    = errors.New("unsupported baud rate")
)

// patterns are the device names boards show up as, relative to /dev.
var patterns = map[string][]string{
	"linux":  {"ttyUSB*", "ttyACM*", "ttyS*"},
	"darwin": {"tty.*", "cu.*"},
}

// Ports lists candidate serial devices, sorted.
func Ports() ([]string, error) {
	return portsIn("/dev", patterns[runtime.GOOS])
}

func portsIn(dev string, pats []string) ([]string, error) {
	var out []string
	for _, p := range pats {
		m, err := doublestar.Glob(os.DirFS(dev), p)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dev, err)
		}
		for _, name := range m {
			out = append(out, filepath.Join(dev, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Port is an open serial device in raw 8N1 mode. Reads time out after
// roughly 100ms and return 0 bytes, so callers can poll a context.
type Port struct {
	Name string
	f    *os.File
}

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Close() error                { return p.f.Close() }

// Reset pulses DTR low for 100ms, which restarts boards whose bootloader
// listens right after reset. The input buffer is flushed first unless
// flush is false.
func Reset(name string, baud int, flush bool) error {
	p, err := Open(name, baud)
	if err != nil {
		return err
	}
	defer p.Close()

	if flush {
		if err := p.Flush(); err != nil {
			return fmt.Errorf("flushing %s: %w", name, err)
		}
	}
	if err := p.SetDTR(false); err != nil {
		return fmt.Errorf("lowering DTR on %s: %w", name, err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.SetDTR(true); err != nil {
		return fmt.Errorf("raising DTR on %s: %w", name, err)
	}
	return nil
}
