// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: boards  -  board and programmer definitions
//
//  boards.txt and programmers.txt use the preferences format. Every key is
//  prefixed by the board (or programmer) ID:
//
//    uno.name=Arduino Uno
//    uno.build.mcu=atmega328p
// ─────────────────────────────────────────────────────────────────────────────

package boards

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsuki/sketchc/internal/prefs"
)

//go:embed data/boards.txt data/programmers.txt
var builtin embed.FS

var (
	ErrUnknownBoard      = errors.New("unknown board")
	ErrUnknownProgrammer = errors.New("unknown programmer")
)

// Board is one group of boards.txt keys with the ID prefix stripped.
type Board struct {
	ID    string
	Props prefs.Map
}

func (b *Board) Name() string           { return b.Props.Get("name") }
func (b *Board) MCU() string            { return b.Props.Get("build.mcu") }
func (b *Board) FCPU() string           { return b.Props.Get("build.f_cpu") }
func (b *Board) Core() string           { return b.Props.Get("build.core") }
func (b *Board) UploadProtocol() string { return b.Props.Get("upload.protocol") }
func (b *Board) UploadSpeed() string    { return b.Props.Get("upload.speed") }

// MaxSize is upload.maximum_size in bytes, 0 when unset.
func (b *Board) MaxSize() int { return b.Props.GetInt("upload.maximum_size", 0) }

// DisableFlushing reports whether the serial port must not be flushed
// before uploading to this board.
func (b *Board) DisableFlushing() bool { return b.Props.GetBool("upload.disable_flushing") }

// Bootloader describes the image and fuse settings used by burn-bootloader.
type Bootloader struct {
	Path         string
	File         string
	UnlockBits   string
	LockBits     string
	LowFuses     string
	HighFuses    string
	ExtendedFuse string
}

func (b *Board) Bootloader() Bootloader {
	return Bootloader{
		Path:         b.Props.Get("bootloader.path"),
		File:         b.Props.Get("bootloader.file"),
		UnlockBits:   b.Props.Get("bootloader.unlock_bits"),
		LockBits:     b.Props.Get("bootloader.lock_bits"),
		LowFuses:     b.Props.Get("bootloader.low_fuses"),
		HighFuses:    b.Props.Get("bootloader.high_fuses"),
		ExtendedFuse: b.Props.Get("bootloader.extended_fuses"),
	}
}

// Programmer is one group of programmers.txt keys.
type Programmer struct {
	ID    string
	Props prefs.Map
}

func (p *Programmer) Name() string { return p.Props.Get("name") }

// Communication is "serial", "usb" or empty for parallel-port programmers.
func (p *Programmer) Communication() string { return p.Props.Get("communication") }
func (p *Programmer) Protocol() string      { return p.Props.Get("protocol") }
func (p *Programmer) Force() bool           { return p.Props.GetBool("force") }

// Catalog holds every known board and programmer in file order.
type Catalog struct {
	Boards      []*Board
	Programmers []*Programmer
}

// Board returns the board with the given ID.
func (c *Catalog) Board(id string) (*Board, error) {
	for _, b := range c.Boards {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownBoard, id)
}

// Programmer returns the programmer with the given ID.
func (c *Catalog) Programmer(id string) (*Programmer, error) {
	for _, p := range c.Programmers {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownProgrammer, id)
}

// ParseBoards reads boards.txt.
func ParseBoards(r io.Reader) ([]*Board, error) {
	groups, order, err := group(r)
	if err != nil {
		return nil, err
	}
	out := make([]*Board, 0, len(order))
	for _, id := range order {
		out = append(out, &Board{ID: id, Props: groups[id]})
	}
	return out, nil
}

// ParseProgrammers reads programmers.txt.
func ParseProgrammers(r io.Reader) ([]*Programmer, error) {
	groups, order, err := group(r)
	if err != nil {
		return nil, err
	}
	out := make([]*Programmer, 0, len(order))
	for _, id := range order {
		out = append(out, &Programmer{ID: id, Props: groups[id]})
	}
	return out, nil
}

func group(r io.Reader) (map[string]prefs.Map, []string, error) {
	m, keys, err := prefs.ParseOrdered(r)
	if err != nil {
		return nil, nil, err
	}
	groups := map[string]prefs.Map{}
	var order []string
	for _, k := range keys {
		dot := strings.IndexByte(k, '.')
		if dot <= 0 || dot == len(k)-1 {
			continue
		}
		id := k[:dot]
		g, ok := groups[id]
		if !ok {
			g = prefs.New()
			groups[id] = g
			order = append(order, id)
		}
		g[k[dot+1:]] = m[k]
	}
	return groups, order, nil
}

// Load reads boards.txt and programmers.txt from hardwarePath, falling back
// to the built-in copies for any file that is missing there.
func Load(hardwarePath string) (*Catalog, error) {
	bdata, err := readDefinition(hardwarePath, "boards.txt")
	if err != nil {
		return nil, err
	}
	pdata, err := readDefinition(hardwarePath, "programmers.txt")
	if err != nil {
		return nil, err
	}

	c := &Catalog{}
	if c.Boards, err = ParseBoards(bytes.NewReader(bdata)); err != nil {
		return nil, fmt.Errorf("boards.txt: %w", err)
	}
	if c.Programmers, err = ParseProgrammers(bytes.NewReader(pdata)); err != nil {
		return nil, fmt.Errorf("programmers.txt: %w", err)
	}
	return c, nil
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func readDefinition(hardwarePath, name string) ([]byte, error) {
	if hardwarePath != "" {
		for _, p := range []string{
			filepath.Join(hardwarePath, name),
			filepath.Join(hardwarePath, "arduino", name),
		} {
			data, err := os.ReadFile(p)
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}
	return builtin.ReadFile("data/" + name)
}
