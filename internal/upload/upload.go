// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: upload  -  put firmware on the board with avrdude or uisp
//
//  Two ways to reach the chip:
//    bootloader   serial port, board protocol and speed, DTR reset first
//    programmer   an entry of programmers.txt (ISP over serial, usb, ...)
// ─────────────────────────────────────────────────────────────────────────────

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/serial"
	"github.com/tsuki/sketchc/internal/toolchain"
)

var (
	ErrNoPort          = errors.New("no serial port selected")
	ErrNoProtocol      = errors.New("board has no upload protocol")
	ErrNoSpeed         = errors.New("board has no upload speed")
	ErrNeedsProgrammer = errors.New("burning a bootloader needs a programmer")
	ErrNoBootloader    = errors.New("board has no bootloader image")
	ErrUnknownTool     = errors.New("unknown upload tool")
	ErrNotSupported    = errors.New("operation not supported by this upload tool")
)

// Request describes one upload.
type Request struct {
	Hex   string
	Board *boards.Board
	// Programmer is nil when uploading through the bootloader.
	Programmer *boards.Programmer
	Port       string
	// Speed overrides the board's upload.speed when non-zero.
	Speed   int
	Verbose bool
	// AvrdudeConf is passed with -C when set.
	AvrdudeConf string
	// BootloaderDir holds <bootloader.path>/<bootloader.file>.
	BootloaderDir string
}

func (r Request) speed() string {
	if r.Speed > 0 {
		return fmt.Sprint(r.Speed)
	}
	return r.Board.UploadSpeed()
}

// Uploader flashes firmware and bootloaders.
type Uploader interface {
	Upload(ctx context.Context, req Request) error
	BurnBootloader(ctx context.Context, req Request) error
}

// UploadError is an upload failure recognised in the tool's output.
type UploadError struct {
	Message string
	Port    string
	Output  []string
}

func (e *UploadError) Error() string { return e.Message }

// New returns the uploader named by the upload.tool preference.
func New(tool string, tc *toolchain.Toolchain, r *runner.Runner, console io.Writer) (Uploader, error) {
	switch tool {
	case "", toolchain.Avrdude:
		return &Avrdude{Toolchain: tc, Runner: r, Console: console, Reset: serial.Reset}, nil
	case toolchain.Uisp:
		return &Uisp{Toolchain: tc, Runner: r, Console: console}, nil
	}
	return nil, fmt.Errorf("%w %q (want avrdude or uisp)", ErrUnknownTool, tool)
}

// scraper turns uploader output into the first recognised failure.
type scraper struct {
	port    string
	console io.Writer
	output  []string
	err     *UploadError
}

func (s *scraper) consume(line string) {
	s.output = append(s.output, line)
	if s.console != nil {
		fmt.Fprintln(s.console, line)
	}
	if s.err != nil {
		return
	}
	var msg string
	switch {
	case strings.Contains(line, "Expected signature"):
		msg = "wrong microcontroller found; is the right board selected?"
	case strings.Contains(line, "not responding"):
		msg = "board not responding; check the port and press reset just before uploading"
	case strings.Contains(line, "can't open device"), strings.Contains(line, "ser_open"):
		msg = fmt.Sprintf("serial port %q not found; run `sketchc ports` to list the available ones", s.port)
	default:
		return
	}
	s.err = &UploadError{Message: msg, Port: s.port}
}

// run executes argv and turns a failure into an *UploadError.
func run(ctx context.Context, r *runner.Runner, console io.Writer, port string, argv []string) error {
	s := &scraper{port: port, console: console}
	code, err := r.Run(ctx, argv, s.consume)
	if err != nil {
		return err
	}
	if s.err != nil {
		s.err.Output = s.output
		return s.err
	}
	if code != 0 {
		return &UploadError{
			Message: fmt.Sprintf("problem uploading to board (%s exited with %d)", argv[0], code),
			Port:    port,
			Output:  s.output,
		}
	}
	slog.Debug("upload step ok", "tool", argv[0], "port", port)
	return nil
}
