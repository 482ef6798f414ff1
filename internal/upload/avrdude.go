package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/toolchain"
)

// Avrdude uploads with avrdude.
type Avrdude struct {
	Toolchain *toolchain.Toolchain
	Runner    *runner.Runner
	Console   io.Writer
	// Reset pulses DTR on the port before a bootloader upload. nil = skip.
	Reset func(port string, baud int, flush bool) error
}

// Upload flashes req.Hex.
func (a *Avrdude) Upload(ctx context.Context, req Request) error {
	argv, err := a.UploadArgv(req)
	if err != nil {
		return err
	}
	if req.Programmer == nil && a.Reset != nil {
		baud, _ := strconv.Atoi(req.speed())
		if err := a.Reset(req.Port, baud, !req.Board.DisableFlushing()); err != nil {
			// avrdude reports an unusable port itself
			slog.Warn("could not reset board", "port", req.Port, "err", err)
		}
	}
	return run(ctx, a.Runner, a.Console, req.Port, argv)
}

// BurnBootloader erases the chip, writes fuses, then flashes the board's
// bootloader image and locks it.
func (a *Avrdude) BurnBootloader(ctx context.Context, req Request) error {
	steps, err := a.BurnArgv(req)
	if err != nil {
		return err
	}
	for _, argv := range steps {
		if err := run(ctx, a.Runner, a.Console, req.Port, argv); err != nil {
			return err
		}
	}
	return nil
}

// UploadArgv builds the avrdude command line for req.
func (a *Avrdude) UploadArgv(req Request) ([]string, error) {
	var params []string
	if req.Programmer == nil {
		if req.Port == "" {
			return nil, ErrNoPort
		}
		proto := req.Board.UploadProtocol()
		if proto == "" {
			return nil, fmt.Errorf("%w: %s", ErrNoProtocol, req.Board.ID)
		}
		speed := req.speed()
		if speed == "" {
			return nil, fmt.Errorf("%w: %s (pass --speed)", ErrNoSpeed, req.Board.ID)
		}
		params = []string{"-c" + proto, "-P" + req.Port, "-b" + speed, "-D"}
	} else {
		p, err := a.programmerArgs(req)
		if err != nil {
			return nil, err
		}
		params = p
	}
	params = append(params, "-Uflash:w:"+req.Hex+":i")
	return a.argv(req, params), nil
}

// BurnArgv builds the two avrdude invocations of a bootloader burn.
func (a *Avrdude) BurnArgv(req Request) ([][]string, error) {
	if req.Programmer == nil {
		return nil, ErrNeedsProgrammer
	}
	bl := req.Board.Bootloader()
	if bl.File == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoBootloader, req.Board.ID)
	}
	prog, err := a.programmerArgs(req)
	if err != nil {
		return nil, err
	}

	erase := append([]string{}, prog...)
	erase = append(erase, "-e")
	if bl.UnlockBits != "" {
		erase = append(erase, "-Ulock:w:"+bl.UnlockBits+":m")
	}
	if bl.ExtendedFuse != "" {
		erase = append(erase, "-Uefuse:w:"+bl.ExtendedFuse+":m")
	}
	if bl.HighFuses != "" {
		erase = append(erase, "-Uhfuse:w:"+bl.HighFuses+":m")
	}
	if bl.LowFuses != "" {
		erase = append(erase, "-Ulfuse:w:"+bl.LowFuses+":m")
	}

	image := filepath.Join(req.BootloaderDir, bl.Path, bl.File)
	write := append([]string{}, prog...)
	write = append(write, "-Uflash:w:"+image+":i")
	if bl.LockBits != "" {
		write = append(write, "-Ulock:w:"+bl.LockBits+":m")
	}

	return [][]string{a.argv(req, erase), a.argv(req, write)}, nil
}

func (a *Avrdude) programmerArgs(req Request) ([]string, error) {
	p := req.Programmer
	args := []string{"-c" + p.Protocol()}
	switch p.Communication() {
	case "serial":
		if req.Port == "" {
			return nil, ErrNoPort
		}
		args = append(args, "-P"+req.Port)
		if s := p.Props.Get("speed"); s != "" {
			args = append(args, "-b"+s)
		}
	case "usb":
		args = append(args, "-Pusb")
	}
	if p.Force() {
		args = append(args, "-F")
	}
	if d := p.Props.Get("delay"); d != "" {
		args = append(args, "-i"+d)
	}
	return args, nil
}

func (a *Avrdude) argv(req Request, params []string) []string {
	argv := []string{a.Toolchain.Path(toolchain.Avrdude)}
	if req.AvrdudeConf != "" {
		argv = append(argv, "-C", req.AvrdudeConf)
	}
	argv = append(argv, "-p"+req.Board.MCU())
	if req.Verbose {
		argv = append(argv, "-v", "-v", "-v", "-v")
	} else {
		argv = append(argv, "-q", "-q")
	}
	return append(argv, params...)
}
