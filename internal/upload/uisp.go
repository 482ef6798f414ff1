package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/toolchain"
)

// Uisp uploads with the older uisp tool. It cannot burn bootloaders.
type Uisp struct {
	Toolchain *toolchain.Toolchain
	Runner    *runner.Runner
	Console   io.Writer
}

func (u *Uisp) Upload(ctx context.Context, req Request) error {
	argv, err := u.UploadArgv(req)
	if err != nil {
		return err
	}
	return run(ctx, u.Runner, u.Console, req.Port, argv)
}

func (u *Uisp) BurnBootloader(context.Context, Request) error {
	return ErrNotSupported
}

// UploadArgv builds the uisp command line for req.
func (u *Uisp) UploadArgv(req Request) ([]string, error) {
	if req.Port == "" {
		return nil, ErrNoPort
	}
	prog := req.Board.UploadProtocol()
	if req.Programmer != nil {
		prog = req.Programmer.Protocol()
	}
	if prog == "" {
		return nil, ErrNoProtocol
	}
	if req.speed() == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSpeed, req.Board.ID)
	}
	return []string{
		u.Toolchain.Path(toolchain.Uisp),
		"-dpart=" + req.Board.MCU(),
		"-dprog=" + prog,
		"-dserial=" + req.Port,
		"-dspeed=" + req.speed(),
		"--upload",
		"if=" + req.Hex,
	}, nil
}
