// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: build  -  sketch folder → firmware, end to end
//
//  Phases:
//    1. preprocess     concatenate tabs, add header + prototypes → <name>.cpp
//    2. stage          copy .c/.cpp/.h tabs into the build folder
//    3. libraries      resolve #includes, build what is stale
//    4. compile        core + sketch + link + objcopy
//    5. size           avr-size against upload.maximum_size
//
//  The build folder is --build-path / build.path when set, otherwise a
//  fresh  $TMPDIR/sketchc-<build id>.
// ─────────────────────────────────────────────────────────────────────────────

package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/compiler"
	"github.com/tsuki/sketchc/internal/library"
	"github.com/tsuki/sketchc/internal/preproc"
	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/size"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/toolchain"
	"github.com/tsuki/sketchc/internal/upload"
)

// Options controls one build.
type Options struct {
	Board     *boards.Board
	Toolchain *toolchain.Toolchain
	Hardware  Hardware

	// BuildPath is reused between builds when set, so library objects
	// are only rebuilt when stale.
	BuildPath string
	// LibraryRoots are searched in order, before Hardware.Libraries().
	LibraryRoots []string

	Preproc    preproc.Options
	ExtraFlags []string

	// Verbose echoes every command line to Console.
	Verbose bool
	// Console receives tool output. nil = discard.
	Console io.Writer
	// Progress is told about each phase as it starts. nil = silent.
	Progress func(phase, detail string)
}

func (o Options) progress(phase, detail string) {
	if o.Progress != nil {
		o.Progress(phase, detail)
	}
	slog.Debug("build phase", "phase", phase, "detail", detail)
}

// Result describes a finished (or size-rejected) build.
type Result struct {
	BuildID   string                `json:"build_id" yaml:"build_id"`
	Sketch    string                `json:"sketch" yaml:"sketch"`
	Board     string                `json:"board" yaml:"board"`
	BuildPath string                `json:"build_path" yaml:"build_path"`
	Hex       string                `json:"hex" yaml:"hex"`
	Size      int                   `json:"size" yaml:"size"`
	MaxSize   int                   `json:"max_size" yaml:"max_size"`
	Libraries []string              `json:"libraries" yaml:"libraries"`
	Warnings  []compiler.Diagnostic `json:"warnings" yaml:"warnings"`
	Steps     []runner.Step         `json:"steps" yaml:"steps"`
	Started   time.Time             `json:"started" yaml:"started"`
	Duration  time.Duration         `json:"duration" yaml:"duration"`
}

// staged is what Run and Check share: a preprocessed sketch sitting in
// its build folder with the libraries it needs.
type staged struct {
	id     string
	path   string
	unit   *preproc.Unit
	target toolchain.Target
	core   string
	set    *library.Set
	libs   []*library.Library
	runner *runner.Runner
}

func stage(s *sketch.Sketch, o Options) (*staged, error) {
	if o.Board == nil {
		return nil, errors.New("no board selected")
	}
	if o.Toolchain == nil {
		o.Toolchain = toolchain.New("")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating build id: %w", err)
	}

	core, err := o.Hardware.Core(o.Board.Core())
	if err != nil {
		return nil, err
	}

	path := o.BuildPath
	if path == "" {
		path = filepath.Join(os.TempDir(), "sketchc-"+id.String())
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating build folder: %w", err)
	}

	o.progress("preprocess", s.Name)
	unit, err := preproc.Preprocess(s, o.Preproc)
	if err != nil {
		return nil, err
	}
	if _, err := unit.WriteTo(path); err != nil {
		return nil, err
	}
	for _, f := range s.Files {
		if f.Flavor == sketch.PDE {
			continue
		}
		if strings.EqualFold(f.FileName, unit.FileName()) {
			return nil, fmt.Errorf("%w: %s", sketch.ErrReservedName, f.FileName)
		}
		if err := os.WriteFile(filepath.Join(path, f.FileName), []byte(f.Program), 0644); err != nil {
			return nil, fmt.Errorf("staging %s: %w", f.FileName, err)
		}
	}

	roots := append(append([]string{}, o.LibraryRoots...), o.Hardware.Libraries())
	set, err := library.Scan(roots...)
	if err != nil {
		return nil, err
	}

	r := &runner.Runner{Dir: path}
	if o.Verbose {
		r.Echo = o.Console
	}
	return &staged{
		id:     id.String(),
		path:   path,
		unit:   unit,
		target: toolchain.Target{MCU: o.Board.MCU(), FCPU: o.Board.FCPU()},
		core:   core,
		set:    set,
		libs:   set.Resolve(unit.Includes),
		runner: r,
	}, nil
}

func (st *staged) libraryDirs() []string {
	var dirs []string
	for _, l := range st.libs {
		dirs = append(dirs, l.IncludeDirs()...)
	}
	return dirs
}

func (st *staged) request(s *sketch.Sketch, o Options) compiler.Request {
	return compiler.Request{
		Sketch:      s,
		Unit:        st.unit,
		BuildPath:   st.path,
		CorePath:    st.core,
		Target:      st.target,
		LibraryDirs: st.libraryDirs(),
		ExtraFlags:  o.ExtraFlags,
	}
}

// Run builds s. On ErrSketchTooBig the result is still returned, with
// the measured size.
func Run(ctx context.Context, s *sketch.Sketch, o Options) (*Result, error) {
	started := time.Now()
	st, err := stage(s, o)
	if err != nil {
		return nil, err
	}
	res := &Result{
		BuildID:   st.id,
		Sketch:    s.Name,
		Board:     o.Board.ID,
		BuildPath: st.path,
		MaxSize:   o.Board.MaxSize(),
		Started:   started,
	}
	finish := func() {
		res.Steps = st.runner.Steps()
		res.Duration = time.Since(started)
	}
	defer finish()

	tc := o.Toolchain
	if tc == nil {
		tc = toolchain.New("")
	}

	builder := &library.Builder{Toolchain: tc, Runner: st.runner, Console: o.Console}
	var libObjs []string
	for _, lib := range st.libs {
		res.Libraries = append(res.Libraries, lib.Name)
		o.progress("library", lib.Name)
		objs, err := builder.Build(ctx, lib, library.BuildOptions{
			BuildPath:  st.path,
			CorePath:   st.core,
			Target:     st.target,
			AllDirs:    st.set.Dirs(),
			ExtraFlags: o.ExtraFlags,
		})
		if err != nil {
			return res, err
		}
		libObjs = append(libObjs, objs...)
	}

	o.progress("compile", fmt.Sprintf("%s for %s", st.unit.FileName(), o.Board.MCU()))
	req := st.request(s, o)
	req.LibraryObjects = libObjs
	out, err := compiler.New(tc, st.runner, o.Console).Compile(ctx, req)
	if err != nil {
		return res, err
	}
	res.Hex = out.Hex
	res.Warnings = out.Warnings

	o.progress("size", filepath.Base(out.Hex))
	rep, err := size.Measure(ctx, tc, st.runner, out.Hex, res.MaxSize)
	res.Size = rep.Size()
	if err != nil {
		return res, err
	}
	return res, nil
}

// Check preprocesses s and runs every unit through the compiler with
// -fsyntax-only -Wall. Nothing is linked and no library is built.
func Check(ctx context.Context, s *sketch.Sketch, o Options) ([]compiler.Diagnostic, error) {
	st, err := stage(s, o)
	if err != nil {
		return nil, err
	}
	tc := o.Toolchain
	if tc == nil {
		tc = toolchain.New("")
	}
	o.progress("check", st.unit.FileName())
	return compiler.New(tc, st.runner, o.Console).Check(ctx, st.request(s, o))
}

// UploadOptions controls Upload.
type UploadOptions struct {
	Uploader upload.Uploader
	// Request is completed with the result's hex file.
	Request upload.Request
	// Timeout bounds the whole upload. 0 = none.
	Timeout time.Duration
}

// Upload flashes the hex file of res.
func Upload(ctx context.Context, res *Result, o UploadOptions) error {
	if res == nil || res.Hex == "" {
		return errors.New("nothing to upload; build first")
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	req := o.Request
	req.Hex = res.Hex
	if err := o.Uploader.Upload(ctx, req); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("upload timed out after %s: %w", o.Timeout, err)
		}
		return err
	}
	return nil
}
