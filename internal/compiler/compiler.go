// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: compiler  -  sketch unit + core + libraries → .elf/.eep/.hex
//
//  Step order:
//    1. every C source     (sketch .c files, core .c files)      avr-gcc
//    2. every C++ source   (unit, sketch .cpp files, core .cpp)  avr-g++
//    3. each core object   → core.a                               avr-ar
//    4. link library + sketch objects with core.a                 avr-gcc
//    5. .eep then .hex                                            avr-objcopy
//
//  The first failing step stops the build.
// ─────────────────────────────────────────────────────────────────────────────

package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tsuki/sketchc/internal/preproc"
	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/toolchain"
)

var (
	// ErrCompilerCrashed means a tool exited with something other than
	// 0 or 1 and printed nothing we could parse.
	ErrCompilerCrashed = errors.New("compiler crashed")
	// ErrBuildFailed means a step failed without a locatable error.
	ErrBuildFailed = errors.New("build failed")
)

// Request describes one build.
type Request struct {
	Sketch    *sketch.Sketch
	Unit      *preproc.Unit
	BuildPath string

	// CorePath is the folder of the board core (WProgram.h, wiring.c, ...).
	CorePath string
	Target   toolchain.Target

	// LibraryDirs are added as include paths; LibraryObjects are linked
	// before the sketch objects.
	LibraryDirs    []string
	LibraryObjects []string

	ExtraFlags []string
}

// Result lists the produced artifacts.
type Result struct {
	Elf      string
	Eep      string
	Hex      string
	Warnings []Diagnostic
}

// Compiler drives the toolchain through a Runner.
type Compiler struct {
	Toolchain *toolchain.Toolchain
	Runner    *runner.Runner
	// Console receives the raw tool output (filtered after a second
	// error). nil = discard.
	Console io.Writer
}

func New(tc *toolchain.Toolchain, r *runner.Runner, console io.Writer) *Compiler {
	return &Compiler{Toolchain: tc, Runner: r, Console: console}
}

// CoreSources lists the .c and .cpp files at the top of a core folder in
// name order.
func CoreSources(corePath string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(corePath), "*.{c,cpp}")
	if err != nil {
		return nil, fmt.Errorf("listing core sources: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

type job struct {
	src, obj string
	cpp      bool
}

// Compile runs every step. A located compile error is returned as
// *CompileError.
func (c *Compiler) Compile(ctx context.Context, req Request) (*Result, error) {
	s := &scraper{buildPath: req.BuildPath, sketch: req.Sketch, unit: req.Unit, console: c.Console}

	opts := toolchain.CompileOptions{
		Target:     req.Target,
		Includes:   append([]string{req.CorePath}, req.LibraryDirs...),
		ExtraFlags: req.ExtraFlags,
	}

	var cJobs, cppJobs []job
	var sketchObjs, coreObjs []string

	primary := filepath.Join(req.BuildPath, req.Unit.FileName())
	cppJobs = append(cppJobs, job{src: primary, obj: primary + ".o", cpp: true})
	sketchObjs = append(sketchObjs, primary+".o")

	for _, f := range req.Sketch.Files {
		src := filepath.Join(req.BuildPath, f.FileName)
		switch f.Flavor {
		case sketch.C:
			cJobs = append(cJobs, job{src: src, obj: src + ".o"})
			sketchObjs = append(sketchObjs, src+".o")
		case sketch.CPP:
			cppJobs = append(cppJobs, job{src: src, obj: src + ".o", cpp: true})
			sketchObjs = append(sketchObjs, src+".o")
		}
	}

	coreSrcs, err := CoreSources(req.CorePath)
	if err != nil {
		return nil, err
	}
	// core objects get their own folder so a sketch wiring.c does not
	// clobber the core's
	coreObjDir := filepath.Join(req.BuildPath, "core")
	if err := os.MkdirAll(coreObjDir, 0755); err != nil {
		return nil, fmt.Errorf("creating core object folder: %w", err)
	}
	for _, name := range coreSrcs {
		j := job{
			src: filepath.Join(req.CorePath, name),
			obj: filepath.Join(coreObjDir, name+".o"),
			cpp: strings.HasSuffix(name, ".cpp"),
		}
		coreObjs = append(coreObjs, j.obj)
		if j.cpp {
			cppJobs = append(cppJobs, j)
		} else {
			cJobs = append(cJobs, j)
		}
	}

	for _, j := range append(cJobs, cppJobs...) {
		argv := c.Toolchain.CompileC(opts, j.src, j.obj)
		if j.cpp {
			argv = c.Toolchain.CompileCPP(opts, j.src, j.obj)
		}
		if err := c.exec(ctx, s, argv); err != nil {
			return nil, err
		}
	}

	archive := filepath.Join(req.BuildPath, "core.a")
	if err := os.Remove(archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, obj := range coreObjs {
		if err := c.exec(ctx, s, c.Toolchain.Archive(archive, obj)); err != nil {
			return nil, err
		}
	}

	res := &Result{
		Elf: filepath.Join(req.BuildPath, req.Unit.Name+".elf"),
		Eep: filepath.Join(req.BuildPath, req.Unit.Name+".eep"),
		Hex: filepath.Join(req.BuildPath, req.Unit.Name+".hex"),
	}
	objs := append(append([]string{}, req.LibraryObjects...), sketchObjs...)
	steps := [][]string{
		c.Toolchain.Link(req.Target.MCU, res.Elf, objs, archive, req.BuildPath),
		c.Toolchain.ObjcopyEEPROM(res.Elf, res.Eep),
		c.Toolchain.ObjcopyHex(res.Elf, res.Hex),
	}
	for _, argv := range steps {
		if err := c.exec(ctx, s, argv); err != nil {
			return nil, err
		}
	}
	res.Warnings = s.warnings()
	return res, nil
}

// Check runs every sketch unit through the compiler with -fsyntax-only
// -Wall and returns every diagnostic, mapped back to sketch files.
func (c *Compiler) Check(ctx context.Context, req Request) ([]Diagnostic, error) {
	s := &scraper{buildPath: req.BuildPath, sketch: req.Sketch, unit: req.Unit, console: c.Console, collectAll: true}
	opts := toolchain.CompileOptions{
		Target:     req.Target,
		Includes:   append([]string{req.CorePath}, req.LibraryDirs...),
		Warnings:   toolchain.WarnAll,
		SyntaxOnly: true,
		ExtraFlags: req.ExtraFlags,
	}

	units := [][]string{c.Toolchain.CompileCPP(opts, filepath.Join(req.BuildPath, req.Unit.FileName()), "")}
	for _, f := range req.Sketch.Files {
		src := filepath.Join(req.BuildPath, f.FileName)
		switch f.Flavor {
		case sketch.C:
			units = append(units, c.Toolchain.CompileC(opts, src, ""))
		case sketch.CPP:
			units = append(units, c.Toolchain.CompileCPP(opts, src, ""))
		}
	}
	for _, argv := range units {
		before := s.errorCount()
		code, err := c.Runner.Run(ctx, argv, s.consume)
		if err != nil {
			return s.diagnostics, err
		}
		if code == 0 || s.errorCount() > before {
			continue
		}
		// failed without an error we could place in the sketch, e.g. one
		// in a core or library header
		if code == 1 {
			return s.diagnostics, fmt.Errorf("%w: %s exited with 1", ErrBuildFailed, filepath.Base(argv[0]))
		}
		return s.diagnostics, fmt.Errorf("%w: %s exited with %d", ErrCompilerCrashed, filepath.Base(argv[0]), code)
	}
	return s.diagnostics, nil
}

func (c *Compiler) exec(ctx context.Context, s *scraper, argv []string) error {
	code, err := c.Runner.Run(ctx, argv, s.consume)
	if err != nil {
		return err
	}
	if s.first != nil {
		return s.first
	}
	switch code {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: %s exited with 1", ErrBuildFailed, filepath.Base(argv[0]))
	default:
		return fmt.Errorf("%w: %s exited with %d", ErrCompilerCrashed, filepath.Base(argv[0]), code)
	}
}
