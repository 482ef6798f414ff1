package library

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/toolchain"
)

// BuildError is returned when the compiler mentions an error while
// building a library. Output keeps every line the compiler printed.
type BuildError struct {
	Library string
	Output  []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("Error building library %q", e.Library)
}

// Builder compiles libraries into a build folder.
type Builder struct {
	Toolchain *toolchain.Toolchain
	Runner    *runner.Runner
	// Console receives compiler output with the library folder prefix
	// stripped. nil = discard.
	Console io.Writer
}

// BuildOptions are shared by every library of one build.
type BuildOptions struct {
	BuildPath string
	CorePath  string
	Target    toolchain.Target
	// AllDirs is every library include folder (Set.Dirs).
	AllDirs    []string
	ExtraFlags []string
}

// Build compiles lib unless it is already built and returns its objects.
// Libraries without sources yield no objects.
func (b *Builder) Build(ctx context.Context, lib *Library, o BuildOptions) ([]string, error) {
	if !lib.IsBuildable() {
		return nil, nil
	}
	if lib.IsBuilt(o.BuildPath) {
		return lib.Objects(o.BuildPath), nil
	}

	includes := append([]string{o.CorePath}, lib.IncludeDirs()...)
	includes = append(includes, o.AllDirs...)
	opts := toolchain.CompileOptions{
		Target:     o.Target,
		Includes:   includes,
		Warnings:   toolchain.WarnAll,
		ExtraFlags: o.ExtraFlags,
	}

	prefix := lib.Folder + string(filepath.Separator)
	var output []string
	failed := false
	consume := func(line string) {
		output = append(output, line)
		if b.Console != nil {
			fmt.Fprintln(b.Console, strings.ReplaceAll(line, prefix, ""))
		}
		if strings.Contains(line, "error") {
			failed = true
		}
	}

	var objs []string
	for _, src := range lib.Sources {
		obj := lib.ObjectFor(o.BuildPath, src)
		if err := os.MkdirAll(filepath.Dir(obj), 0755); err != nil {
			return nil, err
		}
		abs := filepath.Join(lib.Folder, filepath.FromSlash(src))
		argv := b.Toolchain.CompileC(opts, abs, obj)
		if strings.HasSuffix(src, ".cpp") {
			argv = b.Toolchain.CompileCPP(opts, abs, obj)
		}
		code, err := b.Runner.Run(ctx, argv, consume)
		if err != nil {
			return nil, err
		}
		if failed || code != 0 {
			return nil, &BuildError{Library: lib.Name, Output: output}
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
