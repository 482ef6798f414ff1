package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/build"
	"github.com/tsuki/sketchc/internal/manifest"
	"github.com/tsuki/sketchc/internal/preproc"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/toolchain"
	"github.com/tsuki/sketchc/internal/ui"
)

// overrides maps preference keys to flag values. Empty values are
// ignored so that an unset flag leaves the lower layers in charge.
type overrides map[string]string

// settings is the effective configuration for one folder: preferences
// with sketch.toml and the command-line flags laid over them.
type settings struct {
	Dir      string
	Manifest *manifest.Manifest
	Prefs    prefs.Map
}

func loadSettings(dir string, o overrides) (*settings, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}
	p := m.Apply(dir, pf)
	for k, v := range o {
		if v != "" {
			p.Set(k, v)
		}
	}
	if globalVerbose {
		p.SetBool(prefs.KeyBuildVerbose, true)
		p.SetBool(prefs.KeyUploadVerbose, true)
	}
	return &settings{Dir: dir, Manifest: m, Prefs: p}, nil
}

func (st *settings) catalog() (*boards.Catalog, error) {
	return boards.Load(st.Prefs.Get(prefs.KeyHardwarePath))
}

func (st *settings) board() (*boards.Board, error) {
	c, err := st.catalog()
	if err != nil {
		return nil, err
	}
	b, err := c.Board(st.Prefs.Get(prefs.KeyBoard))
	if err != nil {
		return nil, fmt.Errorf("%w; run `sketchc boards` for the full list", err)
	}
	return b, nil
}

func (st *settings) toolchain() *toolchain.Toolchain {
	return toolchain.New(st.Prefs.Get(prefs.KeyCompilerPath))
}

func (st *settings) hardware() build.Hardware {
	return build.Hardware{Root: st.Prefs.Get(prefs.KeyHardwarePath)}
}

// libraryRoot is where `sketchc lib install` puts libraries.
func libraryRoot(p prefs.Map) string {
	return filepath.Join(p.Get(prefs.KeySketchbookPath), "libraries")
}

// session is an opened sketch plus its settings.
type session struct {
	*settings
	Sketch *sketch.Sketch
}

func sketchArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return projectDir()
}

func openSketch(args []string, o overrides) (*session, error) {
	s, err := sketch.Load(sketchArg(args))
	if err != nil {
		return nil, err
	}
	st, err := loadSettings(s.Folder, o)
	if err != nil {
		return nil, err
	}
	slog.Debug("sketch opened", "name", s.Name, "folder", s.Folder, "files", len(s.Files))
	return &session{settings: st, Sketch: s}, nil
}

func (s *session) buildOptions() (build.Options, error) {
	b, err := s.board()
	if err != nil {
		return build.Options{}, err
	}
	p := s.Prefs
	return build.Options{
		Board:        b,
		Toolchain:    s.toolchain(),
		Hardware:     s.hardware(),
		BuildPath:    p.Get(prefs.KeyBuildPath),
		LibraryRoots: []string{libraryRoot(p)},
		Preproc:      preproc.Options{SubstituteUnicode: p.GetBool(prefs.KeySubstituteUnicode)},
		ExtraFlags:   s.Manifest.Build.ExtraFlags,
		Verbose:      p.GetBool(prefs.KeyBuildVerbose),
		Console:      os.Stdout,
		Progress:     ui.Step,
	}, nil
}
