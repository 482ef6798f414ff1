// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: manifest  -  optional per-sketch sketch.toml
//
//    [sketch]                     [build]                  [upload]
//    board      = "uno"           output_dir  = "build"    using   = "bootloader"
//    programmer = "avrispmkii"    verbose     = false      speed   = 115200
//    port       = "/dev/ttyACM0"  extra_flags = ["-DX"]    verbose = false
//
//    [libraries]
//    Servo = "https://example.org/Servo.zip"
//
//  Precedence: command-line flag > sketch.toml > preferences > defaults.
// ─────────────────────────────────────────────────────────────────────────────

package manifest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tsuki/sketchc/internal/prefs"
)

const FileName = "sketch.toml"

// Manifest is the parsed sketch.toml. Unset fields leave the preference
// in charge.
type Manifest struct {
	Sketch    SketchConfig      `toml:"sketch"`
	Build     BuildConfig       `toml:"build"`
	Upload    UploadConfig      `toml:"upload"`
	Libraries map[string]string `toml:"libraries"` // name → install source
}

type SketchConfig struct {
	Board      string `toml:"board"`
	Programmer string `toml:"programmer"`
	Port       string `toml:"port"`
}

type BuildConfig struct {
	// OutputDir is relative to the sketch folder unless absolute.
	OutputDir  string   `toml:"output_dir"`
	Verbose    *bool    `toml:"verbose"`
	ExtraFlags []string `toml:"extra_flags"`
}

type UploadConfig struct {
	Using   string `toml:"using"`
	Speed   int    `toml:"speed"`
	Verbose *bool  `toml:"verbose"`
}

// Exists reports whether dir holds a sketch.toml.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// Load reads dir/sketch.toml. A missing file yields an empty manifest.
// Unknown keys are logged and otherwise ignored.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m := &Manifest{}
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, k := range md.Undecoded() {
		slog.Warn("unknown key in sketch.toml", "key", k.String(), "file", path)
	}
	return m, nil
}

// Apply returns a copy of p with the manifest's settings laid over it.
// dir is the sketch folder, used to resolve build.output_dir.
func (m *Manifest) Apply(dir string, p prefs.Map) prefs.Map {
	out := p.Clone()
	set := func(key, v string) {
		if v != "" {
			out.Set(key, v)
		}
	}
	set(prefs.KeyBoard, m.Sketch.Board)
	set(prefs.KeyProgrammer, m.Sketch.Programmer)
	set(prefs.KeySerialPort, m.Sketch.Port)
	set(prefs.KeyUploadUsing, m.Upload.Using)

	if d := m.Build.OutputDir; d != "" {
		if !filepath.IsAbs(d) {
			d = filepath.Join(dir, d)
		}
		out.Set(prefs.KeyBuildPath, d)
	}
	if m.Build.Verbose != nil {
		out.SetBool(prefs.KeyBuildVerbose, *m.Build.Verbose)
	}
	if m.Upload.Verbose != nil {
		out.SetBool(prefs.KeyUploadVerbose, *m.Upload.Verbose)
	}
	return out
}

// Save writes dir/sketch.toml.
func (m *Manifest) Save(dir string) error {
	return os.WriteFile(filepath.Join(dir, FileName), []byte(m.ToTOML()), 0644)
}

// ToTOML renders the manifest, leaving out unset keys.
func (m *Manifest) ToTOML() string {
	var sb strings.Builder
	writeKV := func(k, v string) {
		if v != "" {
			sb.WriteString(fmt.Sprintf("%-11s = %q\n", k, v))
		}
	}
	writeBool := func(k string, v *bool) {
		if v != nil {
			sb.WriteString(fmt.Sprintf("%-11s = %v\n", k, *v))
		}
	}

	sb.WriteString("# sketchc sketch settings; these override preferences.txt\n\n")
	sb.WriteString("[sketch]\n")
	writeKV("board", m.Sketch.Board)
	writeKV("programmer", m.Sketch.Programmer)
	writeKV("port", m.Sketch.Port)

	sb.WriteString("\n[build]\n")
	writeKV("output_dir", m.Build.OutputDir)
	writeBool("verbose", m.Build.Verbose)
	if len(m.Build.ExtraFlags) > 0 {
		quoted := make([]string, len(m.Build.ExtraFlags))
		for i, f := range m.Build.ExtraFlags {
			quoted[i] = fmt.Sprintf("%q", f)
		}
		sb.WriteString(fmt.Sprintf("%-11s = [%s]\n", "extra_flags", strings.Join(quoted, ", ")))
	}

	sb.WriteString("\n[upload]\n")
	writeKV("using", m.Upload.Using)
	if m.Upload.Speed > 0 {
		sb.WriteString(fmt.Sprintf("%-11s = %d\n", "speed", m.Upload.Speed))
	}
	writeBool("verbose", m.Upload.Verbose)

	if len(m.Libraries) > 0 {
		sb.WriteString("\n[libraries]\n")
		for _, name := range m.LibraryNames() {
			sb.WriteString(fmt.Sprintf("%-14s = %q\n", tomlKey(name), m.Libraries[name]))
		}
	}
	return sb.String()
}

// Default returns the manifest `sketchc new` writes.
func Default(board string) *Manifest {
	return &Manifest{
		Sketch: SketchConfig{Board: board},
		Build:  BuildConfig{OutputDir: "build"},
	}
}

// ── Libraries ────────────────────────────────────────────────────────────────

// LibraryNames returns the declared libraries, sorted.
func (m *Manifest) LibraryNames() []string {
	names := make([]string, 0, len(m.Libraries))
	for n := range m.Libraries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasLibrary reports whether the manifest declares the given library.
func (m *Manifest) HasLibrary(name string) bool {
	_, ok := m.Libraries[name]
	return ok
}

// AddLibrary records a library and where it was installed from. It
// returns false when the library was already declared with that source.
func (m *Manifest) AddLibrary(name, source string) bool {
	if m.Libraries == nil {
		m.Libraries = make(map[string]string)
	}
	if old, ok := m.Libraries[name]; ok && old == source {
		return false
	}
	m.Libraries[name] = source
	return true
}

// RemoveLibrary forgets a library.
func (m *Manifest) RemoveLibrary(name string) bool {
	if !m.HasLibrary(name) {
		return false
	}
	delete(m.Libraries, name)
	return true
}

// tomlKey quotes a key unless it is a valid bare key.
func tomlKey(k string) string {
	if k == "" {
		return `""`
	}
	for _, r := range k {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return fmt.Sprintf("%q", k)
		}
	}
	return k
}
