// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: sketch  -  multi-file sketch folders
//
//  A sketch is a folder named after its main file:
//
//    Blink/
//      Blink.pde      ← main file, always index 0
//      helpers.pde    ← extra tabs, concatenated after the main file
//      motor.cpp      ← compiled as its own unit
//      motor.h
// ─────────────────────────────────────────────────────────────────────────────

package sketch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrNotSketch     = errors.New("not a sketch")
	ErrNoMainFile    = errors.New("sketch has no main file")
	ErrInvalidName   = errors.New("invalid file name")
	ErrDuplicateFile = errors.New("file already exists in sketch")
	ErrNoSuchFile    = errors.New("no such file in sketch")
	ErrMainFile      = errors.New("the main file cannot be removed")
	// ErrReservedName is returned for <SketchName>.cpp, which the build
	// writes the preprocessed sketch to.
	ErrReservedName  = errors.New("file name is reserved for the sketch")
)

// Flavor classifies a source file by extension.
type Flavor int

const (
	PDE Flavor = iota
	C
	CPP
	H
)

func (f Flavor) String() string {
	switch f {
	case PDE:
		return "pde"
	case C:
		return "c"
	case CPP:
		return "cpp"
	case H:
		return "h"
	}
	return "unknown"
}

// FlavorOf returns the flavor for a file name and whether it belongs in a
// sketch at all. .ino is treated as .pde.
func FlavorOf(fileName string) (Flavor, bool) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pde", ".ino":
		return PDE, true
	case ".c":
		return C, true
	case ".cpp":
		return CPP, true
	case ".h":
		return H, true
	}
	return 0, false
}

// SourceFile is one tab of a sketch.
type SourceFile struct {
	Name     string // base name without extension
	FileName string // name with extension
	Path     string
	Program  string
	Flavor   Flavor

	// Offset is the 0-based line at which this file starts inside the
	// concatenated unit. Only meaningful for PDE files after preprocessing.
	Offset int
}

// LineCount is the number of '\n' plus one.
func (f *SourceFile) LineCount() int {
	return LineCount(f.Program)
}

// Save writes Program back to Path.
func (f *SourceFile) Save() error {
	return os.WriteFile(f.Path, []byte(f.Program), 0644)
}

// LineCount counts lines the way the offset bookkeeping does: every '\n'
// starts a new line, so "" is one line and "a\n" is two.
func LineCount(s string) int {
	return strings.Count(s, "\n") + 1
}

// Sketch is an ordered set of source files; Files[0] is the main file.
type Sketch struct {
	Folder string
	Name   string
	Files  []*SourceFile
}

// Main returns the main file.
func (s *Sketch) Main() *SourceFile { return s.Files[0] }

// PDE returns the PDE-flavored files in sketch order.
func (s *Sketch) PDE() []*SourceFile {
	var out []*SourceFile
	for _, f := range s.Files {
		if f.Flavor == PDE {
			out = append(out, f)
		}
	}
	return out
}

// Index returns the position of the file with the given file name, or -1.
func (s *Sketch) Index(fileName string) int {
	for i, f := range s.Files {
		if strings.EqualFold(f.FileName, fileName) {
			return i
		}
	}
	return -1
}

// Load opens a sketch from its folder or its main file.
func Load(path string) (*Sketch, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	var folder, mainPath string
	if info.IsDir() {
		folder = abs
		name := filepath.Base(folder)
		for _, ext := range []string{".pde", ".ino"} {
			p := filepath.Join(folder, name+ext)
			if _, err := os.Stat(p); err == nil {
				mainPath = p
				break
			}
		}
		if mainPath == "" {
			return nil, fmt.Errorf("%w: expected %s.pde or %s.ino in %s", ErrNoMainFile, name, name, folder)
		}
	} else {
		if fl, ok := FlavorOf(abs); !ok || fl != PDE {
			return nil, fmt.Errorf("%w: %s", ErrNotSketch, path)
		}
		folder = filepath.Dir(abs)
		mainPath = abs
	}

	s := &Sketch{
		Folder: folder,
		Name:   strings.TrimSuffix(filepath.Base(mainPath), filepath.Ext(mainPath)),
	}
	if err := s.reload(mainPath); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every file from disk.
func (s *Sketch) Reload() error {
	return s.reload(s.Main().Path)
}

func (s *Sketch) reload(mainPath string) error {
	entries, err := os.ReadDir(s.Folder)
	if err != nil {
		return err
	}

	var main *SourceFile
	var rest []*SourceFile
	for _, e := range entries {
		name := e.Name()
		// dot files include the ._ resource forks macOS leaves on FAT drives
		if strings.HasPrefix(name, ".") || e.IsDir() {
			continue
		}
		flavor, ok := FlavorOf(name)
		if !ok {
			continue
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		if !IsSanitaryName(base) {
			continue
		}
		if flavor == CPP && strings.EqualFold(base, s.Name) {
			return fmt.Errorf("%w: %s (rename it)", ErrReservedName, name)
		}
		p := filepath.Join(s.Folder, name)
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		f := &SourceFile{Name: base, FileName: name, Path: p, Program: string(data), Flavor: flavor}
		if p == mainPath {
			main = f
		} else {
			rest = append(rest, f)
		}
	}
	if main == nil {
		return fmt.Errorf("%w: %s", ErrNoMainFile, mainPath)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].FileName < rest[j].FileName })
	s.Files = append([]*SourceFile{main}, rest...)
	return nil
}

const template = `void setup()
{
}

void loop()
{
}
`

// New creates <parent>/<name>/<name>.pde from the setup/loop template. The
// name is sanitized first.
func New(parent, name string) (*Sketch, error) {
	name = SanitizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty sketch name", ErrInvalidName)
	}
	folder := filepath.Join(parent, name)
	if _, err := os.Stat(folder); err == nil {
		return nil, fmt.Errorf("%s already exists", folder)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("creating sketch folder: %w", err)
	}
	mainPath := filepath.Join(folder, name+".pde")
	if err := os.WriteFile(mainPath, []byte(template), 0644); err != nil {
		return nil, err
	}
	return Load(folder)
}

// AddFile creates an empty tab. A name without extension becomes a .pde.
func (s *Sketch) AddFile(fileName string) (*SourceFile, error) {
	fileName, flavor, err := s.checkNewName(fileName)
	if err != nil {
		return nil, err
	}
	p := filepath.Join(s.Folder, fileName)
	if err := os.WriteFile(p, nil, 0644); err != nil {
		return nil, err
	}
	f := &SourceFile{
		Name:     strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		FileName: fileName,
		Path:     p,
		Flavor:   flavor,
	}
	s.Files = append(s.Files, f)
	s.sortTabs()
	return f, nil
}

// RenameFile renames a tab. Renaming the main file renames the sketch
// folder too, and the main file must stay a .pde.
func (s *Sketch) RenameFile(oldName, newName string) error {
	i := s.Index(oldName)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchFile, oldName)
	}
	newName, flavor, err := s.checkNewName(newName)
	if err != nil {
		return err
	}
	f := s.Files[i]
	base := strings.TrimSuffix(newName, filepath.Ext(newName))

	if i == 0 {
		if flavor != PDE {
			return fmt.Errorf("%w: the main file must be a .pde or .ino file", ErrInvalidName)
		}
		if s.Index(base+".cpp") >= 0 {
			return fmt.Errorf("%w: %s.cpp", ErrReservedName, base)
		}
		newFolder := filepath.Join(filepath.Dir(s.Folder), base)
		if _, err := os.Stat(newFolder); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, newFolder)
		}
		if err := os.Rename(f.Path, filepath.Join(s.Folder, newName)); err != nil {
			return err
		}
		if err := os.Rename(s.Folder, newFolder); err != nil {
			return err
		}
		s.Folder = newFolder
		s.Name = base
		for _, other := range s.Files[1:] {
			other.Path = filepath.Join(newFolder, other.FileName)
		}
	} else if err := os.Rename(f.Path, filepath.Join(s.Folder, newName)); err != nil {
		return err
	}

	f.Name = base
	f.FileName = newName
	f.Path = filepath.Join(s.Folder, newName)
	f.Flavor = flavor
	s.sortTabs()
	return nil
}

// RemoveFile deletes a tab from disk. The main file is protected.
func (s *Sketch) RemoveFile(fileName string) error {
	i := s.Index(fileName)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNoSuchFile, fileName)
	}
	if i == 0 {
		return ErrMainFile
	}
	if err := os.Remove(s.Files[i].Path); err != nil {
		return err
	}
	s.Files = append(s.Files[:i], s.Files[i+1:]...)
	return nil
}

func (s *Sketch) checkNewName(fileName string) (string, Flavor, error) {
	if filepath.Ext(fileName) == "" {
		fileName += ".pde"
	}
	flavor, ok := FlavorOf(fileName)
	if !ok {
		return "", 0, fmt.Errorf("%w: %s (use .pde, .ino, .c, .cpp or .h)", ErrInvalidName, fileName)
	}
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" || !IsSanitaryName(base) {
		return "", 0, fmt.Errorf("%w: %q (letters, digits and _ only, no leading digit)", ErrInvalidName, base)
	}
	if s.Index(fileName) >= 0 {
		return "", 0, fmt.Errorf("%w: %s", ErrDuplicateFile, fileName)
	}
	if flavor == CPP && strings.EqualFold(base, s.Name) {
		return "", 0, fmt.Errorf("%w: %s", ErrReservedName, fileName)
	}
	// foo.pde and foo.ino would both be "foo" in the concatenated unit
	if flavor == PDE {
		for _, f := range s.Files {
			if f.Flavor == PDE && strings.EqualFold(f.Name, base) {
				return "", 0, fmt.Errorf("%w: %s", ErrDuplicateFile, f.FileName)
			}
		}
	}
	return fileName, flavor, nil
}

func (s *Sketch) sortTabs() {
	rest := s.Files[1:]
	sort.Slice(rest, func(i, j int) bool { return rest[i].FileName < rest[j].FileName })
}

// SanitizeName replaces everything except ASCII letters and digits with
// '_', prefixes a leading digit with '_' and truncates to 63 characters.
func SanitizeName(name string) string {
	if name == "" {
		return ""
	}
	var sb strings.Builder
	if name[0] >= '0' && name[0] <= '9' {
		sb.WriteByte('_')
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	if len(out) > 63 {
		out = out[:63]
	}
	return out
}

// IsSanitaryName reports whether SanitizeName leaves name unchanged.
func IsSanitaryName(name string) bool {
	return name != "" && SanitizeName(name) == name
}
