// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: library  -  discover, build and install sketch libraries
//
//  Library search roots (first root wins on a name clash):
//    1. <sketchbook>/libraries
//    2. <hardware>/libraries
//
//  A library is a folder with at least one top-level header:
//
//    Servo/
//      Servo.h
//      Servo.cpp
//      utility/        ← optional, compiled and put on the include path
//      examples/       ← ignored by the build
// ─────────────────────────────────────────────────────────────────────────────

package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrNotLibrary    = errors.New("not a library (no header file)")
	ErrUnknown       = errors.New("unknown library")
	ErrAlreadyExists = errors.New("library already installed")
)

// Library is one library folder.
type Library struct {
	Name    string
	Folder  string
	Headers []string // top-level .h names
	Sources []string // .c/.cpp paths relative to Folder, utility/ included
}

// Open inspects folder.
func Open(folder string) (*Library, error) {
	fsys := os.DirFS(folder)
	headers, err := doublestar.Glob(fsys, "*.h")
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotLibrary, folder)
	}
	sort.Strings(headers)

	patterns := []string{"*.{c,cpp}"}
	if util := utilityName(folder); util != "" {
		patterns = append(patterns, util+"/*.{c,cpp}")
	}
	var sources []string
	for _, p := range patterns {
		m, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, err
		}
		sort.Strings(m)
		sources = append(sources, m...)
	}

	return &Library{
		Name:    filepath.Base(folder),
		Folder:  folder,
		Headers: headers,
		Sources: sources,
	}, nil
}

// utilityName returns the name of the utility sub-folder, matched
// case-insensitively, or "".
func utilityName(folder string) string {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), "utility") {
			return e.Name()
		}
	}
	return ""
}

// UtilityFolder is the absolute utility folder, or "" when there is none.
func (l *Library) UtilityFolder() string {
	if u := utilityName(l.Folder); u != "" {
		return filepath.Join(l.Folder, u)
	}
	return ""
}

// IncludeDirs is the folder plus its utility folder.
func (l *Library) IncludeDirs() []string {
	dirs := []string{l.Folder}
	if u := l.UtilityFolder(); u != "" {
		dirs = append(dirs, u)
	}
	return dirs
}

// IsBuildable reports whether the library has anything to compile.
func (l *Library) IsBuildable() bool {
	return len(l.Sources) > 0
}

// ObjectDir is where the library's objects go inside a build folder.
func (l *Library) ObjectDir(buildPath string) string {
	return filepath.Join(buildPath, "libraries", l.Name)
}

// ObjectFor maps a source (relative to Folder) to its object path.
func (l *Library) ObjectFor(buildPath, src string) string {
	return filepath.Join(l.ObjectDir(buildPath), filepath.FromSlash(src)+".o")
}

// Objects lists the objects present in the build folder.
func (l *Library) Objects(buildPath string) []string {
	var out []string
	for _, src := range l.Sources {
		obj := l.ObjectFor(buildPath, src)
		if _, err := os.Stat(obj); err == nil {
			out = append(out, obj)
		}
	}
	return out
}

// IsBuilt reports whether every source has an object that is not older
// than the source.
func (l *Library) IsBuilt(buildPath string) bool {
	if len(l.Objects(buildPath)) < len(l.Sources) {
		return false
	}
	for _, src := range l.Sources {
		si, err := os.Stat(filepath.Join(l.Folder, filepath.FromSlash(src)))
		if err != nil {
			return false
		}
		oi, err := os.Stat(l.ObjectFor(buildPath, src))
		if err != nil || oi.ModTime().Before(si.ModTime()) {
			return false
		}
	}
	return true
}

// ── Set ──────────────────────────────────────────────────────────────────────

// Set is every library found under a list of roots.
type Set struct {
	libs []*Library
}

// Scan reads each root in order. Missing roots are skipped; folders
// without headers are not libraries; the first library with a given name
// wins.
func Scan(roots ...string) (*Set, error) {
	s := &Set{}
	seen := map[string]bool{}
	for _, root := range roots {
		if root == "" {
			continue
		}
		entries, err := os.ReadDir(root)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading libraries in %s: %w", root, err)
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || seen[e.Name()] {
				continue
			}
			lib, err := Open(filepath.Join(root, e.Name()))
			if errors.Is(err, ErrNotLibrary) {
				continue
			}
			if err != nil {
				return nil, err
			}
			seen[lib.Name] = true
			s.libs = append(s.libs, lib)
		}
	}
	return s, nil
}

// All returns the libraries in scan order.
func (s *Set) All() []*Library { return s.libs }

// Get finds a library by name.
func (s *Set) Get(name string) (*Library, error) {
	for _, l := range s.libs {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknown, name)
}

// Resolve maps #include'd header names onto libraries, in include order
// and without duplicates. Headers no library provides are ignored; they
// belong to the core or the sketch.
func (s *Set) Resolve(headers []string) []*Library {
	var out []*Library
	used := map[*Library]bool{}
	for _, h := range headers {
		h = filepath.Base(filepath.FromSlash(h))
		for _, l := range s.libs {
			if used[l] || !contains(l.Headers, h) {
				continue
			}
			used[l] = true
			out = append(out, l)
			break
		}
	}
	return out
}

// Dirs returns the include folders of every library, so libraries can
// include one another.
func (s *Set) Dirs() []string {
	var out []string
	for _, l := range s.libs {
		out = append(out, l.IncludeDirs()...)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
