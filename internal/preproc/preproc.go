// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: preproc  -  turn a sketch into one C++ translation unit
//
//  Every .pde/.ino tab is concatenated in sketch order, then a header is
//  prepended:
//
//    #include "WProgram.h"        ← line 1
//    void blink(int n);           ← one line per extracted prototype
//    <tab 0>
//    <tab 1>
//    ...
//
//  Offsets are kept per tab so compiler line numbers can be mapped back.
// ─────────────────────────────────────────────────────────────────────────────

package preproc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/tsuki/sketchc/internal/sketch"
)

// HeaderInclude is the first line of every generated unit.
const HeaderInclude = `#include "WProgram.h"`

var ErrNoCode = errors.New("sketch has no .pde or .ino code")

// Options tunes preprocessing.
type Options struct {
	// SubstituteUnicode rewrites non-ASCII characters as \uXXXX escapes
	// and non-breaking spaces as plain spaces.
	SubstituteUnicode bool
}

// Unit is the preprocessed sketch.
type Unit struct {
	Name        string
	Code        string // header + program, as written to <Name>.cpp
	Program     string // the concatenated tabs
	HeaderLines int
	Prototypes  []string
	Includes    []string

	// Offsets[i] is the starting line of sketch file i inside Program, or
	// -1 when file i is not a PDE tab.
	Offsets []int
}

// Preprocess concatenates the sketch tabs and builds the unit. Each PDE
// file's Offset field is updated to match the unit.
func Preprocess(s *sketch.Sketch, opts Options) (*Unit, error) {
	var b strings.Builder
	offsets := make([]int, len(s.Files))
	lines := 0
	pdeCount := 0
	for i, f := range s.Files {
		if f.Flavor != sketch.PDE {
			offsets[i] = -1
			continue
		}
		pdeCount++
		f.Offset = lines
		offsets[i] = lines
		b.WriteString(f.Program)
		b.WriteByte('\n')
		lines += f.LineCount()
	}
	if pdeCount == 0 {
		return nil, ErrNoCode
	}

	program := b.String()
	if opts.SubstituteUnicode {
		program = SubstituteUnicode(program)
	}

	u := &Unit{
		Name:       s.Name,
		Program:    program,
		Prototypes: Prototypes(program),
		Includes:   Includes(program),
		Offsets:    offsets,
	}
	u.HeaderLines = 1 + len(u.Prototypes)

	var code strings.Builder
	code.WriteString(HeaderInclude + "\n")
	for _, p := range u.Prototypes {
		code.WriteString(p + "\n")
	}
	code.WriteString(program)
	u.Code = code.String()
	return u, nil
}

// Map turns a 1-based line of the generated file into the sketch file
// index and the 1-based line inside that file. Lines that fall inside the
// header are reported as file 0, line 1.
func (u *Unit) Map(line int) (file, local int) {
	idx := line - u.HeaderLines - 1
	if idx < 0 {
		return 0, 1
	}
	file = -1
	for i, off := range u.Offsets {
		if off >= 0 && off <= idx {
			file = i
		}
	}
	if file < 0 {
		return 0, 1
	}
	return file, idx - u.Offsets[file] + 1
}

// FileName is the name of the generated source, <Name>.cpp.
func (u *Unit) FileName() string {
	return u.Name + ".cpp"
}

// WriteTo writes the unit into dir and returns the file path.
func (u *Unit) WriteTo(dir string) (string, error) {
	p := filepath.Join(dir, u.FileName())
	if err := os.WriteFile(p, []byte(u.Code), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", u.FileName(), err)
	}
	return p, nil
}

// SubstituteUnicode replaces every UTF-16 code unit above 127 with a
// lowercase \uXXXX escape; U+00A0 becomes a space.
func SubstituteUnicode(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 128:
			b.WriteRune(r)
		case r == 0xa0:
			b.WriteByte(' ')
		default:
			for _, unit := range utf16.Encode([]rune{r}) {
				fmt.Fprintf(&b, "\\u%04x", unit)
			}
		}
	}
	return b.String()
}

// ── Prototype and include scanning ──────────────────────────────────────────

var (
	prototypeRe = regexp.MustCompile(`(?m)^(\w+)\s+(\w+)\s*\(([^)]*)\)\s*\{`)
	includeRe   = regexp.MustCompile(`(?m)^[ \t]*#[ \t]*include[ \t]*[<"]([^>"\n]+)[>"]`)
)

var notATypeOrName = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"switch": true, "case": true, "return": true, "sizeof": true,
}

// Prototypes returns "type name(params);" for every top-level function
// definition except setup and loop, in source order, without duplicates.
func Prototypes(program string) []string {
	clean := Scrub(program, true)
	seen := map[string]bool{}
	var out []string
	for _, m := range prototypeRe.FindAllStringSubmatch(clean, -1) {
		ret, name := m[1], m[2]
		if name == "setup" || name == "loop" {
			continue
		}
		if notATypeOrName[ret] || notATypeOrName[name] {
			continue
		}
		params := strings.Join(strings.Fields(strings.ReplaceAll(m[3], "\n", " ")), " ")
		p := ret + " " + name + "(" + params + ");"
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Includes lists the headers named by #include directives, in order and
// without duplicates.
func Includes(program string) []string {
	clean := Scrub(program, false)
	seen := map[string]bool{}
	var out []string
	for _, m := range includeRe.FindAllStringSubmatch(clean, -1) {
		h := strings.TrimSpace(m[1])
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

// Scrub removes comments, keeping every newline so line numbers survive.
// With blankLiterals set the contents of string and character literals are
// dropped as well.
func Scrub(src string, blankLiterals bool) string {
	var b strings.Builder
	b.Grow(len(src))
	const (
		code = iota
		lineComment
		blockComment
		str
		char
	)
	state := code
	for i := 0; i < len(src); i++ {
		c := src[i]
		var next byte
		if i+1 < len(src) {
			next = src[i+1]
		}
		switch state {
		case code:
			switch {
			case c == '/' && next == '/':
				state = lineComment
				i++
			case c == '/' && next == '*':
				state = blockComment
				b.WriteByte(' ')
				i++
			case c == '"':
				state = str
				b.WriteByte(c)
			case c == '\'':
				state = char
				b.WriteByte(c)
			default:
				b.WriteByte(c)
			}
		case lineComment:
			if c == '\n' {
				state = code
				b.WriteByte(c)
			}
		case blockComment:
			if c == '*' && next == '/' {
				state = code
				i++
			} else if c == '\n' {
				b.WriteByte(c)
			}
		case str, char:
			quote := byte('"')
			if state == char {
				quote = '\''
			}
			switch {
			case c == '\\' && next != 0:
				if !blankLiterals {
					b.WriteByte(c)
					b.WriteByte(next)
				} else if next == '\n' {
					b.WriteByte('\n')
				}
				i++
			case c == quote:
				state = code
				b.WriteByte(c)
			case c == '\n':
				// unterminated literal
				state = code
				b.WriteByte(c)
			default:
				if !blankLiterals {
					b.WriteByte(c)
				}
			}
		}
	}
	return b.String()
}
