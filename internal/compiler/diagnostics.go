package compiler

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tsuki/sketchc/internal/preproc"
	"github.com/tsuki/sketchc/internal/sketch"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one compiler message mapped back onto a sketch file.
type Diagnostic struct {
	Severity  Severity `json:"severity" yaml:"severity"`
	File      string   `json:"file" yaml:"file"`
	FileIndex int      `json:"file_index" yaml:"file_index"`
	Line      int      `json:"line" yaml:"line"`
	Column    int      `json:"column,omitempty" yaml:"column,omitempty"`
	Message   string   `json:"message" yaml:"message"`
}

// CompileError is the first error reported by the compiler, located in the
// original sketch file. Line and Column are 1-based; Column is 0 when the
// compiler gave none.
type CompileError struct {
	Message   string
	File      string
	FileIndex int
	Line      int
	Column    int
}

func (e *CompileError) Error() string {
	if e.File == "" {
		return e.Message
	}
	if e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// scraper turns compiler output into diagnostics. Lines are matched by
// the build-folder path of the file they mention: the generated unit
// means the PDE tabs, anything else must be a copied .c/.cpp/.h file.
type scraper struct {
	buildPath string
	sketch    *sketch.Sketch
	unit      *preproc.Unit
	console   io.Writer

	// collectAll keeps every diagnostic instead of stopping at the first
	// error (check mode).
	collectAll bool

	first       *CompileError
	secondError bool
	diagnostics []Diagnostic
}

func (s *scraper) print(line string) {
	if s.console != nil {
		fmt.Fprintln(s.console, line)
	}
}

func (s *scraper) consume(line string) {
	// include chains name the including line, not the error
	if t := strings.TrimSpace(line); strings.HasPrefix(t, "In file included from") || strings.HasPrefix(t, "from ") {
		if !s.secondError {
			s.print(line)
		}
		return
	}
	fileIndex, rest, ok := s.locate(line)
	if !ok {
		// context lines after the first error are still worth showing,
		// after the second one they are noise
		if !s.secondError {
			s.print(line)
		}
		return
	}
	s.print(line)

	if strings.Contains(rest, "In function") || strings.Contains(rest, "At global scope") {
		return
	}
	colon := strings.IndexByte(rest, ':')
	if colon == -1 {
		return
	}
	lineNo, err := strconv.Atoi(rest[:colon])
	if err != nil {
		return
	}
	msg := rest[colon+1:]

	col := 0
	if c := strings.IndexByte(msg, ':'); c > 0 {
		if n, err := strconv.Atoi(msg[:c]); err == nil {
			col = n
			msg = msg[c+1:]
		}
	}
	msg = strings.TrimSpace(msg)

	var severity Severity
	switch {
	case strings.HasPrefix(msg, "warning:"):
		severity = SeverityWarning
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "warning:"))
	case strings.HasPrefix(msg, "error:"):
		severity = SeverityError
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "error:"))
	case strings.HasPrefix(msg, "fatal error:"):
		severity = SeverityError
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "fatal error:"))
	default:
		// notes and anything else located are context
		return
	}

	if fileIndex == 0 && s.unit != nil {
		fileIndex, lineNo = s.unit.Map(lineNo)
	}
	d := Diagnostic{
		Severity:  severity,
		File:      s.sketch.Files[fileIndex].FileName,
		FileIndex: fileIndex,
		Line:      lineNo,
		Column:    col,
		Message:   msg,
	}
	if severity == SeverityWarning {
		s.diagnostics = append(s.diagnostics, d)
		return
	}

	if s.collectAll {
		s.diagnostics = append(s.diagnostics, d)
		if s.first == nil {
			s.first = d.asError()
		}
		return
	}
	if s.first != nil {
		s.secondError = true
		return
	}
	s.first = d.asError()
	s.diagnostics = append(s.diagnostics, d)
}

func (d Diagnostic) asError() *CompileError {
	return &CompileError{
		Message:   d.Message,
		File:      d.File,
		FileIndex: d.FileIndex,
		Line:      d.Line,
		Column:    d.Column,
	}
}

// locate finds which sketch file a line talks about and returns what
// follows "<path>:".
func (s *scraper) locate(line string) (int, string, bool) {
	if s.unit != nil {
		if rest, ok := after(line, filepath.Join(s.buildPath, s.unit.FileName())); ok {
			return 0, rest, true
		}
	}
	for i, f := range s.sketch.Files {
		if f.Flavor == sketch.PDE {
			continue
		}
		if rest, ok := after(line, filepath.Join(s.buildPath, f.FileName)); ok {
			return i, rest, true
		}
	}
	return 0, "", false
}

func after(line, path string) (string, bool) {
	i := strings.Index(line, path+":")
	if i == -1 {
		return "", false
	}
	return line[i+len(path)+1:], true
}

func (s *scraper) errorCount() int {
	n := 0
	for _, d := range s.diagnostics {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings returns the warnings seen so far.
func (s *scraper) warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range s.diagnostics {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}
