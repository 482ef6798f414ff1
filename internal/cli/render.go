package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tsuki/sketchc/internal/compiler"
	"github.com/tsuki/sketchc/internal/library"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/ui"
	"github.com/tsuki/sketchc/internal/upload"
)

// maxOutputLines is how much tool output a traceback shows.
const maxOutputLines = 6

// renderError draws a traceback for the errors that carry a location or
// tool output and reports whether it did.
func renderError(s *sketch.Sketch, err error) bool {
	var (
		ce *compiler.CompileError
		ue *upload.UploadError
		le *library.BuildError
	)
	switch {
	case errors.As(err, &ce):
		renderCompileError(s, ce)
	case errors.As(err, &ue):
		renderUploadError(ue)
	case errors.As(err, &le):
		ui.Traceback("LibraryError", le.Error(), []ui.Frame{{
			File: le.Library,
			Func: "build",
			Code: outputLines(le.Output),
		}})
	default:
		return false
	}
	return true
}

func renderCompileError(s *sketch.Sketch, ce *compiler.CompileError) {
	frame := ui.Frame{File: ce.File, Line: ce.Line, Func: "compile"}
	if ce.File != "" && s != nil && ce.FileIndex >= 0 && ce.FileIndex < len(s.Files) {
		frame.Code = ui.SourceContext(s.Files[ce.FileIndex].Program, ce.Line, 2)
	}
	if frame.File == "" {
		frame.File = "<build>"
	}
	ui.Traceback("CompileError", ce.Message, []ui.Frame{frame})
}

func renderUploadError(ue *upload.UploadError) {
	port := ue.Port
	if port == "" {
		port = "<no port>"
	}
	code := outputLines(ue.Output)
	if len(code) == 0 {
		code = []ui.CodeLine{{Text: ue.Message, IsPointer: true}}
	}
	ui.Traceback("UploadError", ue.Message, []ui.Frame{{File: port, Func: "upload", Code: code}})
}

// outputLines turns the tail of a tool's output into traceback lines,
// pointing at the last one.
func outputLines(out []string) []ui.CodeLine {
	var kept []string
	for _, l := range out {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	start := max(0, len(kept)-maxOutputLines)
	var lines []ui.CodeLine
	for i := start; i < len(kept); i++ {
		lines = append(lines, ui.CodeLine{Number: i + 1, Text: kept[i], IsPointer: i == len(kept)-1})
	}
	return lines
}

func describe(d compiler.Diagnostic) string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, d.Line)
		if d.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, d.Column)
		}
	}
	if loc == "" {
		return d.Message
	}
	return loc + ": " + d.Message
}
