package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr, oldNoColor := stdout, stderr, color.NoColor
	stdout, stderr, color.NoColor = out, errOut, true
	t.Cleanup(func() { stdout, stderr, color.NoColor = oldOut, oldErr, oldNoColor })
	return out, errOut
}

func TestSourceContext(t *testing.T) {
	src := "void setup() {\n}\nvoid loop() {\n\tdigitalWrite(13, HIGH)\n}\n"
	got := SourceContext(src, 4, 1)
	assert.Equal(t, []CodeLine{
		{Number: 3, Text: "void loop() {"},
		{Number: 4, Text: "    digitalWrite(13, HIGH)", IsPointer: true},
		{Number: 5, Text: "}"},
	}, got)

	assert.Len(t, SourceContext(src, 1, 2), 3)
	assert.Nil(t, SourceContext(src, 0, 2))
	assert.Nil(t, SourceContext(src, 99, 2))
}

func TestTraceback(t *testing.T) {
	_, errOut := capture(t)
	Traceback("CompileError", "expected ';' before 'delay'", []Frame{{
		File: "Blink.pde", Line: 4, Func: "compile",
		Code: SourceContext("a\nb\nc\nd\ne", 4, 1),
	}})

	lines := strings.Split(strings.TrimRight(errOut.String(), "\n"), "\n")
	assert.Contains(t, lines[0], "Traceback")
	assert.Contains(t, errOut.String(), "Blink.pde:4 in compile")
	assert.Contains(t, errOut.String(), "❱    4 │ d")
	assert.Equal(t, "CompileError: expected ';' before 'delay'", lines[len(lines)-1])

	// every panel row has the same visible width
	width := visibleLen(lines[0])
	for _, l := range lines[:len(lines)-1] {
		assert.Equal(t, width, visibleLen(l), l)
	}
}

func TestPrintConfigRaw(t *testing.T) {
	out, _ := capture(t)
	PrintConfig("Preferences", []ConfigEntry{{Key: "board", Value: "uno"}, {Key: "upload.verbose", Value: false}}, true)
	assert.Equal(t, "board=uno\nupload.verbose=false\n", out.String())
}

func TestPrintConfigBox(t *testing.T) {
	out, _ := capture(t)
	PrintConfig("Board uno", []ConfigEntry{
		{Key: "name", Value: "Arduino Uno"},
		{Key: "upload.maximum_size", Value: 32256, Comment: "bytes"},
	}, false)
	s := out.String()
	assert.Contains(t, s, "Board uno")
	assert.Contains(t, s, `name                 =  "Arduino Uno"`)
	assert.Contains(t, s, "upload.maximum_size  =  32256  # bytes")
}

func TestTable(t *testing.T) {
	out, _ := capture(t)
	Table([]string{"ID", "NAME"}, [][]string{{"uno", "Arduino Uno"}, {"diecimila", "Arduino Diecimila"}})
	require.Equal(t, "  ID         NAME\n  uno        Arduino Uno\n  diecimila  Arduino Diecimila\n", out.String())
}

func TestSizeBar(t *testing.T) {
	out, _ := capture(t)
	SizeBar("flash", 1066, 14336)
	SizeBar("flash", 2000, 1000)
	SizeBar("flash", 10, 0)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "7%  1066/14336 bytes")
	assert.Contains(t, lines[1], "200%")
	assert.Equal(t, 40, strings.Count(lines[1], "█"))
	assert.Equal(t, "flash  10 bytes", strings.TrimSpace(lines[2]))
}

func TestSpinnerOffTerminal(t *testing.T) {
	out, errOut := capture(t)
	sp := NewSpinner("compiling")
	sp.Start()
	sp.Stop(true, "done")
	sp.Stop(false, "ignored")
	assert.Equal(t, "  ✓ done\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestUploadBadge(t *testing.T) {
	out, _ := capture(t)
	UploadBadge("", "bootloader")
	assert.Equal(t, "  [ ⚡ avrdude · bootloader ]\n", out.String())
}
