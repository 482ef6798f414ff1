package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsuki/sketchc/internal/manifest"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/report"
)

// run executes the root command against a private preferences file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if os.Getenv("SKETCHC_PREFS") == "" {
		t.Setenv("SKETCHC_PREFS", filepath.Join(t.TempDir(), prefs.FileName))
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPrefsSetGetUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), prefs.FileName)
	t.Setenv("SKETCHC_PREFS", path)

	out, err := run(t, "prefs", "get", prefs.KeyBoard)
	require.NoError(t, err)
	assert.Equal(t, "diecimila\n", out)

	_, err = run(t, "prefs", "set", prefs.KeyBoard, "uno")
	require.NoError(t, err)
	out, err = run(t, "prefs", "get", prefs.KeyBoard)
	require.NoError(t, err)
	assert.Equal(t, "uno\n", out)

	// only the changed key is written
	saved, err := prefs.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, prefs.Map{prefs.KeyBoard: "uno"}, saved)

	_, err = run(t, "prefs", "unset", prefs.KeyBoard)
	require.NoError(t, err)
	out, err = run(t, "prefs", "get", prefs.KeyBoard)
	require.NoError(t, err)
	assert.Equal(t, "diecimila\n", out)

	_, err = run(t, "prefs", "get", "no.such.key")
	assert.ErrorIs(t, err, prefs.ErrUnknownKey)

	_, err = run(t, "prefs", "set", "#board", "uno")
	assert.ErrorIs(t, err, prefs.ErrUnstorable)
	_, err = run(t, "prefs", "set", prefs.KeyBoard, "uno\nserial.port=/dev/ttyS0")
	assert.ErrorIs(t, err, prefs.ErrUnstorable)
	saved, err = prefs.ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, saved)

	out, err = run(t, "prefs", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestNewAndSketchFiles(t *testing.T) {
	parent := t.TempDir()
	_, err := run(t, "new", "Blink", "--dir", parent, "--board", "uno", "--yes")
	require.NoError(t, err)

	folder := filepath.Join(parent, "Blink")
	assert.FileExists(t, filepath.Join(folder, "Blink.pde"))
	m, err := manifest.Load(folder)
	require.NoError(t, err)
	assert.Equal(t, "uno", m.Sketch.Board)
	assert.Equal(t, "build", m.Build.OutputDir)

	_, err = run(t, "sketch", "add", "motor.cpp", "--sketch", folder)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(folder, "motor.cpp"))

	_, err = run(t, "sketch", "rm", "motor.cpp", "--sketch", folder)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(folder, "motor.cpp"))

	_, err = run(t, "sketch", "rm", "Blink.pde", "--sketch", folder)
	assert.Error(t, err)
}

func TestNewRejectsUnknownBoard(t *testing.T) {
	parent := t.TempDir()
	_, err := run(t, "new", "Nope", "--dir", parent, "--board", "pdp11", "--yes")
	assert.Error(t, err)
	assert.NoDirExists(t, filepath.Join(parent, "Nope"))
}

func TestBuildRejectsReportFormat(t *testing.T) {
	_, err := run(t, "build", t.TempDir(), "--report", "build.csv")
	assert.ErrorIs(t, err, report.ErrFormat)
}

func TestLoadSettingsPrecedence(t *testing.T) {
	pf = prefs.Defaults()
	pf.Set(prefs.KeySerialPort, "/dev/ttyUSB9")

	dir := t.TempDir()
	m := manifest.Default("uno")
	m.Sketch.Port = "/dev/ttyACM0"
	require.NoError(t, m.Save(dir))

	st, err := loadSettings(dir, overrides{prefs.KeyBoard: "mega", prefs.KeySerialPort: ""})
	require.NoError(t, err)
	assert.Equal(t, "mega", st.Prefs.Get(prefs.KeyBoard))
	assert.Equal(t, "/dev/ttyACM0", st.Prefs.Get(prefs.KeySerialPort))
	assert.Equal(t, filepath.Join(dir, "build"), st.Prefs.Get(prefs.KeyBuildPath))

	b, err := st.board()
	require.NoError(t, err)
	assert.Equal(t, "atmega1280", b.MCU())

	// preferences themselves are untouched
	assert.Equal(t, "/dev/ttyUSB9", pf.Get(prefs.KeySerialPort))
}

func TestUploadRequest(t *testing.T) {
	pf = prefs.Defaults()
	st, err := loadSettings(t.TempDir(), overrides{
		prefs.KeyBoard:       "uno",
		prefs.KeyUploadUsing: "avrispmkii",
	})
	require.NoError(t, err)

	req, err := uploadRequest(st, 57600)
	require.NoError(t, err)
	assert.Equal(t, "uno", req.Board.ID)
	require.NotNil(t, req.Programmer)
	assert.Equal(t, "avrispmkii", req.Programmer.ID)
	assert.Equal(t, 57600, req.Speed)

	st.Prefs.Set(prefs.KeyUploadUsing, prefs.UsingBootloader)
	req, err = uploadRequest(st, 0)
	require.NoError(t, err)
	assert.Nil(t, req.Programmer)

	st.Prefs.Set(prefs.KeyUploadUsing, "nope")
	_, err = uploadRequest(st, 0)
	assert.Error(t, err)
}

func TestOutputLines(t *testing.T) {
	out := []string{"a", "", "b", "c", "d", "e", "f", "  g  "}
	lines := outputLines(out)
	require.Len(t, lines, maxOutputLines)
	assert.Equal(t, "b", lines[0].Text)
	assert.Equal(t, "g", lines[len(lines)-1].Text)
	assert.True(t, lines[len(lines)-1].IsPointer)
	assert.False(t, lines[0].IsPointer)
	assert.Nil(t, outputLines(nil))
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		answer string
		want   int
	}{
		{"", 2},
		{"1", 0},
		{"4", 3},
		{"5", 2},
		{"0", 2},
		{"x", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseChoice(tt.answer, 4, 2), tt.answer)
	}
}
