package sketch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
}

func TestLoadOrdersMainFirst(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Blink")
	writeFiles(t, dir, map[string]string{
		"Blink.pde":    "void setup(){}\nvoid loop(){}\n",
		"zz.pde":       "int z;",
		"aa.ino":       "int a;",
		"motor.cpp":    "",
		"motor.h":      "",
		"notes.txt":    "ignored",
		".hidden.pde":  "ignored",
		"bad name.pde": "ignored",
		"1st.pde":      "ignored",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.pde"), 0755))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Blink", s.Name)

	var names []string
	for _, f := range s.Files {
		names = append(names, f.FileName)
	}
	assert.Equal(t, []string{"Blink.pde", "aa.ino", "motor.cpp", "motor.h", "zz.pde"}, names)
	assert.Equal(t, PDE, s.Files[1].Flavor)
	assert.Equal(t, CPP, s.Files[2].Flavor)
	assert.Equal(t, H, s.Files[3].Flavor)
	assert.Len(t, s.PDE(), 3)
	assert.Equal(t, 3, s.Main().LineCount())
}

func TestLoadFromMainFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Fade")
	writeFiles(t, dir, map[string]string{"Fade.ino": "x"})

	s, err := Load(filepath.Join(dir, "Fade.ino"))
	require.NoError(t, err)
	assert.Equal(t, "Fade", s.Name)
	assert.Equal(t, dir, s.Folder)
}

func TestLoadErrors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Empty")
	writeFiles(t, dir, map[string]string{"other.pde": ""})

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrNoMainFile)

	_, err = Load(filepath.Join(dir, "other.txt"))
	assert.Error(t, err)

	writeFiles(t, dir, map[string]string{"readme.txt": ""})
	_, err = Load(filepath.Join(dir, "readme.txt"))
	assert.ErrorIs(t, err, ErrNotSketch)
}

func TestNewAndEditTabs(t *testing.T) {
	parent := t.TempDir()
	s, err := New(parent, "my sketch")
	require.NoError(t, err)
	assert.Equal(t, "my_sketch", s.Name)
	assert.Contains(t, s.Main().Program, "void setup()")

	_, err = s.AddFile("util")
	require.NoError(t, err)
	_, err = s.AddFile("io.cpp")
	require.NoError(t, err)

	_, err = s.AddFile("util.ino")
	assert.ErrorIs(t, err, ErrDuplicateFile)
	_, err = s.AddFile("io.cpp")
	assert.ErrorIs(t, err, ErrDuplicateFile)
	_, err = s.AddFile("9lives.pde")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = s.AddFile("data.txt")
	assert.ErrorIs(t, err, ErrInvalidName)

	require.NoError(t, s.RenameFile("util.pde", "helpers.pde"))
	assert.FileExists(t, filepath.Join(s.Folder, "helpers.pde"))
	assert.NoFileExists(t, filepath.Join(s.Folder, "util.pde"))

	assert.ErrorIs(t, s.RemoveFile("my_sketch.pde"), ErrMainFile)
	assert.ErrorIs(t, s.RemoveFile("ghost.pde"), ErrNoSuchFile)
	require.NoError(t, s.RemoveFile("io.cpp"))

	reloaded, err := Load(s.Folder)
	require.NoError(t, err)
	assert.Len(t, reloaded.Files, 2)
}

func TestRenameMainMovesFolder(t *testing.T) {
	parent := t.TempDir()
	s, err := New(parent, "Old")
	require.NoError(t, err)
	_, err = s.AddFile("tab")
	require.NoError(t, err)

	assert.ErrorIs(t, s.RenameFile("Old.pde", "New.cpp"), ErrInvalidName)
	require.NoError(t, s.RenameFile("Old.pde", "New.pde"))

	assert.Equal(t, filepath.Join(parent, "New"), s.Folder)
	assert.Equal(t, "New", s.Name)
	assert.FileExists(t, filepath.Join(parent, "New", "New.pde"))
	assert.FileExists(t, s.Files[1].Path)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Blink", "Blink"},
		{"my sketch", "my_sketch"},
		{"2fast", "_2fast"},
		{"café", "caf_"},
		{"a-b.c", "a_b_c"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), tt.in)
	}

	long := make([]byte, 80)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, SanitizeName(string(long)), 63)

	assert.True(t, IsSanitaryName("motor_2"))
	assert.False(t, IsSanitaryName("motor-2"))
	assert.False(t, IsSanitaryName(""))
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 1, LineCount(""))
	assert.Equal(t, 2, LineCount("a\n"))
	assert.Equal(t, 3, LineCount("a\nb\nc"))
}

func TestSketchUnitNameIsReserved(t *testing.T) {
	parent := t.TempDir()
	s, err := New(parent, "Blink")
	require.NoError(t, err)

	_, err = s.AddFile("Blink.cpp")
	assert.ErrorIs(t, err, ErrReservedName)
	_, err = s.AddFile("blink.CPP")
	assert.ErrorIs(t, err, ErrReservedName)
	assert.NoFileExists(t, filepath.Join(s.Folder, "Blink.cpp"))

	// a header of the same name is fine
	_, err = s.AddFile("Blink.h")
	require.NoError(t, err)

	_, err = s.AddFile("Fade.cpp")
	require.NoError(t, err)
	assert.ErrorIs(t, s.RenameFile("Fade.cpp", "Blink.cpp"), ErrReservedName)
	assert.ErrorIs(t, s.RenameFile("Blink.pde", "Fade.pde"), ErrReservedName)
	assert.FileExists(t, filepath.Join(s.Folder, "Blink.pde"))

	writeFiles(t, s.Folder, map[string]string{"Blink.cpp": "int motor(){return 1;}\n"})
	_, err = Load(s.Folder)
	assert.ErrorIs(t, err, ErrReservedName)
}
