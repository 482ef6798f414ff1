package prefs

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	in := strings.Join([]string{
		"# comment",
		"",
		"board=uno",
		"  serial.port = /dev/ttyACM0  ",
		"editor.font=Monospaced,plain,12",
		"formula=a=b",
		"no equals sign here",
		"=orphan",
	}, "\n")

	m, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, "uno", m.Get("board"))
	assert.Equal(t, "/dev/ttyACM0", m.Get("serial.port"))
	assert.Equal(t, "Monospaced,plain,12", m.Get("editor.font"))
	assert.Equal(t, "a=b", m.Get("formula"))
	assert.Len(t, m, 4)
}

func TestWriteParseRoundTrip(t *testing.T) {
	m := Map{
		"board":             "diecimila",
		"serial.debug_rate": "9600",
		"build.path":        "",
		"sketchbook.path":   "/home/me/sketchbook",
	}

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))

	back, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestWriteRejectsUnstorableEntries(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"#board", "uno"},
		{"a=b", "c"},
		{" board", "uno"},
		{"board", " uno"},
		{"board", "uno\nserial.port=/dev/ttyS0"},
		{"", "x"},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, CheckEntry(tt.key, tt.value), ErrUnstorable, "%q=%q", tt.key, tt.value)

		var buf bytes.Buffer
		err := Map{"board": "diecimila", tt.key: tt.value}.Write(&buf)
		assert.ErrorIs(t, err, ErrUnstorable)
		assert.Empty(t, buf.String())
	}

	assert.NoError(t, CheckEntry("build.extra_flags", "-DFOO=1 -DBAR"))
	assert.NoError(t, CheckEntry("build.path", ""))
}

func TestSaveFileKeepsFileOnUnstorableEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Map{"board": "uno"}.SaveFile(path))

	err := Map{"board": "mega", "#x": "1"}.SaveFile(path)
	assert.ErrorIs(t, err, ErrUnstorable)

	back, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, Map{"board": "uno"}, back)
}

func TestParseSkipsIndentedComments(t *testing.T) {
	m, err := Parse(strings.NewReader("  # board=uno\nboard=mega\n"))
	require.NoError(t, err)
	assert.Equal(t, Map{"board": "mega"}, m)
}

func TestWriteIsSorted(t *testing.T) {
	m := Map{"b": "2", "a": "1", "c": "3"}
	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	assert.Equal(t, "a=1\nb=2\nc=3\n", buf.String())
}

func TestTypedGetters(t *testing.T) {
	m := Map{"on": "TRUE", "off": "no", "n": "57600", "bad": "fast"}

	assert.True(t, m.GetBool("on"))
	assert.False(t, m.GetBool("off"))
	assert.False(t, m.GetBool("missing"))

	assert.Equal(t, 57600, m.GetInt("n", 9600))
	assert.Equal(t, 9600, m.GetInt("bad", 9600))
	assert.Equal(t, 9600, m.GetInt("missing", 9600))

	m.SetBool("flag", true)
	m.SetInt("rate", 115200)
	assert.Equal(t, "true", m.Get("flag"))
	assert.Equal(t, "115200", m.Get("rate"))

	_, err := m.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestSub(t *testing.T) {
	m := Map{
		"uno.name":          "Arduino Uno",
		"uno.build.mcu":     "atmega328p",
		"unox.name":         "not uno",
		"diecimila.build.x": "y",
	}
	sub := m.Sub("uno")
	assert.Equal(t, Map{"name": "Arduino Uno", "build.mcu": "atmega328p"}, sub)
}

func TestLoadOverlaysUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	t.Setenv("SKETCHC_PREFS", path)

	m, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults().Get(KeyBoard), m.Get(KeyBoard))

	user := Map{KeyBoard: "uno", "custom.key": "x"}
	require.NoError(t, user.Save())

	m, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "uno", m.Get(KeyBoard))
	assert.Equal(t, "x", m.Get("custom.key"))
	assert.Equal(t, UsingBootloader, m.Get(KeyUploadUsing))
}
