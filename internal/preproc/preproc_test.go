package preproc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsuki/sketchc/internal/sketch"
)

func testSketch(files ...*sketch.SourceFile) *sketch.Sketch {
	return &sketch.Sketch{Name: "Blink", Files: files}
}

func pde(name, program string) *sketch.SourceFile {
	return &sketch.SourceFile{Name: name, FileName: name + ".pde", Program: program, Flavor: sketch.PDE}
}

func TestPreprocessOffsets(t *testing.T) {
	main := pde("Blink", "void setup() {\n}\nvoid loop() {\n  blink(3);\n}")
	cpp := &sketch.SourceFile{Name: "motor", FileName: "motor.cpp", Flavor: sketch.CPP}
	tab := pde("helpers", "void blink(int n) {\n  n++;\n}")

	s := testSketch(main, cpp, tab)
	u, err := Preprocess(s, Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{0, -1, 5}, u.Offsets)
	assert.Equal(t, 5, tab.Offset)
	assert.Equal(t, []string{"void blink(int n);"}, u.Prototypes)
	assert.Equal(t, 2, u.HeaderLines)

	// newline count of the concatenation is the sum of line counts
	assert.Equal(t, main.LineCount()+tab.LineCount(), strings.Count(u.Program, "\n"))

	lines := strings.Split(u.Code, "\n")
	assert.Equal(t, HeaderInclude, lines[0])
	assert.Equal(t, "void blink(int n);", lines[1])
	assert.Equal(t, "void setup() {", lines[2])
	assert.Equal(t, "void blink(int n) {", lines[7])
}

func TestMapRoundTrip(t *testing.T) {
	main := pde("Blink", "a\nb\nc")
	tab1 := pde("one", "d\ne")
	tab2 := pde("two", "int f() {\n}\nx")
	s := testSketch(main, tab1, tab2)
	u, err := Preprocess(s, Options{})
	require.NoError(t, err)

	generated := strings.Split(u.Code, "\n")
	for fi, f := range s.Files {
		for li, text := range strings.Split(f.Program, "\n") {
			genLine := u.HeaderLines + u.Offsets[fi] + li + 1
			require.Equal(t, text, generated[genLine-1])
			file, local := u.Map(genLine)
			assert.Equal(t, fi, file, "line %q", text)
			assert.Equal(t, li+1, local, "line %q", text)
		}
	}

	file, local := u.Map(1)
	assert.Equal(t, 0, file)
	assert.Equal(t, 1, local)
	file, local = u.Map(u.HeaderLines)
	assert.Equal(t, 0, file)
	assert.Equal(t, 1, local)
}

func TestPreprocessNeedsPDE(t *testing.T) {
	s := testSketch(&sketch.SourceFile{FileName: "a.cpp", Flavor: sketch.CPP})
	_, err := Preprocess(s, Options{})
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestPrototypes(t *testing.T) {
	src := `#include <Servo.h>
// int commented(int a) {
/* void blockCommented() {
} */
int add(int a,
        int b) {
  return a + b;
}
void setup() {}
void loop() {}
char *say(const char *s = "x) {") {
}
else if (x) {
}
int add(int a,
        int b) {
}
void   spaced ( ) {
}
`
	protos := Prototypes(src)
	assert.Equal(t, []string{"int add(int a, int b);", "void spaced();"}, protos)
}

func TestIncludes(t *testing.T) {
	src := "#include <Servo.h>\n  # include \"Wire.h\"\n// #include <Commented.h>\n#include <Servo.h>\nint x;\n"
	assert.Equal(t, []string{"Servo.h", "Wire.h"}, Includes(src))
}

func TestScrubKeepsLines(t *testing.T) {
	src := "a /* x\ny */ b // c\n\"q\\\"s\" 'c'\n"
	out := Scrub(src, true)
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))
	assert.NotContains(t, out, "x")
	assert.NotContains(t, out, "c\n")
	assert.Contains(t, out, `"" ''`)

	kept := Scrub(src, false)
	assert.Contains(t, kept, `"q\"s"`)
}

func TestSubstituteUnicode(t *testing.T) {
	assert.Equal(t, "caf\\u00e9 a b", SubstituteUnicode("café a b"))
	assert.Equal(t, "\\ud83d\\ude00", SubstituteUnicode("😀"))
	assert.Equal(t, "plain", SubstituteUnicode("plain"))

	s := testSketch(pde("Blink", "// héllo\nvoid setup() {}"))
	u, err := Preprocess(s, Options{SubstituteUnicode: true})
	require.NoError(t, err)
	assert.Contains(t, u.Program, "h\\u00e9llo")
}

func TestWriteTo(t *testing.T) {
	u, err := Preprocess(testSketch(pde("Blink", "void setup() {}")), Options{})
	require.NoError(t, err)

	dir := t.TempDir()
	p, err := u.WriteTo(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Blink.cpp"), p)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, u.Code, string(data))
}

func TestExampleSketches(t *testing.T) {
	tests := []struct {
		folder     string
		prototypes []string
		includes   []string
	}{
		{
			folder:     "Blink",
			prototypes: []string{"void toggle(int level);"},
		},
		{
			folder:     "LedStripThermometer",
			prototypes: []string{"void fill(int r, int b);", "void report(float temp, float hum);"},
			includes:   []string{"Adafruit_NeoPixel.h", "DHT.h"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			s, err := sketch.Load(filepath.Join("..", "..", "examples", tt.folder))
			require.NoError(t, err)
			u, err := Preprocess(s, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.prototypes, u.Prototypes)
			assert.Equal(t, tt.includes, u.Includes)
		})
	}
}
