package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/compiler"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/size"
	"github.com/tsuki/sketchc/internal/sketch"
	"github.com/tsuki/sketchc/internal/toolchain"
	"github.com/tsuki/sketchc/internal/upload"
)

const touchOutputs = `
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
case "$(basename "$0")" in
  avr-ar) out="$2" ;;
  avr-objcopy) out="$a" ;;
esac
if [ -n "$out" ]; then : > "$out"; fi
`

const fakeSize = `
printf '   text\t   data\t    bss\t    dec\t    hex\tfilename\n'
printf '      0\t   1066\t      0\t   1066\t    42a\t%s\n' "$2"
`

func fakeToolchain(t *testing.T, gxxPrelude string) *toolchain.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain uses /bin/sh scripts")
	}
	dir := t.TempDir()
	tools := map[string]string{
		"avr-gcc":     touchOutputs,
		"avr-g++":     gxxPrelude + touchOutputs,
		"avr-ar":      touchOutputs,
		"avr-objcopy": touchOutputs,
		"avr-size":    fakeSize,
	}
	for name, body := range tools {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0755))
	}
	return toolchain.New(dir)
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

// hardware lays out <root>/arduino/{cores/arduino,libraries/Servo}.
func hardware(t *testing.T) Hardware {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "arduino", "cores", "arduino", "wiring.c"), "")
	write(t, filepath.Join(root, "arduino", "cores", "arduino", "WProgram.h"), "")
	write(t, filepath.Join(root, "arduino", "libraries", "Servo", "Servo.h"), "")
	write(t, filepath.Join(root, "arduino", "libraries", "Servo", "Servo.cpp"), "")
	write(t, filepath.Join(root, "arduino", "libraries", "EEPROM", "EEPROM.h"), "")
	return Hardware{Root: root}
}

func blink(t *testing.T) *sketch.Sketch {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Blink")
	write(t, filepath.Join(dir, "Blink.pde"), "#include <Servo.h>\nvoid setup() {\n}\nvoid loop() {\n}\n")
	write(t, filepath.Join(dir, "helper.c"), "int helper(void) { return 1; }\n")
	write(t, filepath.Join(dir, "helper.h"), "int helper(void);\n")
	s, err := sketch.Load(dir)
	require.NoError(t, err)
	return s
}

func uno(t *testing.T) *boards.Board {
	t.Helper()
	b, err := boards.Builtin().Board("uno")
	require.NoError(t, err)
	return b
}

func TestRun(t *testing.T) {
	tc := fakeToolchain(t, "")
	buildPath := t.TempDir()
	var phases []string
	opts := Options{
		Board:     uno(t),
		Toolchain: tc,
		Hardware:  hardware(t),
		BuildPath: buildPath,
		Progress:  func(phase, _ string) { phases = append(phases, phase) },
	}

	res, err := Run(context.Background(), blink(t), opts)
	require.NoError(t, err)

	id, err := uuid.Parse(res.BuildID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	assert.Equal(t, "Blink", res.Sketch)
	assert.Equal(t, "uno", res.Board)
	assert.Equal(t, buildPath, res.BuildPath)
	assert.Equal(t, filepath.Join(buildPath, "Blink.hex"), res.Hex)
	assert.FileExists(t, res.Hex)
	assert.Equal(t, 1066, res.Size)
	assert.Equal(t, 32256, res.MaxSize)
	assert.Equal(t, []string{"Servo"}, res.Libraries)
	assert.Equal(t, []string{"preprocess", "library", "compile", "size"}, phases)

	assert.FileExists(t, filepath.Join(buildPath, "Blink.cpp"))
	assert.FileExists(t, filepath.Join(buildPath, "helper.c"))
	assert.FileExists(t, filepath.Join(buildPath, "helper.h"))
	assert.FileExists(t, filepath.Join(buildPath, "libraries", "Servo", "Servo.cpp.o"))

	// Servo, helper.c, wiring.c, Blink.cpp, ar, link, eep, hex, size
	require.Len(t, res.Steps, 9)
	assert.Contains(t, res.Steps[0].Argv[len(res.Steps[0].Argv)-3], "Servo.cpp")
	assert.True(t, strings.HasSuffix(res.Steps[8].Argv[0], "avr-size"))

	// a second build in the same folder reuses the library objects
	res, err = Run(context.Background(), blink(t), opts)
	require.NoError(t, err)
	assert.Len(t, res.Steps, 8)
}

func TestRunTooBig(t *testing.T) {
	tiny := &boards.Board{ID: "tiny", Props: prefs.Map{
		"name":                "Tiny",
		"build.mcu":           "attiny85",
		"build.f_cpu":         "8000000L",
		"build.core":          "arduino",
		"upload.maximum_size": "1024",
	}}
	res, err := Run(context.Background(), blink(t), Options{
		Board: tiny, Toolchain: fakeToolchain(t, ""), Hardware: hardware(t), BuildPath: t.TempDir(),
	})
	assert.ErrorIs(t, err, size.ErrSketchTooBig)
	require.NotNil(t, res)
	assert.Equal(t, 1066, res.Size)
	assert.Equal(t, 1024, res.MaxSize)
	assert.NotEmpty(t, res.Steps)
}

func TestRunTemporaryBuildPath(t *testing.T) {
	res, err := Run(context.Background(), blink(t), Options{
		Board: uno(t), Toolchain: fakeToolchain(t, ""), Hardware: hardware(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(res.BuildPath) })
	assert.Equal(t, filepath.Join(os.TempDir(), "sketchc-"+res.BuildID), res.BuildPath)
}

func TestRunCompileError(t *testing.T) {
	// header is one line (no prototypes), so generated line 3 is Blink.pde line 2
	gxx := `for a in "$@"; do
  case "$a" in *Blink.cpp)
    echo "$a:3: error: expected ';' before '}' token" >&2
    exit 1 ;;
  esac
done
`
	res, err := Run(context.Background(), blink(t), Options{
		Board: uno(t), Toolchain: fakeToolchain(t, gxx), Hardware: hardware(t), BuildPath: t.TempDir(),
	})
	var ce *compiler.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Blink.pde", ce.File)
	assert.Equal(t, 2, ce.Line)
	assert.Empty(t, res.Hex)
}

func TestRunRefusesSketchUnitName(t *testing.T) {
	s := blink(t)
	s.Files = append(s.Files, &sketch.SourceFile{
		Name: "Blink", FileName: "Blink.cpp", Flavor: sketch.CPP, Program: "int motor(){return 1;}\n",
	})
	buildPath := t.TempDir()
	_, err := Run(context.Background(), s, Options{
		Board: uno(t), Toolchain: fakeToolchain(t, ""), Hardware: hardware(t), BuildPath: buildPath,
	})
	assert.ErrorIs(t, err, sketch.ErrReservedName)

	// the generated unit was not overwritten
	data, err := os.ReadFile(filepath.Join(buildPath, "Blink.cpp"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "void setup()")
}

func TestRunSketchFileNamedLikeCoreFile(t *testing.T) {
	s := blink(t)
	write(t, filepath.Join(s.Folder, "wiring.c"), "int pins;\n")
	require.NoError(t, s.Reload())

	buildPath := t.TempDir()
	res, err := Run(context.Background(), s, Options{
		Board: uno(t), Toolchain: fakeToolchain(t, ""), Hardware: hardware(t), BuildPath: buildPath,
	})
	require.NoError(t, err)
	assert.FileExists(t, res.Hex)
	assert.FileExists(t, filepath.Join(buildPath, "wiring.c.o"))
	assert.FileExists(t, filepath.Join(buildPath, "core", "wiring.c.o"))
}

func TestRunNeedsCore(t *testing.T) {
	_, err := Run(context.Background(), blink(t), Options{Board: uno(t), Hardware: Hardware{Root: t.TempDir()}})
	assert.ErrorIs(t, err, ErrNoCore)

	_, err = Run(context.Background(), blink(t), Options{Hardware: hardware(t)})
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	gxx := `for a in "$@"; do
  case "$a" in *Blink.cpp)
    echo "$a:4:6: warning: unused variable 'x'" >&2
    echo "$a:5: error: 'y' was not declared in this scope" >&2
    exit 1 ;;
  esac
done
`
	buildPath := t.TempDir()
	diags, err := Check(context.Background(), blink(t), Options{
		Board: uno(t), Toolchain: fakeToolchain(t, gxx), Hardware: hardware(t), BuildPath: buildPath,
	})
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, compiler.Diagnostic{
		Severity: compiler.SeverityWarning, File: "Blink.pde", Line: 3, Column: 6, Message: "unused variable 'x'",
	}, diags[0])
	assert.Equal(t, compiler.SeverityError, diags[1].Severity)
	assert.Equal(t, 4, diags[1].Line)

	// nothing is linked
	assert.NoFileExists(t, filepath.Join(buildPath, "Blink.hex"))
}

func TestHardware(t *testing.T) {
	h := hardware(t)
	core, err := h.Core("arduino")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.Root, "arduino", "cores", "arduino"), core)

	core, err = h.Core("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.Root, "arduino", "cores", "arduino"), core)

	_, err = h.Core("sanguino")
	assert.ErrorIs(t, err, ErrNoCore)

	assert.Equal(t, filepath.Join(h.Root, "arduino", "libraries"), h.Libraries())
	assert.Empty(t, h.Bootloaders())

	_, err = Hardware{}.Core("arduino")
	assert.ErrorIs(t, err, ErrNoCore)
}

type recordingUploader struct {
	req upload.Request
	err error
}

func (r *recordingUploader) Upload(ctx context.Context, req upload.Request) error {
	r.req = req
	if r.err != nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *recordingUploader) BurnBootloader(context.Context, upload.Request) error { return nil }

func TestUpload(t *testing.T) {
	up := &recordingUploader{}
	err := Upload(context.Background(), &Result{Hex: "/b/Blink.hex"}, UploadOptions{
		Uploader: up,
		Request:  upload.Request{Port: "/dev/ttyACM0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/b/Blink.hex", up.req.Hex)
	assert.Equal(t, "/dev/ttyACM0", up.req.Port)

	assert.Error(t, Upload(context.Background(), &Result{}, UploadOptions{Uploader: up}))

	hung := &recordingUploader{err: errors.New("hang")}
	err = Upload(context.Background(), &Result{Hex: "x.hex"}, UploadOptions{Uploader: hung, Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}
