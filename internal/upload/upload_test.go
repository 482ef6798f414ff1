package upload

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsuki/sketchc/internal/boards"
	"github.com/tsuki/sketchc/internal/prefs"
	"github.com/tsuki/sketchc/internal/runner"
	"github.com/tsuki/sketchc/internal/toolchain"
)

func uno(t *testing.T) *boards.Board {
	t.Helper()
	b, err := boards.Builtin().Board("uno")
	require.NoError(t, err)
	return b
}

func programmer(t *testing.T, id string) *boards.Programmer {
	t.Helper()
	p, err := boards.Builtin().Programmer(id)
	require.NoError(t, err)
	return p
}

func TestAvrdudeBootloaderArgv(t *testing.T) {
	a := &Avrdude{Toolchain: toolchain.New("/tools")}
	argv, err := a.UploadArgv(Request{Hex: "/b/Blink.hex", Board: uno(t), Port: "/dev/ttyACM0"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/tools", "avrdude"),
		"-patmega328p", "-q", "-q",
		"-cstk500", "-P/dev/ttyACM0", "-b115200", "-D",
		"-Uflash:w:/b/Blink.hex:i",
	}, argv)

	argv, err = a.UploadArgv(Request{
		Hex: "x.hex", Board: uno(t), Port: "COM3", Speed: 19200,
		Verbose: true, AvrdudeConf: "/etc/avrdude.conf",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/tools", "avrdude"),
		"-C", "/etc/avrdude.conf",
		"-patmega328p", "-v", "-v", "-v", "-v",
		"-cstk500", "-PCOM3", "-b19200", "-D",
		"-Uflash:w:x.hex:i",
	}, argv)

	_, err = a.UploadArgv(Request{Hex: "x.hex", Board: uno(t)})
	assert.ErrorIs(t, err, ErrNoPort)
}

func TestUploadNeedsSpeed(t *testing.T) {
	bare := &boards.Board{ID: "bare", Props: prefs.Map{
		"build.mcu":       "atmega8",
		"upload.protocol": "stk500",
	}}
	req := Request{Hex: "x.hex", Board: bare, Port: "/dev/ttyUSB0"}

	a := &Avrdude{Toolchain: toolchain.New("")}
	_, err := a.UploadArgv(req)
	assert.ErrorIs(t, err, ErrNoSpeed)

	u := &Uisp{Toolchain: toolchain.New("")}
	_, err = u.UploadArgv(req)
	assert.ErrorIs(t, err, ErrNoSpeed)

	req.Speed = 19200
	argv, err := a.UploadArgv(req)
	require.NoError(t, err)
	assert.Contains(t, argv, "-b19200")
}

func TestAvrdudeProgrammerArgv(t *testing.T) {
	a := &Avrdude{Toolchain: toolchain.New("")}

	tests := []struct {
		name       string
		programmer string
		port       string
		want       []string
	}{
		{"usb", "avrispmkii", "", []string{"-cstk500v2", "-Pusb"}},
		{"serial", "avrisp", "/dev/ttyUSB0", []string{"-cstk500v1", "-P/dev/ttyUSB0"}},
		{"forced", "parallel", "", []string{"-cdapa", "-F"}},
		{"no communication", "usbtinyisp", "", []string{"-cusbtiny"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, err := a.UploadArgv(Request{
				Hex: "x.hex", Board: uno(t), Programmer: programmer(t, tt.programmer), Port: tt.port,
			})
			require.NoError(t, err)
			want := append([]string{"avrdude", "-patmega328p", "-q", "-q"}, tt.want...)
			want = append(want, "-Uflash:w:x.hex:i")
			assert.Equal(t, want, argv)
		})
	}

	_, err := a.UploadArgv(Request{Hex: "x.hex", Board: uno(t), Programmer: programmer(t, "avrisp")})
	assert.ErrorIs(t, err, ErrNoPort)
}

func TestAvrdudeBurnArgv(t *testing.T) {
	a := &Avrdude{Toolchain: toolchain.New("")}
	steps, err := a.BurnArgv(Request{
		Board: uno(t), Programmer: programmer(t, "avrispmkii"), BootloaderDir: "/hw/bootloaders",
	})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []string{
		"avrdude", "-patmega328p", "-q", "-q", "-cstk500v2", "-Pusb",
		"-e", "-Ulock:w:0x3F:m", "-Uefuse:w:0x05:m", "-Uhfuse:w:0xde:m", "-Ulfuse:w:0xff:m",
	}, steps[0])
	assert.Equal(t, []string{
		"avrdude", "-patmega328p", "-q", "-q", "-cstk500v2", "-Pusb",
		"-Uflash:w:" + filepath.Join("/hw/bootloaders", "optiboot", "optiboot_atmega328.hex") + ":i",
		"-Ulock:w:0x0F:m",
	}, steps[1])

	_, err = a.BurnArgv(Request{Board: uno(t)})
	assert.ErrorIs(t, err, ErrNeedsProgrammer)
}

func TestUispArgv(t *testing.T) {
	u := &Uisp{Toolchain: toolchain.New("")}
	argv, err := u.UploadArgv(Request{Hex: "x.hex", Board: uno(t), Port: "/dev/ttyS0"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"uisp", "-dpart=atmega328p", "-dprog=stk500", "-dserial=/dev/ttyS0",
		"-dspeed=115200", "--upload", "if=x.hex",
	}, argv)

	assert.ErrorIs(t, u.BurnBootloader(context.Background(), Request{}), ErrNotSupported)
}

func TestNew(t *testing.T) {
	up, err := New("", nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Avrdude{}, up)

	up, err = New("uisp", nil, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Uisp{}, up)

	_, err = New("esptool", nil, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func fakeAvrdude(t *testing.T, body string) *toolchain.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake avrdude is a shell script")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avrdude"), []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return toolchain.New(dir)
}

func TestUploadScrapesErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"signature", `echo "avrdude: Expected signature for ATMEGA328P is 1E 95 0F" >&2; exit 1`, "wrong microcontroller"},
		{"not responding", `echo "avrdude: stk500_recv(): programmer is not responding" >&2; exit 1`, "board not responding"},
		{"no port", `echo "avrdude: ser_open(): can't open device \"/dev/ttyX\"" >&2; exit 1`, `serial port "/dev/ttyX" not found`},
		{"plain failure", `exit 2`, "exited with 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resets int
			a := &Avrdude{
				Toolchain: fakeAvrdude(t, tt.script),
				Runner:    &runner.Runner{},
				Reset:     func(string, int, bool) error { resets++; return nil },
			}
			err := a.Upload(context.Background(), Request{Hex: "x.hex", Board: uno(t), Port: "/dev/ttyX"})

			var ue *UploadError
			require.ErrorAs(t, err, &ue)
			assert.Contains(t, ue.Message, tt.want)
			assert.Equal(t, "/dev/ttyX", ue.Port)
			assert.Equal(t, 1, resets)
		})
	}
}

func TestUploadSuccess(t *testing.T) {
	var got struct {
		port  string
		baud  int
		flush bool
	}
	r := &runner.Runner{}
	a := &Avrdude{
		Toolchain: fakeAvrdude(t, `echo "avrdude: 1066 bytes of flash written"`),
		Runner:    r,
		Reset: func(port string, baud int, flush bool) error {
			got.port, got.baud, got.flush = port, baud, flush
			return nil
		},
	}
	require.NoError(t, a.Upload(context.Background(), Request{Hex: "x.hex", Board: uno(t), Port: "/dev/ttyACM0"}))
	assert.Equal(t, "/dev/ttyACM0", got.port)
	assert.Equal(t, 115200, got.baud)
	assert.True(t, got.flush)
	assert.Len(t, r.Steps(), 1)

	// programmers do not touch DTR
	got.port = ""
	require.NoError(t, a.Upload(context.Background(), Request{
		Hex: "x.hex", Board: uno(t), Programmer: programmer(t, "avrispmkii"),
	}))
	assert.Empty(t, got.port)
}

func TestBurnBootloaderStopsOnFailure(t *testing.T) {
	r := &runner.Runner{}
	a := &Avrdude{Toolchain: fakeAvrdude(t, `echo "avrdude: initialization failed, rc=-1" >&2; exit 1`), Runner: r}
	err := a.BurnBootloader(context.Background(), Request{Board: uno(t), Programmer: programmer(t, "avrispmkii")})
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"avrdude: initialization failed, rc=-1"}, ue.Output)
	assert.Len(t, r.Steps(), 1)
}
