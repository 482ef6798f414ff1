// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: toolchain  -  avr-gcc / avr-g++ / avr-ar / avr-objcopy argv
//
//  Builders only. Nothing here spawns a build step; internal/runner does.
// ─────────────────────────────────────────────────────────────────────────────

package toolchain

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Tool names.
const (
	GCC     = "avr-gcc"
	GXX     = "avr-g++"
	AR      = "avr-ar"
	Objcopy = "avr-objcopy"
	Size    = "avr-size"
	Avrdude = "avrdude"
	Uisp    = "uisp"
)

// All lists every tool doctor reports on.
var All = []string{GCC, GXX, AR, Objcopy, Size, Avrdude, Uisp}

// Toolchain resolves tools below BasePath, or on PATH when BasePath is "".
type Toolchain struct {
	BasePath string
}

func New(basePath string) *Toolchain {
	return &Toolchain{BasePath: basePath}
}

// Path returns the executable for tool.
func (t *Toolchain) Path(tool string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(tool, ".exe") {
		tool += ".exe"
	}
	if t.BasePath == "" {
		return tool
	}
	return filepath.Join(t.BasePath, tool)
}

// Installed reports whether tool can be executed.
func (t *Toolchain) Installed(tool string) bool {
	_, err := exec.LookPath(t.Path(tool))
	return err == nil
}

// Version returns the first line of `tool --version`. avrdude and uisp
// print their banner on stderr, so both streams are read.
func (t *Toolchain) Version(ctx context.Context, tool string) (string, error) {
	arg := "--version"
	if tool == Avrdude {
		arg = "-?"
	}
	out, err := exec.CommandContext(ctx, t.Path(tool), arg).CombinedOutput()
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if tool == Avrdude && !strings.Contains(line, "version") {
			continue
		}
		return line, nil
	}
	if err != nil {
		return "", fmt.Errorf("cannot run %s: %w", tool, err)
	}
	return "", fmt.Errorf("%s printed no version", tool)
}

// ── Compile ──────────────────────────────────────────────────────────────────

// Target is the board-specific part of every compile.
type Target struct {
	MCU  string // build.mcu
	FCPU string // build.f_cpu
}

// Warnings selects the diagnostic level.
type Warnings int

const (
	WarnNone Warnings = iota // -w
	WarnAll                  // -Wall
)

// CompileOptions are shared by every compile step of a build.
type CompileOptions struct {
	Target     Target
	Includes   []string
	Warnings   Warnings
	SyntaxOnly bool // -fsyntax-only, no object written
	ExtraFlags []string
}

// CompileC builds the avr-gcc argv for one C source.
func (t *Toolchain) CompileC(o CompileOptions, src, obj string) []string {
	return t.compile(GCC, o, src, obj)
}

// CompileCPP builds the avr-g++ argv for one C++ source.
func (t *Toolchain) CompileCPP(o CompileOptions, src, obj string) []string {
	return t.compile(GXX, o, src, obj)
}

func (t *Toolchain) compile(tool string, o CompileOptions, src, obj string) []string {
	argv := []string{t.Path(tool)}
	if o.SyntaxOnly {
		argv = append(argv, "-fsyntax-only")
	} else {
		argv = append(argv, "-c", "-g")
	}
	argv = append(argv, "-Os")
	if o.Warnings == WarnAll {
		argv = append(argv, "-Wall")
	} else {
		argv = append(argv, "-w")
	}
	argv = append(argv, "-ffunction-sections", "-fdata-sections")
	if tool == GXX {
		argv = append(argv, "-fno-exceptions")
	}
	argv = append(argv,
		"-mmcu="+o.Target.MCU,
		"-DF_CPU="+o.Target.FCPU,
	)
	for _, inc := range o.Includes {
		argv = append(argv, "-I"+inc)
	}
	argv = append(argv, o.ExtraFlags...)
	argv = append(argv, src)
	if !o.SyntaxOnly {
		argv = append(argv, "-o", obj)
	}
	return argv
}

// ── Archive / link / objcopy / size ─────────────────────────────────────────

// Archive adds one object to a static archive.
func (t *Toolchain) Archive(archive, obj string) []string {
	return []string{t.Path(AR), "rcs", archive, obj}
}

// Link produces the ELF. objs come first (library objects, then sketch
// objects), then the core archive.
func (t *Toolchain) Link(mcu, elf string, objs []string, archive, libDir string) []string {
	argv := []string{
		t.Path(GCC),
		"-Os",
		"-Wl,--gc-sections",
		"-mmcu=" + mcu,
		"-o", elf,
	}
	argv = append(argv, objs...)
	return append(argv, archive, "-L"+libDir, "-lm")
}

// ObjcopyEEPROM extracts EEMEM data into an Intel HEX .eep file.
func (t *Toolchain) ObjcopyEEPROM(elf, eep string) []string {
	return []string{
		t.Path(Objcopy),
		"-O", "ihex",
		"-j", ".eeprom",
		"--set-section-flags=.eeprom=alloc,load",
		"--no-change-warnings",
		"--change-section-lma", ".eeprom=0",
		elf, eep,
	}
}

// ObjcopyHex writes the flash image without EEPROM data.
func (t *Toolchain) ObjcopyHex(elf, hex string) []string {
	return []string{t.Path(Objcopy), "-O", "ihex", "-R", ".eeprom", elf, hex}
}

// SizeHex measures an Intel HEX image.
func (t *Toolchain) SizeHex(hex string) []string {
	return []string{t.Path(Size), "--target=ihex", hex}
}
