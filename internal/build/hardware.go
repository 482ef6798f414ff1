package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoCore is returned when the board's core folder cannot be found.
var ErrNoCore = errors.New("board core not found")

// Hardware is the folder holding cores/, bootloaders/ and libraries/,
// either directly or below an arduino/ sub-folder.
type Hardware struct {
	Root string
}

func (h Hardware) find(parts ...string) string {
	if h.Root == "" {
		return ""
	}
	for _, base := range []string{h.Root, filepath.Join(h.Root, "arduino")} {
		p := filepath.Join(append([]string{base}, parts...)...)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return ""
}

// Core returns the folder of core name.
func (h Hardware) Core(name string) (string, error) {
	if name == "" {
		name = "arduino"
	}
	if p := h.find("cores", name); p != "" {
		return p, nil
	}
	if h.Root == "" {
		return "", fmt.Errorf("%w: %q (set hardware.path)", ErrNoCore, name)
	}
	return "", fmt.Errorf("%w: %q under %s", ErrNoCore, name, h.Root)
}

// Bootloaders is the folder of bootloader images, or "".
func (h Hardware) Bootloaders() string { return h.find("bootloaders") }

// Libraries is the folder of bundled libraries, or "".
func (h Hardware) Libraries() string { return h.find("libraries") }
