// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: prefs  -  flat key=value preference tables
//
//  The same reader handles the user preferences file, boards.txt and
//  programmers.txt. Stored at:
//    Linux/macOS: ~/.config/sketchc/preferences.txt
//    Windows:     %APPDATA%\sketchc\preferences.txt
// ─────────────────────────────────────────────────────────────────────────────

package prefs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// FileName is the name of the user preferences file.
const FileName = "preferences.txt"

var (
	// ErrUnknownKey is returned by Lookup when a key is absent.
	ErrUnknownKey = errors.New("unknown preference key")
	// ErrUnstorable is returned for an entry that would not read back
	// the same after Write.
	ErrUnstorable = errors.New("preference cannot be stored")
)

// Map is a flat string table. The zero value is not usable; use New.
type Map map[string]string

// New returns an empty table.
func New() Map {
	return make(Map)
}

// Parse reads key=value lines. Blank lines and lines whose first non-blank
// character is '#' are skipped, the first '=' splits, key and value are trimmed. Lines without
// '=' are ignored.
func Parse(r io.Reader) (Map, error) {
	m, _, err := ParseOrdered(r)
	return m, err
}

// ParseOrdered is Parse that also reports keys in the order they first
// appear in the input.
func ParseOrdered(r io.Reader) (Map, []string, error) {
	m := New()
	var order []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if t := strings.TrimSpace(line); t == "" || t[0] == '#' {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq == -1 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		if key == "" {
			continue
		}
		if _, seen := m[key]; !seen {
			order = append(order, key)
		}
		m[key] = strings.TrimSpace(line[eq+1:])
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading preferences: %w", err)
	}
	return m, order, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// CheckEntry reports whether key and value survive Write then Parse: the
// key must be non-empty, must not start with '#' or contain '=', and
// neither may contain a line break or surrounding blanks.
func CheckEntry(key, value string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrUnstorable)
	case key[0] == '#':
		return fmt.Errorf("%w: key %q starts with '#'", ErrUnstorable, key)
	case strings.ContainsRune(key, '='):
		return fmt.Errorf("%w: key %q contains '='", ErrUnstorable, key)
	case strings.ContainsAny(key, "\r\n"), key != strings.TrimSpace(key):
		return fmt.Errorf("%w: key %q has line breaks or surrounding blanks", ErrUnstorable, key)
	case strings.ContainsAny(value, "\r\n"), value != strings.TrimSpace(value):
		return fmt.Errorf("%w: value of %s has line breaks or surrounding blanks", ErrUnstorable, key)
	}
	return nil
}

// Write emits the table as sorted key=value lines. Nothing is written if
// an entry fails CheckEntry.
func (m Map) Write(w io.Writer) error {
	if err := m.check(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, k := range m.Keys() {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", k, m[k]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (m Map) check() error {
	for k, v := range m {
		if err := CheckEntry(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns every key in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value for key, or "" when absent.
func (m Map) Get(key string) string {
	return m[key]
}

// Lookup returns the value for key or ErrUnknownKey.
func (m Map) Lookup(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return v, nil
}

// GetBool interprets "true" (any case) as true; everything else is false.
func (m Map) GetBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(m[key]), "true")
}

// GetInt parses the value as a decimal integer. A missing or malformed
// value yields def.
func (m Map) GetInt(key string, def int) int {
	v := strings.TrimSpace(m[key])
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (m Map) Set(key, value string) {
	m[key] = value
}

func (m Map) SetBool(key string, value bool) {
	m[key] = strconv.FormatBool(value)
}

func (m Map) SetInt(key string, value int) {
	m[key] = strconv.Itoa(value)
}

func (m Map) Remove(key string) {
	delete(m, key)
}

// Sub returns the keys below prefix with "prefix." stripped.
//
//	uno.build.mcu=atmega328p  →  Sub("uno")["build.mcu"] == "atmega328p"
func (m Map) Sub(prefix string) Map {
	out := New()
	p := prefix + "."
	for k, v := range m {
		if strings.HasPrefix(k, p) {
			out[k[len(p):]] = v
		}
	}
	return out
}

// Merge copies every pair of other into m, overwriting.
func (m Map) Merge(other Map) {
	for k, v := range other {
		m[k] = v
	}
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	out.Merge(m)
	return out
}

// ── Well-known keys ──────────────────────────────────────────────────────────

const (
	KeyBoard             = "board"
	KeyProgrammer        = "programmer"
	KeySerialPort        = "serial.port"
	KeySerialDebugRate   = "serial.debug_rate"
	KeyUploadUsing       = "upload.using"
	KeyUploadVerbose     = "upload.verbose"
	KeyUploadTimeout     = "upload.timeout"
	KeyBuildVerbose      = "build.verbose"
	KeyBuildPath         = "build.path"
	KeySketchbookPath    = "sketchbook.path"
	KeyHardwarePath      = "hardware.path"
	KeyCompilerPath      = "compiler.path"
	KeyAvrdudeConfig     = "upload.avrdude.config"
	KeyUploader          = "upload.tool"
	KeySubstituteUnicode = "preproc.substitute_unicode"
)

// UsingBootloader is the upload.using value selecting the serial bootloader
// instead of an external programmer.
const UsingBootloader = "bootloader"

// Defaults returns the built-in preference table.
func Defaults() Map {
	port := "/dev/ttyUSB0"
	switch runtime.GOOS {
	case "windows":
		port = "COM1"
	case "darwin":
		port = "/dev/tty.usbserial"
	}
	return Map{
		KeyBoard:             "diecimila",
		KeyProgrammer:        "avrispmkii",
		KeySerialPort:        port,
		KeySerialDebugRate:   "9600",
		KeyUploadUsing:       UsingBootloader,
		KeyUploadVerbose:     "false",
		KeyUploadTimeout:     "0",
		KeyBuildVerbose:      "false",
		KeyBuildPath:         "",
		KeySketchbookPath:    defaultSketchbook(),
		KeyHardwarePath:      "",
		KeyCompilerPath:      "",
		KeyAvrdudeConfig:     "",
		KeyUploader:          "avrdude",
		KeySubstituteUnicode: "false",
	}
}

// ── File I/O ─────────────────────────────────────────────────────────────────

// Path returns the location of the user preferences file.
func Path() (string, error) {
	if env := os.Getenv("SKETCHC_PREFS"); env != "" {
		return env, nil
	}
	var base string
	switch {
	case os.Getenv("XDG_CONFIG_HOME") != "":
		base = os.Getenv("XDG_CONFIG_HOME")
	case runtime.GOOS == "windows" && os.Getenv("APPDATA") != "":
		base = os.Getenv("APPDATA")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "sketchc", FileName), nil
}

// Load returns the defaults overlaid with the user preferences file.
// A missing file is not an error.
func Load() (Map, error) {
	m := Defaults()
	path, err := Path()
	if err != nil {
		return m, nil
	}
	user, err := ParseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("loading preferences: %w", err)
	}
	m.Merge(user)
	return m, nil
}

// Save writes m to the user preferences file, creating its directory.
func (m Map) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return m.SaveFile(path)
}

// SaveFile writes m to path.
func (m Map) SaveFile(path string) error {
	if err := m.check(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func defaultSketchbook() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sketchbook"
	}
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return filepath.Join(home, "Documents", "Arduino")
	}
	return filepath.Join(home, "sketchbook")
}
