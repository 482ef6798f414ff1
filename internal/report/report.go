// ─────────────────────────────────────────────────────────────────────────────
//  sketchc :: report  -  write a build result as YAML or JSON
//
//    sketchc build --report build.yaml     → YAML (.yaml, .yml)
//    sketchc build --report build.json     → JSON
// ─────────────────────────────────────────────────────────────────────────────

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrFormat is returned for a report path with an unknown extension.
var ErrFormat = errors.New("unknown report format (use .yaml, .yml or .json)")

type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrFormat, path)
}

// Encode writes v to w.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("%w: %q", ErrFormat, f)
}

// Write encodes v into path, creating parent folders as needed.
func Write(path string, v any) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := Encode(out, f, v); err != nil {
		out.Close()
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return out.Close()
}

// Read decodes a report written by Write into v.
func Read(path string, v any) error {
	f, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if f == YAML {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}
