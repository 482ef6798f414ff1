package library

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Install copies a library into root (usually <sketchbook>/libraries).
// source is a folder, a .zip archive, or an http(s) URL of a .zip. A zip
// holding a single top-level folder installs that folder; otherwise the
// archive name is used. The result must contain a header.
func Install(source, root string) (*Library, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", root, err)
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		tmp, err := download(source)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		name := strings.TrimSuffix(filepath.Base(strings.SplitN(source, "?", 2)[0]), ".zip")
		return installZip(tmp, name, root)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if _, err := Open(source); err != nil {
			return nil, err
		}
		dest := filepath.Join(root, filepath.Base(source))
		if _, err := os.Stat(dest); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, filepath.Base(source))
		}
		if err := copyTree(source, dest); err != nil {
			os.RemoveAll(dest)
			return nil, err
		}
		return Open(dest)
	}
	if !strings.EqualFold(filepath.Ext(source), ".zip") {
		return nil, fmt.Errorf("%w: %s is neither a folder nor a .zip", ErrNotLibrary, source)
	}
	return installZip(source, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)), root)
}

// Remove deletes an installed library from root.
func Remove(root, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w %q", ErrUnknown, name)
	}
	dir := filepath.Join(root, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w %q", ErrUnknown, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing %s: %w", dir, err)
	}
	return nil
}

func installZip(path, fallbackName, root string) (*Library, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	// stage next to the destination so the final move is a rename
	stage, err := os.MkdirTemp(root, ".install-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(stage)

	for _, f := range zr.File {
		if err := extract(f, stage); err != nil {
			return nil, err
		}
	}

	src := stage
	name := fallbackName
	entries, err := os.ReadDir(stage)
	if err != nil {
		return nil, err
	}
	var visible []os.DirEntry
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") && e.Name() != "__MACOSX" {
			visible = append(visible, e)
		}
	}
	if len(visible) == 1 && visible[0].IsDir() {
		name = visible[0].Name()
		src = filepath.Join(stage, name)
	}

	if _, err := Open(src); err != nil {
		return nil, err
	}
	dest := filepath.Join(root, name)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	if err := os.Rename(src, dest); err != nil {
		return nil, err
	}
	return Open(dest)
}

func extract(f *zip.File, dir string) error {
	target := filepath.Join(dir, filepath.FromSlash(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(filepath.Separator)) {
		return fmt.Errorf("illegal path in archive: %s", f.Name)
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode().Perm())
	})
}

func download(url string) (string, error) {
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	f, err := os.CreateTemp("", "sketchc-lib-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), f.Close()
}
