// Package export writes finished G-code to disk. Files are written to a
// temporary name in the target directory and moved into place, so a reader
// never sees a half-written program.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultExt is the extension used when Target.Ext is empty.
const DefaultExt = ".gcode"

// ErrExists is returned when the destination exists and Overwrite is false.
var ErrExists = errors.New("export: file already exists")

// Target names the output file.
type Target struct {
	Dir       string // "" is the working directory
	Name      string // base name; any extension on it is replaced by Ext
	Ext       string // with or without the leading dot
	Overwrite bool
}

// Path returns the destination path.
func (t Target) Path() (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", errors.New("export: empty file name")
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("export: file name %q must not contain a directory", t.Name)
	}
	ext := t.Ext
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
	return filepath.Join(t.Dir, name), nil
}

// Save writes text to the target and returns the final path.
func Save(text string, t Target) (string, error) {
	path, err := t.Path()
	if err != nil {
		return "", err
	}
	if !t.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
	}

	tmp := filepath.Join(filepath.Dir(path), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("export: write: %w", err)
	}
	defer os.Remove(tmp)

	if t.Overwrite {
		err = os.Rename(tmp, path)
	} else {
		// Link fails if path appeared since the Stat above.
		err = os.Link(tmp, path)
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path, nil
}
