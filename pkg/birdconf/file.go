package birdconf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultPath is where BIRD reads its configuration.
const DefaultPath = "/etc/bird/bird.conf"

// ConfigWriter gives access to the daemon's configuration file and reload.
type ConfigWriter interface {
	Read() ([]byte, error)
	// Replace durably replaces the whole file.
	Replace(data []byte) error
	// Reload asks the daemon to apply the file, returning its diagnostics.
	Reload(ctx context.Context) (string, error)
}

// Reloader triggers a daemon reconfigure; *birdc.Client implements it.
type Reloader interface {
	Configure(ctx context.Context) (string, error)
}

// File is a ConfigWriter over a file on local disk.
type File struct {
	path     string
	reloader Reloader
}

// NewFile creates a ConfigWriter for path that reloads through reloader.
func NewFile(path string, reloader Reloader) *File {
	if path == "" {
		path = DefaultPath
	}
	return &File{path: path, reloader: reloader}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	return data, nil
}

// Replace writes data to a temp file in the same directory, syncs it, and
// renames it over the original, keeping the original file mode.
func (f *File) Replace(data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(f.path); err == nil {
		mode = fi.Mode().Perm()
	}

	// Same directory keeps the rename on one filesystem
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("setting mode on temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func (f *File) Reload(ctx context.Context) (string, error) {
	if f.reloader == nil {
		return "", fmt.Errorf("no reloader configured for %s", f.path)
	}
	return f.reloader.Configure(ctx)
}
