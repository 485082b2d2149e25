// Package workspace manages the per-location shapefile and output folders.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotDirectory is returned when a path to reset exists but is not a
// directory.
var ErrNotDirectory = errors.New("not a directory")

// ResetDir makes sure path exists as an empty directory. Files directly in
// it are removed and subdirectories are removed recursively; path itself is
// left in place. Calling it twice is the same as calling it once.
func ResetDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", path, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// EnsureDir creates path if it is missing and leaves its contents alone.
func EnsureDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return nil
}

// Layout places per-location artifacts below the shapefile and output roots.
type Layout struct {
	ShapefileDir string
	OutputDir    string
}

// ShapefileFolder returns <ShapefileDir>/<location>.
func (l Layout) ShapefileFolder(location string) string {
	return filepath.Join(l.ShapefileDir, location)
}

// ShapefilePath returns <ShapefileDir>/<location>/<location>.shp.
func (l Layout) ShapefilePath(location string) string {
	return filepath.Join(l.ShapefileFolder(location), location+".shp")
}

// OutputFolder returns <OutputDir>/<location>.
func (l Layout) OutputFolder(location string) string {
	return filepath.Join(l.OutputDir, location)
}
