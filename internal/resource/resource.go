// Package resource locates HRTF data files on disk and provides compiled-in
// data sets.
package resource

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"

	"hrtfkit/pkg/registry"
)

// FileSearch finds data files in the XDG data directories.
type FileSearch struct {
	// Roots are searched in order for relative sub-directories.
	Roots  []string
	Logger *slog.Logger
}

// NewFileSearch returns a FileSearch over the XDG data home followed by the
// XDG data dirs.
func NewFileSearch(logger *slog.Logger) *FileSearch {
	roots := make([]string, 0, 1+len(xdg.DataDirs))
	if xdg.DataHome != "" {
		roots = append(roots, xdg.DataHome)
	}
	roots = append(roots, xdg.DataDirs...)

	if logger == nil {
		logger = slog.Default()
	}

	return &FileSearch{Roots: roots, Logger: logger}
}

// SearchDataFiles implements registry.ResourceSource. An absolute subdir is
// searched directly; otherwise subdir is resolved under each root.
func (s *FileSearch) SearchDataFiles(ext, subdir string) []string {
	if filepath.IsAbs(subdir) {
		return s.searchDir(ext, subdir)
	}

	var files []string
	for _, root := range s.Roots {
		files = append(files, s.searchDir(ext, filepath.Join(root, subdir))...)
	}

	return files
}

// searchDir lists the regular files in dir whose extension matches ext,
// ignoring case, sorted by name.
func (s *FileSearch) searchDir(ext, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger().Warn("Failed to search directory", "dir", dir, "error", err)
		}
		return nil
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}

	slices.Sort(files)
	s.logger().Debug("Searched directory", "dir", dir, "found", len(files))

	return files
}

// ReadFile implements registry.ResourceSource.
func (s *FileSearch) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (s *FileSearch) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// NoBuiltins provides no compiled-in data sets.
type NoBuiltins struct{}

// Resource implements registry.BuiltinSource.
func (NoBuiltins) Resource(registry.BuiltinID) []byte { return nil }

// Embedded serves compiled-in data sets from a file system, typically an
// embed.FS.
type Embedded struct {
	FS fs.FS

	// Files maps each data set to its path in FS.
	Files map[registry.BuiltinID]string
}

// DefaultFiles is the layout used by the embedded data directory.
var DefaultFiles = map[registry.BuiltinID]string{
	registry.BuiltinDefault44100: "hrtf/default-44100.mhr",
	registry.BuiltinDefault48000: "hrtf/default-48000.mhr",
}

// Resource implements registry.BuiltinSource. Missing files yield nil.
func (e Embedded) Resource(id registry.BuiltinID) []byte {
	name, ok := e.Files[id]
	if !ok || e.FS == nil {
		return nil
	}

	data, err := fs.ReadFile(e.FS, name)
	if err != nil || len(data) == 0 {
		return nil
	}

	return data
}
