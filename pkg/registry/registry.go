// Package registry discovers HRTF data sets, keeps every loaded set in memory
// and produces the ordered list of named entries offered to a device.
//
// Discovery follows the alsoft configuration keys:
//
//   - hrtf-paths: comma-separated directories searched for .mhr files. When
//     the last directory is not followed by a comma the list is closed and
//     the default locations are not searched.
//   - default-hrtf: name of the entry to move to the front of the list.
//   - hrtf_tables: deprecated, only produces a warning.
//
// The default locations are the "openal/hrtf" data directory followed by the
// compiled-in data sets.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"hrtfkit/pkg/mhr"
)

// Configuration keys.
const (
	KeyPaths      = "hrtf-paths"
	KeyDefault    = "default-hrtf"
	KeyTablesOld  = "hrtf_tables"
	DefaultSubdir = "openal/hrtf"
	Extension     = ".mhr"
)

// ErrResource is returned by resource sources that cannot provide a file.
var ErrResource = errors.New("registry: resource unavailable")

// Entry is one selectable HRTF. Several entries may share a data set.
type Entry struct {
	Name string
	Set  *mhr.DataSet
}

// Registry owns every data set loaded by discovery. It is safe for
// concurrent use.
type Registry struct {
	mu sync.Mutex

	files    ResourceSource
	builtins BuiltinSource
	logger   *slog.Logger

	// Loaded data sets by source ID
	loaded map[string]*mhr.DataSet
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry. Either source may be nil.
func New(files ResourceSource, builtins BuiltinSource, opts ...Option) *Registry {
	if files == nil {
		files = noFiles{}
	}
	if builtins == nil {
		builtins = noBuiltins{}
	}

	r := &Registry{
		files:    files,
		builtins: builtins,
		logger:   slog.Default(),
		loaded:   make(map[string]*mhr.DataSet),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Discover builds the entry list for device. Candidates that cannot be read
// or decoded are logged and skipped; an empty list is a valid result.
func (r *Registry) Discover(conf Config, device string) []Entry {
	if conf == nil {
		conf = emptyConfig{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := &discovery{r: r}
	useDefaults := true

	if pathList, ok := conf.Value(device, KeyPaths); ok {
		var paths []string
		paths, useDefaults = splitPaths(pathList)

		for _, p := range paths {
			for _, name := range r.files.SearchDataFiles(Extension, p) {
				d.addFile(name)
			}
		}
	} else if _, ok := conf.Value(device, KeyTablesOld); ok {
		r.logger.Warn("The hrtf_tables option is deprecated, please use hrtf-paths instead")
	}

	if useDefaults {
		for _, name := range r.files.SearchDataFiles(Extension, DefaultSubdir) {
			d.addFile(name)
		}

		for _, id := range BuiltinIDs {
			if data := r.builtins.Resource(id); len(data) > 0 {
				d.addBuiltin(id.String(), data)
			}
		}
	}

	if len(d.list) > 1 {
		if name, ok := conf.Value(device, KeyDefault); ok {
			if !moveToFront(d.list, name) {
				r.logger.Warn("Failed to find default HRTF", "name", name)
			}
		}
	}

	r.logger.Info("HRTF discovery finished", "device", device, "entries", len(d.list), "loaded", len(r.loaded))

	return d.list
}

// Teardown drops every loaded data set. Entries returned earlier keep their
// data sets alive; later discoveries load from scratch.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.loaded)
}

// Loaded returns the number of distinct data sets held by the registry.
func (r *Registry) Loaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.loaded)
}

// discovery accumulates the entries of one Discover call.
type discovery struct {
	r    *Registry
	list []Entry
}

func (d *discovery) addFile(name string) {
	d.add(name, baseName(name), func() (*mhr.DataSet, error) {
		data, err := d.r.files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", name, err)
		}
		return mhr.Decode(data, name)
	})
}

func (d *discovery) addBuiltin(label string, data []byte) {
	d.add(label, label, func() (*mhr.DataSet, error) {
		return mhr.Decode(data, label)
	})
}

func (d *discovery) add(sourceID, name string, load func() (*mhr.DataSet, error)) {
	logger := d.r.logger

	for _, e := range d.list {
		if e.Set.SourceID() == sourceID {
			logger.Debug("Skipping duplicate file entry", "source", sourceID)
			return
		}
	}

	set, ok := d.r.loaded[sourceID]
	if ok {
		logger.Debug("Skipping load of already-loaded file", "source", sourceID)
	} else {
		logger.Debug("Loading HRTF", "source", sourceID)

		var err error
		set, err = load()
		if err != nil {
			logger.Error("Failed to load HRTF", "source", sourceID, "error", err)
			return
		}

		d.r.loaded[sourceID] = set
		logger.Debug("Loaded HRTF",
			"source", sourceID,
			"sample_rate", set.SampleRate(),
			"ir_size", set.IRSize(),
			"responses", set.IRCount())
	}

	entry := Entry{Name: d.uniqueName(name), Set: set}
	logger.Debug("Adding HRTF entry", "name", entry.Name, "source", sourceID)

	d.list = append(d.list, entry)
}

// uniqueName appends " #2", " #3", ... to base until no entry uses it.
func (d *discovery) uniqueName(base string) string {
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s #%d", base, i)
		}

		taken := false
		for _, e := range d.list {
			if e.Name == name {
				taken = true
				break
			}
		}

		if !taken {
			return name
		}
	}
}

// splitPaths splits a hrtf-paths value into trimmed, non-empty entries.
// useDefaults is false when the last entry is not followed by a comma.
func splitPaths(pathList string) (paths []string, useDefaults bool) {
	useDefaults = true

	parts := strings.Split(pathList, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if i == len(parts)-1 {
			useDefaults = false
		}

		paths = append(paths, p)
	}

	return paths, useDefaults
}

// baseName returns the last path component of name without its extension.
// Both '/' and '\' are accepted as separators.
func baseName(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		i = strings.LastIndexByte(name, '\\')
	}
	name = name[i+1:]

	if j := strings.LastIndexByte(name, '.'); j >= 0 {
		name = name[:j]
	}

	return name
}

// moveToFront moves the first entry called name to index 0, keeping the
// order of the others. It reports whether the entry was found.
func moveToFront(list []Entry, name string) bool {
	for i, e := range list {
		if e.Name != name {
			continue
		}

		copy(list[1:i+1], list[:i])
		list[0] = e

		return true
	}

	return false
}
