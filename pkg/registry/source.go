package registry

import "fmt"

// Config is the read-only configuration consulted during discovery.
// Value reports the setting of key for device, and whether it is set at all.
type Config interface {
	Value(device, key string) (string, bool)
}

// ResourceSource locates and reads data set files.
type ResourceSource interface {
	// SearchDataFiles returns the files with extension ext found under
	// subdir, in search order.
	SearchDataFiles(ext, subdir string) []string

	// ReadFile returns the contents of a file returned by SearchDataFiles.
	ReadFile(name string) ([]byte, error)
}

// BuiltinSource provides data sets compiled into the binary.
type BuiltinSource interface {
	// Resource returns the data for id, or nil when it is not available
	// in this build.
	Resource(id BuiltinID) []byte
}

// BuiltinID names a compiled-in data set.
type BuiltinID int

// Compiled-in data sets, in the order they are offered.
const (
	BuiltinDefault44100 BuiltinID = iota
	BuiltinDefault48000
)

// BuiltinIDs lists every compiled-in data set in discovery order.
var BuiltinIDs = []BuiltinID{BuiltinDefault44100, BuiltinDefault48000}

// String returns the display label of the data set.
func (id BuiltinID) String() string {
	switch id {
	case BuiltinDefault44100:
		return "Built-In 44100hz"
	case BuiltinDefault48000:
		return "Built-In 48000hz"
	}
	return fmt.Sprintf("Built-In #%d", int(id))
}

// MapConfig is a Config backed by a map from key to value, shared by all
// devices.
type MapConfig map[string]string

// Value implements Config.
func (m MapConfig) Value(_, key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type emptyConfig struct{}

func (emptyConfig) Value(string, string) (string, bool) { return "", false }

type noFiles struct{}

func (noFiles) SearchDataFiles(string, string) []string { return nil }

func (noFiles) ReadFile(name string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrResource, name)
}

type noBuiltins struct{}

func (noBuiltins) Resource(BuiltinID) []byte { return nil }
