// Package config reads alsoft-style INI configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"
	"gopkg.in/ini.v1"
)

// FileName is the configuration file name inside configuration directories.
const FileName = "alsoft.conf"

// GeneralSection holds settings shared by every device.
const GeneralSection = "general"

// File is a merged view of one or more configuration files. It implements
// registry.Config.
type File struct {
	ini   *ini.File
	paths []string
}

// DefaultPaths returns the configuration locations from lowest to highest
// priority: the system file, the XDG config dirs, the legacy per-user file,
// the XDG config home, and finally $ALSOFT_CONF when set.
func DefaultPaths() []string {
	paths := []string{"/etc/openal/" + FileName}

	dirs := slices.Clone(xdg.ConfigDirs)
	slices.Reverse(dirs)
	for _, dir := range dirs {
		paths = append(paths, filepath.Join(dir, FileName))
	}

	if xdg.Home != "" {
		paths = append(paths, filepath.Join(xdg.Home, ".alsoftrc"))
	}
	if xdg.ConfigHome != "" {
		paths = append(paths, filepath.Join(xdg.ConfigHome, FileName))
	}
	if env := os.Getenv("ALSOFT_CONF"); env != "" {
		paths = append(paths, env)
	}

	return paths
}

// Load reads the given files in order. Missing files are skipped and later
// files override keys of earlier ones.
func Load(paths ...string) (*File, error) {
	cfg := ini.Empty(ini.LoadOptions{
		Loose:                   true,
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	})

	var found []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := cfg.Append(p); err != nil {
			return nil, fmt.Errorf("config: %s: %w", p, err)
		}
		found = append(found, p)
	}

	return &File{ini: cfg, paths: found}, nil
}

// Parse reads configuration from memory.
func Parse(data []byte) (*File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:        true,
		SkipUnrecognizableLines: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &File{ini: cfg}, nil
}

// Paths returns the files that were actually read.
func (f *File) Paths() []string { return f.paths }

// Value looks key up in the device section, then [general], then the keys
// before the first section header.
func (f *File) Value(device, key string) (string, bool) {
	sections := []string{GeneralSection, ini.DefaultSection}
	if device != "" {
		sections = append([]string{device}, sections...)
	}

	for _, name := range sections {
		sec, err := f.ini.GetSection(name)
		if err != nil || !sec.HasKey(key) {
			continue
		}
		return sec.Key(key).String(), true
	}

	return "", false
}

// Set stores a value in the device section, or [general] when device is
// empty.
func (f *File) Set(device, key, value string) {
	name := device
	if name == "" {
		name = GeneralSection
	}
	f.ini.Section(name).Key(key).SetValue(value)
}
