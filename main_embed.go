//go:build embedhrtf

package main

import (
	"embed"

	"hrtfkit/internal/resource"
	"hrtfkit/pkg/registry"
)

// Data sets placed in hrtf/ are compiled in with -tags embedhrtf.
//
//go:embed hrtf
var builtinFS embed.FS

func builtinSource() registry.BuiltinSource {
	return resource.Embedded{FS: builtinFS, Files: resource.DefaultFiles}
}
