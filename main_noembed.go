//go:build !embedhrtf

package main

import (
	"hrtfkit/internal/resource"
	"hrtfkit/pkg/registry"
)

func builtinSource() registry.BuiltinSource {
	return resource.NoBuiltins{}
}
