// Package module implements the module resolver (§4.3): locating a
// module's on-disk path, running source discovery, parsing import
// declarations, recursively resolving the dependency closure, detecting
// cycles, and producing a leaves-first topological order.
package module

import (
	"github.com/hbuild/hbuild/internal/ident"
	"github.com/hbuild/hbuild/internal/source"
)

// Edge is one (graph-index, identifier) dependency edge obtained from a
// `use` declaration.
type Edge struct {
	Index int
	Ident ident.Ident
}

// Module is a resolved module: an identifier, its filesystem path, its
// namespace, its source set, and its dependency edges.
type Module struct {
	Ident     ident.Ident
	Path      string
	Namespace ident.Ident
	Sources   *source.Set
	Deps      []Edge
}
