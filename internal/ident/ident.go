// Package ident implements module identifiers: ordered sequences of name
// components such as net::dns (§3 of the design).
package ident

import (
	"strings"

	"github.com/hbuild/hbuild/internal/bderr"
)

// Separator joins identifier components in their serialized form.
const Separator = "::"

// MaxLen is the maximum serialized length of an identifier, including
// separators.
const MaxLen = 255

// Ident is an ordered sequence of non-empty name components.
type Ident struct {
	Parts []string
}

// Parse splits s on Separator into an Ident, validating that every
// component is non-empty and that the serialized length fits MaxLen.
func Parse(s string) (Ident, error) {
	if len(s) > MaxLen {
		return Ident{}, bderr.New(bderr.PathOverflow, nil, "identifier "+s+" exceeds max length")
	}
	parts := strings.Split(s, Separator)
	for _, p := range parts {
		if p == "" {
			return Ident{}, bderr.New(bderr.BadTag, nil, "identifier "+s+" has an empty component")
		}
	}
	return Ident{Parts: parts}, nil
}

// MustParse is Parse but panics on error; useful for literals in tests and
// built-in tables.
func MustParse(s string) Ident {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders the identifier in its canonical serialized form.
func (i Ident) String() string {
	return strings.Join(i.Parts, Separator)
}

// Equal reports whether i and o have the same length and pairwise equal
// components.
func (i Ident) Equal(o Ident) bool {
	if len(i.Parts) != len(o.Parts) {
		return false
	}
	for idx := range i.Parts {
		if i.Parts[idx] != o.Parts[idx] {
			return false
		}
	}
	return true
}

// Namespace returns the identifier minus its last segment, or the zero
// Ident if there is only one segment.
func (i Ident) Namespace() Ident {
	if len(i.Parts) <= 1 {
		return Ident{}
	}
	cp := make([]string, len(i.Parts)-1)
	copy(cp, i.Parts[:len(i.Parts)-1])
	return Ident{Parts: cp}
}

// Less gives the reproducible tie-break order used by the module resolver's
// topological sort (§4.3.6): lexicographic over components.
func Less(a, b Ident) bool {
	n := len(a.Parts)
	if len(b.Parts) < n {
		n = len(b.Parts)
	}
	for i := 0; i < n; i++ {
		if a.Parts[i] != b.Parts[i] {
			return a.Parts[i] < b.Parts[i]
		}
	}
	return len(a.Parts) < len(b.Parts)
}

// PathComponents returns the components suitable for joining into a
// filesystem path (one directory per component).
func (i Ident) PathComponents() []string {
	return i.Parts
}
