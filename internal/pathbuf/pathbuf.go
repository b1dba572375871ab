// Package pathbuf implements a fixed-capacity, normalized filesystem path
// buffer (§4.1 of the design): push/pop/peek/parent/iter over a canonical
// path using the platform separator, with overflow as a first-class error
// rather than an unbounded allocation.
package pathbuf

import (
	"strings"

	"github.com/hbuild/hbuild/internal/bderr"
)

// MaxPath bounds the buffer's capacity, matching Linux's PATH_MAX — the
// teacher is Linux-only throughout (syscall/unix usage in internal/build),
// so this driver is too.
const MaxPath = 4096

const sep = "/"

// Buf is a fixed-capacity normalized path buffer.
type Buf struct {
	segs []string // normalized, non-empty segments; absolute iff abs is true
	abs  bool
}

// Init builds a Buf from components, normalizing as it goes.
func Init(components ...string) (*Buf, error) {
	b := &Buf{}
	if err := b.Set(components...); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Buf) checkCapacity() error {
	if len(b.String()) > MaxPath {
		return bderr.New(bderr.PathOverflow, nil, "path exceeds MaxPath")
	}
	return nil
}

// Set replaces the buffer's contents with components, normalizing.
func (b *Buf) Set(components ...string) error {
	b.segs = nil
	b.abs = false
	return b.Push(components...)
}

// Push appends components to the buffer, applying "." no-op, ".." pop (a
// no-op on root; an append if the buffer is empty or already ends in
// ".."), and collapsing empty segments, per §4.1.
func (b *Buf) Push(components ...string) error {
	for _, c := range components {
		for _, raw := range strings.Split(c, sep) {
			if raw == "" {
				if !b.abs && len(b.segs) == 0 && strings.HasPrefix(c, sep) {
					b.abs = true
				}
				continue
			}
			if raw == "." {
				continue
			}
			if raw == ".." {
				if b.isroot() {
					continue // root pop is idempotent, a no-op
				}
				if len(b.segs) == 0 || b.segs[len(b.segs)-1] == ".." {
					b.segs = append(b.segs, "..")
					continue
				}
				b.segs = b.segs[:len(b.segs)-1]
				continue
			}
			b.segs = append(b.segs, raw)
		}
	}
	return b.checkCapacity()
}

// Pop removes and returns the last segment. Root and empty buffers are
// no-ops and return ("", false).
func (b *Buf) Pop() (string, bool) {
	if b.isroot() || len(b.segs) == 0 {
		return "", false
	}
	last := b.segs[len(b.segs)-1]
	b.segs = b.segs[:len(b.segs)-1]
	return last, true
}

// Peek returns the last segment without removing it.
func (b *Buf) Peek() (string, bool) {
	if len(b.segs) == 0 {
		return "", false
	}
	return b.segs[len(b.segs)-1], true
}

// Parent returns a new Buf with one ".." applied, without mutating b.
func (b *Buf) Parent() *Buf {
	cp := b.clone()
	cp.Push("..")
	return cp
}

func (b *Buf) clone() *Buf {
	segs := make([]string, len(b.segs))
	copy(segs, b.segs)
	return &Buf{segs: segs, abs: b.abs}
}

// Abs reports whether the buffer represents an absolute path.
func (b *Buf) Abs() bool { return b.abs }

// IsRoot reports whether the buffer is exactly the filesystem root.
func (b *Buf) IsRoot() bool { return b.isroot() }

func (b *Buf) isroot() bool { return b.abs && len(b.segs) == 0 }

// String renders the canonical path. An empty, non-absolute buffer renders
// as ".".
func (b *Buf) String() string {
	if b.abs {
		return sep + strings.Join(b.segs, sep)
	}
	if len(b.segs) == 0 {
		return "."
	}
	return strings.Join(b.segs, sep)
}

// Direction selects the iteration order for Iter.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Iter lazily yields the buffer's components in the given direction. For an
// absolute path, the first component yielded in Forward order is the
// separator itself.
func (b *Buf) Iter(dir Direction) func(yield func(string) bool) {
	return func(yield func(string) bool) {
		if dir == Forward {
			if b.abs {
				if !yield(sep) {
					return
				}
			}
			for _, s := range b.segs {
				if !yield(s) {
					return
				}
			}
			return
		}
		for i := len(b.segs) - 1; i >= 0; i-- {
			if !yield(b.segs[i]) {
				return
			}
		}
		if b.abs {
			yield(sep)
		}
	}
}
