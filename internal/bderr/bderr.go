// Package bderr defines the build driver's error taxonomy: a small set of
// tagged kinds (§7 of the design) plus a context chain that accumulates
// annotations as an error propagates outward, unwound with errors.As/Is and
// golang.org/x/xerrors.
package bderr

import (
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Kind is a closed enumeration of error kinds the driver can produce.
type Kind int

const (
	// PathOverflow: a filesystem path would exceed the fixed path buffer.
	PathOverflow Kind = iota
	// NotFound: a module identifier does not resolve to any directory, or a
	// directory lacks both language sources and a README marker.
	NotFound
	// Conflict: two source files tie on tag-depth for the same (base, ext).
	Conflict
	// BadTag: a tag predicate contains a forbidden character, or a polarity
	// sigil starts a file/directory name without a preceding base name.
	BadTag
	// Cycle: a module import cycle.
	Cycle
	// WouldBlock: a cache lock is held. Internal only; never surfaced to the
	// user — the scheduler reschedules the task instead.
	WouldBlock
	// ToolFailure: an external tool exited non-zero.
	ToolFailure
	// IOError: any other filesystem error.
	IOError
)

func (k Kind) String() string {
	switch k {
	case PathOverflow:
		return "path overflow"
	case NotFound:
		return "not found"
	case Conflict:
		return "conflict"
	case BadTag:
		return "bad tag"
	case Cycle:
		return "cycle"
	case WouldBlock:
		return "would block"
	case ToolFailure:
		return "tool failure"
	case IOError:
		return "I/O error"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error carrying a context chain: a sequence of
// annotations, outermost first, describing where the failure was observed
// as it propagated up through the driver.
type Error struct {
	Kind    Kind
	Context []string
	Paths   []string // e.g. conflicting file paths, for Conflict
	err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("error: ")
	b.WriteString(e.Kind.String())
	for _, c := range e.Context {
		b.WriteString(": ")
		b.WriteString(c)
	}
	if len(e.Paths) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Paths, ", "))
		b.WriteString(")")
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.err }

// New creates a fresh Error of the given kind, wrapping cause (which may be
// nil).
func New(kind Kind, cause error, context string) *Error {
	return &Error{Kind: kind, Context: []string{context}, err: cause}
}

// WithPaths attaches conflicting/offending paths to an Error (used by
// Conflict for the tied sources and by ToolFailure for the log file).
func (e *Error) WithPaths(paths ...string) *Error {
	e.Paths = append(e.Paths, paths...)
	return e
}

// Wrap pushes a new context annotation onto an existing bderr.Error, or, if
// err is not a *bderr.Error, wraps it as an IOError with that context. Each
// call to Wrap conses a new annotation onto the front of the chain.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	var be *Error
	if xerrors.As(err, &be) {
		cp := *be
		cp.Context = append([]string{context}, cp.Context...)
		return &cp
	}
	return &Error{Kind: IOError, Context: []string{context}, err: err}
}

// Wrapf is Wrap with a formatted context string.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Is reports whether err (or anything it wraps) is a *bderr.Error of kind k.
func Is(err error, k Kind) bool {
	var be *Error
	if !xerrors.As(err, &be) {
		return false
	}
	return be.Kind == k
}
