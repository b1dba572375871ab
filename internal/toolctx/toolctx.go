// Package toolctx holds the build-wide immutable Context (§3): target
// architecture and platform descriptors, the resolved module graph, the
// tag set, user-supplied flags, and a hash of the toolchain's version.
package toolctx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os/exec"
	"sort"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/module"
	"github.com/hbuild/hbuild/internal/tagset"
)

// Arch describes a target architecture: its name and the backend's name
// for it. Tool command names live in Tools.
type Arch struct {
	Name        string // e.g. "amd64"
	BackendName string // the name the backend expects via -t
}

// KnownArchs is the set of architectures this driver can target. Cross-OS
// compilation is explicitly out of scope (spec.md Non-goals); every entry
// targets the same host kernel.
var KnownArchs = map[string]Arch{
	"amd64": {Name: "amd64", BackendName: "amd64_sysv"},
	"arm64": {Name: "arm64", BackendName: "arm64"},
	"riscv64": {Name: "riscv64", BackendName: "rv64"},
}

// Platform carries per-stage default flags for the host platform.
type Platform struct {
	DefaultFlags map[Stage][]string
}

// Stage is a closed enumeration of the five compilation phases (§3). TD is
// never materialized as its own Task; it is a side output of SSA.
type Stage int

const (
	TD Stage = iota
	SSA
	S
	O
	BIN
)

func (s Stage) String() string {
	switch s {
	case TD:
		return "TD"
	case SSA:
		return "SSA"
	case S:
		return "S"
	case O:
		return "O"
	case BIN:
		return "BIN"
	default:
		return "?"
	}
}

// Ext returns the canonical file extension for a stage's cache artifact.
func (s Stage) Ext() string {
	switch s {
	case SSA:
		return "ssa"
	case S:
		return "s"
	case O:
		return "o"
	case BIN:
		return "bin"
	case TD:
		return "ssa.td"
	default:
		return "out"
	}
}

// Tools names the external executables the driver drives, overridable via
// environment variables (§6): HAREC, QBE, AS, LD, CC, AR.
type Tools struct {
	Frontend string // HAREC
	Backend  string // QBE
	As       string // AS
	Ld       string // LD
	Cc       string // CC
	Ar       string // AR
}

// DefaultTools returns the default tool command names, used when the
// corresponding environment variable is unset.
func DefaultTools() Tools {
	return Tools{
		Frontend: "harec",
		Backend:  "qbe",
		As:       "as",
		Ld:       "ld",
		Cc:       "cc",
		Ar:       "ar",
	}
}

// Context is immutable for the duration of a build.
type Context struct {
	Arch     Arch
	Platform Platform
	Tools    Tools

	Graph *module.Graph
	Tags  *tagset.Set

	NamespaceOverride string
	Test              bool
	Submods           bool
	Freestanding      bool
	LibcLink          bool

	// Cwd is the working directory `test` was invoked from, used together
	// with Submods to decide which non-root modules also get -T (§4.8).
	Cwd string

	LibPaths []string
	Libs     []string

	Defines map[string]string // key-value defines injected into the frontend

	ToolchainVersionDigest string // hex-encoded, hashed once per process

	CacheRoot string
}

// HashToolchainVersion invokes each configured tool with a version probe
// and folds the combined output into a single digest, fulfilling §10.3 of
// the expanded design: a concrete toolchain version fingerprint used by
// the SSA fingerprint (§4.4).
func (c *Context) HashToolchainVersion(ctx context.Context) error {
	h := sha256.New()
	tools := []string{c.Tools.Frontend, c.Tools.Backend, c.Tools.As, c.Tools.Ld}
	sort.Strings(tools)
	for _, name := range tools {
		out, err := exec.CommandContext(ctx, name, "-v").CombinedOutput()
		if err != nil {
			// Some of these tools (notably assemblers/linkers) write version
			// info to stderr and exit non-zero for -v; that's fine, the bytes
			// still feed the digest. A missing binary is the only real error.
			if _, ok := err.(*exec.Error); ok {
				return bderr.Wrap(err, "toolchain version probe: "+name)
			}
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(out)
		h.Write([]byte{0})
	}
	c.ToolchainVersionDigest = hex.EncodeToString(h.Sum(nil))
	return nil
}
