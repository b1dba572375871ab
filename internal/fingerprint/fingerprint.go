// Package fingerprint computes the content hash that identifies a cache
// entry (§4.4): a SHA-256 digest folded over the tool command, its
// stage-appropriate static flags, and the identities of its inputs, each
// followed by a separator byte so no element's encoding can span a
// boundary with its neighbor.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hbuild/hbuild/internal/toolctx"
)

const sep = byte(0)

// Input collects everything §4.4 says feeds a stage's fingerprint. Only the
// fields relevant to the stage in question are consulted by Compute.
type Input struct {
	Stage toolctx.Stage

	Command     string   // the tool's command name for this stage
	StaticFlags []string // flags not derived from the hash itself

	// SSA-only.
	ArchName        string
	ToolchainDigest string
	DepTDEnv        []string // "HARE_TD_<module>=<value>", already filtered non-empty

	// S-only.
	BackendArchName string

	// BIN-only.
	Libs []string // library names requested with -l

	// All stages: dependency input paths, in a stable order.
	InputPaths []string
}

// Compute folds in into a hex-encoded SHA-256 digest, in the exact element
// order specified by §4.4.
func Compute(in Input) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{sep})
	}

	write(in.Command)
	for _, f := range in.StaticFlags {
		write(f)
	}

	switch in.Stage {
	case toolctx.SSA:
		write(in.ArchName)
		write(in.ToolchainDigest)
		for _, kv := range in.DepTDEnv {
			write(kv)
		}
	case toolctx.S:
		write(in.BackendArchName)
	case toolctx.BIN:
		for _, l := range in.Libs {
			write(l)
		}
	}

	for _, p := range in.InputPaths {
		write(p)
	}

	return hex.EncodeToString(h.Sum(nil))
}
