// Package stagedriver assembles and runs one external tool invocation per
// stage task (§4.8): platform defaults, POSIX-shell-split `*FLAGS`
// environment overrides, stage-specific flags, input paths, and derived
// output flags.
package stagedriver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/shlex"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/toolctx"
)

// EnvFlags splits a `*FLAGS` environment variable using POSIX shell rules
// (§4.8, §6), returning nil if the variable is unset or empty.
func EnvFlags(name string) ([]string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return nil, nil
	}
	fields, err := shlex.Split(v)
	if err != nil {
		return nil, bderr.Wrapf(err, "parsing %s", name)
	}
	return fields, nil
}

// Request is everything one stage invocation needs beyond the tool's static
// platform flags.
type Request struct {
	Ctx   *toolctx.Context
	Stage toolctx.Stage

	ModuleNamespace string
	Defines         map[string]string

	InputPaths  []string // source files (SSA/O) or cached artifacts (S/O/BIN)
	LinkerInputs []string // BIN only: precompiled linker scripts, -T <path>

	OutputPath  string // -o
	TDSidecar   string // SSA only: -t <path>

	// Test is whether this particular module's SSA invocation should
	// receive -T. Ctx.Test is build-wide ("was `hbuild test` used at
	// all"); Test scopes that down to the root module (and, under
	// Ctx.Submods, modules beneath the working directory), per §4.8.
	Test bool
}

// Command assembles and returns the *exec.Cmd for one stage request. The
// caller is responsible for wiring Stdout/Stderr and running it under the
// cache protocol (internal/cache).
func Command(req Request) (*exec.Cmd, error) {
	switch req.Stage {
	case toolctx.SSA:
		return frontendCommand(req)
	case toolctx.S:
		return backendCommand(req)
	case toolctx.O:
		return assembleCommand(req)
	case toolctx.BIN:
		return linkCommand(req)
	default:
		return nil, fmt.Errorf("stagedriver: unsupported stage %v", req.Stage)
	}
}

func mergeFlags(platform []string, env []string, stage []string) []string {
	out := make([]string, 0, len(platform)+len(env)+len(stage))
	out = append(out, platform...)
	out = append(out, env...)
	out = append(out, stage...)
	return out
}

func frontendCommand(req Request) (*exec.Cmd, error) {
	env, err := EnvFlags("HARECFLAGS")
	if err != nil {
		return nil, err
	}
	stage := []string{"-a", req.Ctx.Arch.Name}
	if req.ModuleNamespace != "" {
		stage = append(stage, "-N", req.ModuleNamespace)
	}
	if req.Test {
		stage = append(stage, "-T")
	}
	if req.Ctx.Freestanding {
		stage = append(stage, "-F")
	}
	for k, v := range req.Defines {
		stage = append(stage, "-D", k+"="+v)
	}
	stage = append(stage, "-o", req.OutputPath)
	if req.TDSidecar != "" {
		stage = append(stage, "-t", req.TDSidecar)
	}

	args := mergeFlags(req.Ctx.Platform.DefaultFlags[toolctx.SSA], env, stage)
	args = append(args, req.InputPaths...)
	return exec.Command(req.Ctx.Tools.Frontend, args...), nil
}

func backendCommand(req Request) (*exec.Cmd, error) {
	env, err := EnvFlags("QBEFLAGS")
	if err != nil {
		return nil, err
	}
	stage := []string{"-t", req.Ctx.Arch.BackendName, "-o", req.OutputPath}
	args := mergeFlags(req.Ctx.Platform.DefaultFlags[toolctx.S], env, stage)
	args = append(args, req.InputPaths...)
	return exec.Command(req.Ctx.Tools.Backend, args...), nil
}

func assembleCommand(req Request) (*exec.Cmd, error) {
	env, err := EnvFlags("ASFLAGS")
	if err != nil {
		return nil, err
	}
	stage := []string{"-o", req.OutputPath}
	args := mergeFlags(req.Ctx.Platform.DefaultFlags[toolctx.O], env, stage)
	args = append(args, req.InputPaths...)
	return exec.Command(req.Ctx.Tools.As, args...), nil
}

// linkCommand switches between libc-based linking (invoking the C compiler,
// with --gc-sections toggled off again for dynamic linking) and
// free-standing linking (invoking the linker directly), per §4.8.
func linkCommand(req Request) (*exec.Cmd, error) {
	envName := "LDFLAGS"
	tool := req.Ctx.Tools.Ld
	if req.Ctx.LibcLink {
		envName = "LDLINKFLAGS"
		tool = req.Ctx.Tools.Cc
	}
	env, err := EnvFlags(envName)
	if err != nil {
		return nil, err
	}

	var stage []string
	if req.Ctx.LibcLink {
		stage = append(stage, "-Wl,--gc-sections", "-Wl,--no-gc-sections")
		for _, lp := range req.Ctx.LibPaths {
			stage = append(stage, "-L", lp)
		}
		for _, l := range req.Ctx.Libs {
			stage = append(stage, "-l"+l)
		}
	} else {
		stage = append(stage, "--gc-sections", "-z", "noexecstack")
		for _, lp := range req.Ctx.LibPaths {
			stage = append(stage, "-L", lp)
		}
	}
	for _, ld := range req.LinkerInputs {
		stage = append(stage, "-T", ld)
	}
	stage = append(stage, "-o", req.OutputPath)

	args := mergeFlags(req.Ctx.Platform.DefaultFlags[toolctx.BIN], env, stage)
	args = append(args, req.InputPaths...)
	return exec.Command(tool, args...), nil
}

// Run executes the final artifact at binPath with argv, forwarding its exit
// status as the returned error's *exec.ExitError where non-nil (the `run`
// and `test` verbs of §4.8).
func Run(binPath string, argv []string, dir string) error {
	abs, err := filepath.Abs(binPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(abs, argv...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
