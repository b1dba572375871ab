package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"runtime"

	"github.com/hbuild/hbuild/internal/stagedriver"
)

const runHelp = `hbuild run [-flags] [path] [-- args...]

Build a module then execute its final artifact, forwarding its exit status.

Example:
  % hbuild run ./cmd/hello -- world
`

func run(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		archName     = fset.String("a", runtime.GOARCH, "target architecture")
		tagsOverride = fset.String("T", "", "tag set override, e.g. +linux-old")
		jflag        = fset.Int("j", 0, "parallelism (default: HBUILD_JOBS or processor count)")
	)
	fset.Usage = usage(fset, runHelp)
	fset.Parse(args)

	root, argv := splitPathAndArgs(fset.Args())

	res, err := runPipeline(ctx, buildOptions{
		root:         root,
		archName:     *archName,
		tagsOverride: *tagsOverride,
		jobs:         *jflag,
	})
	if err != nil {
		return err
	}

	err = stagedriver.Run(res.artifact, argv, ".")
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	return err
}

// splitPathAndArgs separates the optional module path from forwarded
// arguments: everything after the first positional argument, minus a
// leading "--" separator, is forwarded to the executed artifact verbatim.
func splitPathAndArgs(rest []string) (path string, argv []string) {
	if len(rest) == 0 {
		return ".", nil
	}
	argv = rest[1:]
	if len(argv) > 0 && argv[0] == "--" {
		argv = argv[1:]
	}
	return rest[0], argv
}
