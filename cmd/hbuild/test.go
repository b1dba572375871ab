package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"runtime"

	"github.com/hbuild/hbuild/internal/stagedriver"
)

const testHelp = `hbuild test [-flags] [path]

Build a module with its test harness enabled and execute it (§4.8: test sets
the "test" flag for SSA of the root module, and, with -submods, every
module beneath the current working directory too).

Example:
  % hbuild test ./net/dns
  % hbuild test -submods ./net
`

func test(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("test", flag.ExitOnError)
	var (
		archName     = fset.String("a", runtime.GOARCH, "target architecture")
		tagsOverride = fset.String("T", "", "tag set override, e.g. +linux-old")
		jflag        = fset.Int("j", 0, "parallelism (default: HBUILD_JOBS or processor count)")
		submods      = fset.Bool("submods", false, "also set the test flag for descendant modules under the working directory")
	)
	fset.Usage = usage(fset, testHelp)
	fset.Parse(args)

	root := "."
	if fset.NArg() > 0 {
		root = fset.Arg(0)
	}

	res, err := runPipeline(ctx, buildOptions{
		root:         root,
		archName:     *archName,
		tagsOverride: *tagsOverride,
		jobs:         *jflag,
		test:         true,
		submods:      *submods,
	})
	if err != nil {
		return err
	}

	err = stagedriver.Run(res.artifact, nil, ".")
	if exitErr, ok := err.(*exec.ExitError); ok {
		os.Exit(exitErr.ExitCode())
	}
	return err
}
