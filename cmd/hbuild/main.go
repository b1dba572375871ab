// Command hbuild is a content-addressed build driver: it resolves a module
// graph, schedules per-stage compiler/assembler/linker invocations behind a
// content-addressed cache, and produces (or runs, or tests) the resulting
// artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/hbuild/hbuild/internal/bdctx"
	"github.com/hbuild/hbuild/internal/bderr"
)

var debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")

type verb struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	verbs := map[string]verb{
		"build": {build},
		"run":   {run},
		"test":  {test},
		"cache": {cacheCmd},
	}

	args := flag.Args()
	name := "build"
	if len(args) > 0 {
		name, args = args[0], args[1:]
	}

	if name == "help" {
		fmt.Fprintln(os.Stderr, "hbuild [-flags] <command> [-flags] [args]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "\tbuild  - build a module and its dependency closure")
		fmt.Fprintln(os.Stderr, "\trun    - build then execute the final artifact")
		fmt.Fprintln(os.Stderr, "\ttest   - build with the test harness enabled, then execute")
		fmt.Fprintln(os.Stderr, "\tcache  - inspect or clear the on-disk build cache")
		os.Exit(exitOK)
	}

	ctx, cancel := bdctx.InterruptibleContext()
	defer cancel()
	defer bdctx.RunCleanups()

	v, ok := verbs[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fmt.Fprintf(os.Stderr, "syntax: hbuild <command> [options]\n")
		os.Exit(exitUnknownVerb)
	}
	return v.fn(ctx, args)
}

func main() {
	if err := funcmain(); err != nil {
		if *debug {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		var be *bderr.Error
		if errors.As(err, &be) && be.Kind == bderr.ToolFailure {
			for _, p := range be.Paths {
				if b, rerr := os.ReadFile(p); rerr == nil {
					os.Stderr.Write(b)
				}
			}
		}
		os.Exit(exitGenericFailure)
	}
}
