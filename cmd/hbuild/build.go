package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/hbuild/hbuild/internal/bdctx"
	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/module"
	"github.com/hbuild/hbuild/internal/schedule"
	"github.com/hbuild/hbuild/internal/tagset"
	"github.com/hbuild/hbuild/internal/task"
	"github.com/hbuild/hbuild/internal/toolctx"
)

const buildHelp = `hbuild build [-flags] [path]

Build a module and its dependency closure (default path: current directory).

Example:
  % hbuild build -a amd64 -o hello ./cmd/hello
`

// buildType is the value of the build subcommand's -t flag (§6: "build type
// (assembly / object / binary)"). The pipeline runs every stage, BIN
// included, for all three values; only buildBinary copies the linked binary
// to the output path, and s/o copy nothing out of the cache.
type buildType string

const (
	buildAssembly buildType = "s"
	buildObject   buildType = "o"
	buildBinary   buildType = "bin"
)

// buildOptions collects every flag common to build/run/test, so the latter
// two can drive the same pipeline with a narrower flag surface.
type buildOptions struct {
	root         string
	archName     string
	freestanding bool
	namespace    string
	tagsOverride string
	jobs         int
	verbose      bool
	vverbose     bool
	test         bool
	submods      bool
	defines      []string
	libPaths     []string
	libs         []string
}

// pipelineResult is what runPipeline hands back to build/run/test.
type pipelineResult struct {
	graph    *module.Graph
	artifact string // BIN artifact path recorded by the driver
}

func runPipeline(ctx context.Context, o buildOptions) (*pipelineResult, error) {
	enableTraceIfRequested("hbuild")

	arch, ok := toolctx.KnownArchs[o.archName]
	if !ok {
		fmt.Fprintf(os.Stderr, "error: not-found: unknown architecture %q\n", o.archName)
		os.Exit(exitUnknownArch)
	}

	tags := tagset.New(o.archName, "linux")
	if o.tagsOverride != "" {
		pred, err := tagset.ParsePredicate(withLeadingSigil(o.tagsOverride))
		if err != nil {
			return nil, err
		}
		for _, tg := range pred.Tags {
			if tg.Polarity == tagset.Include {
				tags.Add(tg.Name)
			} else {
				tags.Remove(tg.Name)
			}
		}
	}

	r := &module.Resolver{SearchPath: searchPath(), Tags: tags}
	graph, err := r.Resolve(o.root)
	if err != nil {
		if isNotFound(err) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(exitModuleNotFound)
		}
		return nil, err
	}

	parsedDefines := make(map[string]string, len(o.defines))
	for _, d := range o.defines {
		pd, err := parseDefine(d)
		if err != nil {
			return nil, err
		}
		parsedDefines[pd.Ident] = pd.Value
	}

	root, err := cacheRoot()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	tc := &toolctx.Context{
		Arch:              arch,
		Platform:          toolctx.Platform{DefaultFlags: map[toolctx.Stage][]string{}},
		Tools:             resolveTools(),
		Graph:             graph,
		Tags:              tags,
		NamespaceOverride: o.namespace,
		Test:              o.test,
		Submods:           o.submods,
		Cwd:               cwd,
		Freestanding:      o.freestanding,
		LibcLink:          !o.freestanding,
		LibPaths:          o.libPaths,
		Libs:              o.libs,
		Defines:           parsedDefines,
		CacheRoot:         root,
	}
	if err := tc.HashToolchainVersion(ctx); err != nil {
		return nil, err
	}

	if err := bdctx.BumpFileLimit(); err != nil && (o.verbose || o.vverbose) {
		fmt.Fprintf(os.Stderr, "warning: bumping RLIMIT_NOFILE failed: %v\n", err)
	}

	tg, err := task.Build(graph)
	if err != nil {
		return nil, err
	}

	d := newDriver(tc, tg)
	s := &schedule.Scheduler{Graph: tg, Run: d.Run, Workers: jobs(o.jobs)}
	if err := s.Execute(ctx); err != nil {
		return nil, err
	}

	return &pipelineResult{graph: graph, artifact: d.BINArtifact()}, nil
}

func build(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		archName     = fset.String("a", runtime.GOARCH, "target architecture")
		freestanding = fset.Bool("F", false, "freestanding (no libc) build")
		output       = fset.String("o", "", "output path (default: derived from the root module name)")
		btype        = fset.String("t", string(buildBinary), "build type: s (assembly), o (object), bin (binary); every stage is built either way, and only bin copies the binary to -o")
		namespace    = fset.String("N", "", "namespace override (kept in the build context; no stage passes it to a tool)")
		tagsOverride = fset.String("T", "", "tag set override, e.g. +linux-old")
		jflag        = fset.Int("j", 0, "parallelism (default: HBUILD_JOBS or processor count)")
		verbose      = fset.Bool("v", false, "verbose output")
		vverbose     = fset.Bool("vv", false, "very verbose output")
	)
	var defines, libPaths, libs repeatedFlag
	fset.Var(&defines, "D", "define ident[:type]=value (repeatable)")
	fset.Var(&libPaths, "L", "library search path (repeatable)")
	fset.Var(&libs, "l", "library name (repeatable)")
	fset.Usage = usage(fset, buildHelp)
	fset.Parse(args)

	root := "."
	if fset.NArg() > 0 {
		root = fset.Arg(0)
	}

	res, err := runPipeline(ctx, buildOptions{
		root:         root,
		archName:     *archName,
		freestanding: *freestanding,
		namespace:    *namespace,
		tagsOverride: *tagsOverride,
		jobs:         *jflag,
		verbose:      *verbose,
		vverbose:     *vverbose,
		defines:      defines,
		libPaths:     libPaths,
		libs:         libs,
	})
	if err != nil {
		return err
	}

	if buildType(*btype) != buildBinary {
		return nil // every stage, BIN included, has run and is cached; nothing is copied out
	}

	outPath := *output
	if outPath == "" {
		parts := res.graph.Modules[res.graph.Root].Ident.PathComponents()
		outPath = parts[len(parts)-1]
	}
	return installArtifact(res.artifact, outPath)
}

func isNotFound(err error) bool {
	return bderr.Is(err, bderr.NotFound)
}

func withLeadingSigil(s string) string {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return s
	}
	return "+" + s
}
