package main

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/cache"
	"github.com/hbuild/hbuild/internal/fingerprint"
	"github.com/hbuild/hbuild/internal/module"
	"github.com/hbuild/hbuild/internal/schedule"
	"github.com/hbuild/hbuild/internal/stagedriver"
	"github.com/hbuild/hbuild/internal/task"
	"github.com/hbuild/hbuild/internal/toolctx"
)

// driver wires the task graph, cache, and stage driver together into a
// schedule.Runner: the glue the CLI hands to the scheduler (§2's control
// flow paragraph).
type driver struct {
	ctx *toolctx.Context
	tg  *task.Graph

	mu       sync.Mutex
	artifact map[*task.Task]string // final artifact path, once Done
	cachePs  map[*task.Task]cache.Paths
}

func newDriver(ctx *toolctx.Context, tg *task.Graph) *driver {
	return &driver{
		ctx:      ctx,
		tg:       tg,
		artifact: make(map[*task.Task]string),
		cachePs:  make(map[*task.Task]cache.Paths),
	}
}

func (d *driver) modulePath(idx int) string {
	m := d.tg.Modules.Modules[idx]
	parts := append([]string{d.ctx.Arch.Name}, m.Ident.PathComponents()...)
	return filepath.Join(parts...)
}

// testApplies reports whether moduleIdx's SSA invocation should get -T:
// the root module always, and (when Ctx.Submods is set) any module whose
// path sits underneath the working directory Ctx.Cwd was invoked from
// (§4.8: "the root (and optionally descendants under the current working
// directory)").
func (d *driver) testApplies(moduleIdx int) bool {
	if !d.ctx.Test {
		return false
	}
	if moduleIdx == d.tg.Modules.Root {
		return true
	}
	if !d.ctx.Submods || d.ctx.Cwd == "" {
		return false
	}
	m := d.tg.Modules.Modules[moduleIdx]
	rel, err := filepath.Rel(d.ctx.Cwd, m.Path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func (d *driver) findStage(moduleIdx int, stage toolctx.Stage) *task.Task {
	for _, t := range d.tg.Tasks {
		if t.ModuleIndex == moduleIdx && t.Stage == stage {
			return t
		}
	}
	return nil
}

// Run implements schedule.Runner.
func (d *driver) Run(ctx context.Context, t *task.Task) (schedule.Outcome, error) {
	if t.Stage == toolctx.BIN {
		return d.runBIN(ctx, t)
	}
	return d.runModuleStage(ctx, t)
}

func (d *driver) runModuleStage(ctx context.Context, t *task.Task) (schedule.Outcome, error) {
	m := d.tg.Modules.Modules[t.ModuleIndex]

	var inputPaths []string
	var depTDEnv []string
	sidecarExt := ""

	switch t.Stage {
	case toolctx.SSA:
		inputPaths = m.Sources.Lang
		sidecarExt = "ssa.td"
		for _, e := range m.Deps {
			dep := d.findStage(e.Index, toolctx.SSA)
			d.mu.Lock()
			dp, ok := d.cachePs[dep]
			d.mu.Unlock()
			if !ok {
				return 0, fmt.Errorf("internal error: dependency SSA task for %s not yet recorded", e.Ident)
			}
			td, err := cache.ReadTD(dp)
			if err != nil {
				return 0, bderr.Wrap(err, "reading TD for "+e.Ident.String())
			}
			if td == "" {
				continue // §4.4: HARE_TD_<module> is only included when non-empty
			}
			depTDEnv = append(depTDEnv, "HARE_TD_"+e.Ident.String()+"="+td)
		}
		sort.Strings(depTDEnv)
	case toolctx.S:
		d.mu.Lock()
		inputPaths = []string{d.artifact[d.findStage(t.ModuleIndex, toolctx.SSA)]}
		d.mu.Unlock()
	case toolctx.O:
		d.mu.Lock()
		sPath := d.artifact[d.findStage(t.ModuleIndex, toolctx.S)]
		d.mu.Unlock()
		inputPaths = append([]string{sPath}, m.Sources.Asm...)
	}

	staticFlags := append([]string{}, d.ctx.Platform.DefaultFlags[t.Stage]...)
	if t.Stage == toolctx.SSA {
		if d.testApplies(t.ModuleIndex) {
			staticFlags = append(staticFlags, "-T")
		}
		if d.ctx.Freestanding {
			staticFlags = append(staticFlags, "-F")
		}
		var defs []string
		for k, v := range d.ctx.Defines {
			defs = append(defs, "-D"+k+"="+v)
		}
		sort.Strings(defs)
		staticFlags = append(staticFlags, defs...)
	}

	in := fingerprint.Input{
		Stage:           t.Stage,
		Command:         commandName(d.ctx, t.Stage),
		StaticFlags:     staticFlags,
		ArchName:        d.ctx.Arch.Name,
		ToolchainDigest: d.ctx.ToolchainVersionDigest,
		DepTDEnv:        depTDEnv,
		BackendArchName: d.ctx.Arch.BackendName,
		InputPaths:      inputPaths,
	}
	hash := fingerprint.Compute(in)
	p := cache.For(d.ctx.CacheRoot, d.modulePath(t.ModuleIndex), hash, t.Stage.Ext())

	req := stagedriver.Request{
		Ctx:             d.ctx,
		Stage:           t.Stage,
		ModuleNamespace: m.Namespace.String(),
		Defines:         d.ctx.Defines,
		InputPaths:      inputPaths,
		Test:            t.Stage == toolctx.SSA && d.testApplies(t.ModuleIndex),
	}

	res := cache.Build(ctx, p, m.Sources.ModTime, cache.Invocation{
		Command: func(tmp string) *exec.Cmd {
			req.OutputPath = tmp
			if t.Stage == toolctx.SSA {
				tdTmp, _ := p.SidecarPaths(sidecarExt)
				req.TDSidecar = tdTmp
			}
			c, err := stagedriver.Command(req)
			if err != nil {
				panic(err) // env/flag parsing errors, validated earlier by the CLI
			}
			return c
		},
		SidecarExt: sidecarExt,
		EnvLines:   depTDEnv,
	})

	if res.Outcome == cache.Fresh || res.Outcome == cache.Built {
		d.mu.Lock()
		d.cachePs[t] = p
		d.artifact[t] = p.Artifact
		d.mu.Unlock()
	}

	return outcomeOf(res)
}

func (d *driver) runBIN(ctx context.Context, t *task.Task) (schedule.Outcome, error) {
	var inputPaths []string
	d.mu.Lock()
	for i := range d.tg.Modules.Modules {
		inputPaths = append(inputPaths, d.artifact[d.findStage(i, toolctx.O)])
	}
	d.mu.Unlock()
	sort.Strings(inputPaths)

	var linkerInputs []string
	for _, m := range d.tg.Modules.Modules {
		linkerInputs = append(linkerInputs, m.Sources.Linker...)
	}
	sort.Strings(linkerInputs)

	in := fingerprint.Input{
		Stage:       toolctx.BIN,
		Command:     commandName(d.ctx, toolctx.BIN),
		StaticFlags: d.ctx.Platform.DefaultFlags[toolctx.BIN],
		Libs:        d.ctx.Libs,
		InputPaths:  append(append([]string{}, inputPaths...), linkerInputs...),
	}
	hash := fingerprint.Compute(in)
	p := cache.For(d.ctx.CacheRoot, filepath.Join(d.ctx.Arch.Name, "bin"), hash, "bin")

	req := stagedriver.Request{
		Ctx:          d.ctx,
		Stage:        toolctx.BIN,
		InputPaths:   inputPaths,
		LinkerInputs: linkerInputs,
	}

	res := cache.Build(ctx, p, latestModTime(d.tg.Modules), cache.Invocation{
		Command: func(tmp string) *exec.Cmd {
			req.OutputPath = tmp
			c, err := stagedriver.Command(req)
			if err != nil {
				panic(err)
			}
			return c
		},
	})

	if res.Outcome == cache.Fresh || res.Outcome == cache.Built {
		d.mu.Lock()
		d.artifact[t] = p.Artifact
		d.mu.Unlock()
	}

	return outcomeOf(res)
}

func commandName(ctx *toolctx.Context, stage toolctx.Stage) string {
	switch stage {
	case toolctx.SSA:
		return ctx.Tools.Frontend
	case toolctx.S:
		return ctx.Tools.Backend
	case toolctx.O:
		return ctx.Tools.As
	case toolctx.BIN:
		if ctx.LibcLink {
			return ctx.Tools.Cc
		}
		return ctx.Tools.Ld
	default:
		return ""
	}
}

func outcomeOf(res cache.Result) (schedule.Outcome, error) {
	switch res.Outcome {
	case cache.Fresh:
		return schedule.DoneFresh, nil
	case cache.Built:
		return schedule.DoneBuilt, nil
	case cache.WouldBlock:
		return schedule.WouldBlock, nil
	default:
		return 0, res.Err
	}
}

// latestModTime aggregates every module's source modtime, since the final
// link task's inputs span the whole graph.
func latestModTime(g *module.Graph) time.Time {
	var latest time.Time
	for _, m := range g.Modules {
		if m.Sources.ModTime.After(latest) {
			latest = m.Sources.ModTime
		}
	}
	return latest
}

// BINArtifact returns the final artifact path recorded for the sink task,
// once the scheduler reports success.
func (d *driver) BINArtifact() string {
	for _, t := range d.tg.Tasks {
		if t.Stage == toolctx.BIN {
			d.mu.Lock()
			defer d.mu.Unlock()
			return d.artifact[t]
		}
	}
	return ""
}
