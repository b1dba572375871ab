// Package task builds the task graph of §4.6: one node per (module, stage)
// pair, plus a single sink BIN task, ordered so that every SSA task appears
// before any S task, every S before any O, and BIN last.
package task

import (
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/module"
	"github.com/hbuild/hbuild/internal/toolctx"
)

// State is a task's position in the scheduler's state machine (§4.7).
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "?"
	}
}

// Task is one unit of scheduling work: build (or skip) one stage of one
// module, or — for the distinguished sink task — link the final binary.
type Task struct {
	// ModuleIndex indexes into the Graph's originating module.Graph.Modules.
	// The sink BIN task sets ModuleIndex to -1.
	ModuleIndex int
	Stage       toolctx.Stage
	State       State

	id int64 // node ID in the prerequisite graph
}

func (t *Task) ID() int64 { return t.id }

// Graph is the full task array plus its prerequisite edges, ready for the
// scheduler (§4.7) to scan.
type Graph struct {
	Modules *module.Graph
	Tasks   []*Task // sorted per §4.6: all SSA, then all S, then all O, then BIN

	g        *simple.DirectedGraph
	bySig    map[string]*Task // "<moduleIndex>:<stage>" -> task, BIN excluded
	binTask  *Task
}

func sig(moduleIdx int, stage toolctx.Stage) string {
	return fmt.Sprintf("%d:%d", moduleIdx, stage)
}

// Build constructs the task graph for mg per §4.6.
func Build(mg *module.Graph) (*Graph, error) {
	tg := &Graph{
		Modules: mg,
		g:       simple.NewDirectedGraph(),
		bySig:   make(map[string]*Task),
	}

	var nextID int64
	newTask := func(moduleIdx int, stage toolctx.Stage) *Task {
		t := &Task{ModuleIndex: moduleIdx, Stage: stage, id: nextID}
		nextID++
		tg.g.AddNode(t)
		if stage != toolctx.BIN {
			tg.bySig[sig(moduleIdx, stage)] = t
		}
		return t
	}

	for i := range mg.Modules {
		newTask(i, toolctx.SSA)
	}
	for i := range mg.Modules {
		newTask(i, toolctx.S)
	}
	for i := range mg.Modules {
		newTask(i, toolctx.O)
	}
	tg.binTask = newTask(-1, toolctx.BIN)

	// SSA(m) depends on SSA(d) for every direct dependency d of m.
	for i, m := range mg.Modules {
		ssaM := tg.bySig[sig(i, toolctx.SSA)]
		for _, e := range m.Deps {
			ssaD := tg.bySig[sig(e.Index, toolctx.SSA)]
			tg.g.SetEdge(tg.g.NewEdge(ssaM, ssaD))
		}
	}
	// S(m) depends on SSA(m); O(m) depends on S(m); BIN depends on O(m) for
	// every module.
	for i := range mg.Modules {
		sM := tg.bySig[sig(i, toolctx.S)]
		ssaM := tg.bySig[sig(i, toolctx.SSA)]
		tg.g.SetEdge(tg.g.NewEdge(sM, ssaM))

		oM := tg.bySig[sig(i, toolctx.O)]
		tg.g.SetEdge(tg.g.NewEdge(oM, sM))

		tg.g.SetEdge(tg.g.NewEdge(tg.binTask, oM))
	}

	ssaOrder, err := topoOrderStage(tg.g, mg, toolctx.SSA)
	if err != nil {
		return nil, err
	}

	tg.Tasks = make([]*Task, 0, len(mg.Modules)*3+1)
	tg.Tasks = append(tg.Tasks, ssaOrder...)
	for i := range mg.Modules {
		tg.Tasks = append(tg.Tasks, tg.bySig[sig(i, toolctx.S)])
	}
	for i := range mg.Modules {
		tg.Tasks = append(tg.Tasks, tg.bySig[sig(i, toolctx.O)])
	}
	tg.Tasks = append(tg.Tasks, tg.binTask)

	return tg, nil
}

// topoOrderStage returns the SSA tasks in dependency (leaves-first) order,
// using the same gonum sort the module resolver uses and reversing it for
// the same reason (§4.3.6): edges point module->dependency, so gonum's
// native order is dependents-first.
func topoOrderStage(g *simple.DirectedGraph, mg *module.Graph, stage toolctx.Stage) ([]*Task, error) {
	sorted, err := topo.SortStabilized(g, nil)
	if err != nil {
		if _, ok := err.(topo.Unorderable); ok {
			return nil, bderr.New(bderr.Cycle, err, "task graph")
		}
		return nil, err
	}

	var out []*Task
	for i := len(sorted) - 1; i >= 0; i-- {
		if t, ok := sorted[i].(*Task); ok && t.Stage == stage {
			out = append(out, t)
		}
	}
	return out, nil
}

// Prerequisites returns t's direct prerequisite tasks.
func (tg *Graph) Prerequisites(t *Task) []*Task {
	var out []*Task
	it := tg.g.From(t.ID())
	for it.Next() {
		out = append(out, it.Node().(*Task))
	}
	return out
}

// Ready reports whether every prerequisite of t is Done.
func (tg *Graph) Ready(t *Task) bool {
	for _, p := range tg.Prerequisites(t) {
		if p.State != Done {
			return false
		}
	}
	return true
}
