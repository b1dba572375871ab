package schedule

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/hbuild/hbuild/internal/module"
	"github.com/hbuild/hbuild/internal/task"
)

// TestComputeShowStatusRespectsColorEnv verifies NO_COLOR suppresses the
// live status redraw and CLICOLOR_FORCE forces it regardless of NO_COLOR
// or terminal detection (§6, §10).
func TestComputeShowStatusRespectsColorEnv(t *testing.T) {
	for _, name := range []string{"NO_COLOR", "CLICOLOR_FORCE"} {
		old, had := os.LookupEnv(name)
		os.Unsetenv(name)
		defer func(name string, old string, had bool) {
			if had {
				os.Setenv(name, old)
			} else {
				os.Unsetenv(name)
			}
		}(name, old, had)
	}

	os.Setenv("NO_COLOR", "1")
	if computeShowStatus() {
		t.Error("expected NO_COLOR to suppress the status redraw")
	}
	os.Unsetenv("NO_COLOR")

	os.Setenv("NO_COLOR", "1")
	os.Setenv("CLICOLOR_FORCE", "1")
	if !computeShowStatus() {
		t.Error("expected CLICOLOR_FORCE to force the status redraw even with NO_COLOR set")
	}
	os.Unsetenv("NO_COLOR")
	os.Unsetenv("CLICOLOR_FORCE")
}

func graphOf(idents ...string) *module.Graph {
	mods := make([]*module.Module, len(idents))
	for i, id := range idents {
		mods[i] = &module.Module{}
		mods[i].Ident.Parts = []string{id}
	}
	return &module.Graph{Modules: mods, Root: len(mods) - 1}
}

// TestExecuteRunsEveryTaskToDone verifies the scheduler drives a simple
// dependency chain to completion (§4.7).
func TestExecuteRunsEveryTaskToDone(t *testing.T) {
	mg := graphOf("lib", "app")
	mg.Modules[1].Deps = []module.Edge{{Index: 0}}
	tg, err := task.Build(mg)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var ranOrder []string
	run := func(ctx context.Context, tk *task.Task) (Outcome, error) {
		mu.Lock()
		ranOrder = append(ranOrder, fmt.Sprintf("%d:%s", tk.ModuleIndex, tk.Stage))
		mu.Unlock()
		return DoneBuilt, nil
	}

	s := &Scheduler{Graph: tg, Run: run, Workers: 2}
	if err := s.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, tk := range tg.Tasks {
		if tk.State != task.Done {
			t.Errorf("task %d:%s not Done, state=%v", tk.ModuleIndex, tk.Stage, tk.State)
		}
	}
	if len(ranOrder) != len(tg.Tasks) {
		t.Errorf("expected %d tasks run, got %d", len(tg.Tasks), len(ranOrder))
	}
}

// TestExecuteStopsSchedulingAfterFailure verifies §4.7 step 1/7: once a
// task fails, no further pending tasks are scheduled and they end up
// Skipped.
func TestExecuteStopsSchedulingAfterFailure(t *testing.T) {
	mg := graphOf("lib", "app")
	mg.Modules[1].Deps = []module.Edge{{Index: 0}}
	tg, err := task.Build(mg)
	if err != nil {
		t.Fatal(err)
	}

	run := func(ctx context.Context, tk *task.Task) (Outcome, error) {
		if tk.ModuleIndex == 0 && tk.Stage.String() == "SSA" {
			return 0, fmt.Errorf("simulated tool failure")
		}
		return DoneBuilt, nil
	}

	s := &Scheduler{Graph: tg, Run: run, Workers: 2}
	if err := s.Execute(context.Background()); err == nil {
		t.Fatal("expected an error from Execute")
	}

	sawFailed, sawSkipped := false, false
	for _, tk := range tg.Tasks {
		switch tk.State {
		case task.Failed:
			sawFailed = true
		case task.Skipped:
			sawSkipped = true
		case task.Running:
			t.Errorf("task %d:%s left in Running state", tk.ModuleIndex, tk.Stage)
		}
	}
	if !sawFailed {
		t.Error("expected at least one Failed task")
	}
	if !sawSkipped {
		t.Error("expected at least one Skipped task (dependents of the failure)")
	}
}

// TestExecuteReschedulesWouldBlock verifies a task returning WouldBlock is
// retried rather than treated as a failure.
func TestExecuteReschedulesWouldBlock(t *testing.T) {
	mg := graphOf("only")
	tg, err := task.Build(mg)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	attempts := make(map[int64]int)
	run := func(ctx context.Context, tk *task.Task) (Outcome, error) {
		mu.Lock()
		attempts[tk.ID()]++
		n := attempts[tk.ID()]
		mu.Unlock()
		if tk.ModuleIndex == 0 && tk.Stage.String() == "SSA" && n == 1 {
			return WouldBlock, nil
		}
		return DoneBuilt, nil
	}

	s := &Scheduler{Graph: tg, Run: run, Workers: 1}
	if err := s.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, tk := range tg.Tasks {
		if tk.State != task.Done {
			t.Errorf("task %d:%s not Done after reschedule, state=%v", tk.ModuleIndex, tk.Stage, tk.State)
		}
	}
}
