// Package schedule drives the task array of internal/task to completion
// using a bounded worker pool (§4.7), mirroring the teacher's
// internal/batch/batch.go scheduler: an errgroup-driven pool, a work
// channel, a done channel, and live per-worker status lines gated on
// terminal detection.
package schedule

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	isatty "github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/hbuild/hbuild/internal/task"
	"github.com/hbuild/hbuild/internal/trace"
)

// Runner executes one task and reports its outcome. Returning a non-nil
// error is treated as Failed; a held lock is reported as the WouldBlock
// Outcome with a nil error.
type Runner func(ctx context.Context, t *task.Task) (Outcome, error)

// Outcome mirrors the worker-return taxonomy of §4.7 step 5.
type Outcome int

const (
	DoneFresh Outcome = iota
	DoneBuilt
	WouldBlock
)

// Result is the outcome of running one task.
type Result struct {
	Task    *task.Task
	Outcome Outcome
	Err     error
}

// Scheduler runs a task.Graph to completion with a bounded worker count.
type Scheduler struct {
	Graph   *task.Graph
	Run     Runner
	Workers int // default: runtime.NumCPU, set by caller

	statusMu sync.Mutex
	status   []string
	last     time.Time
}

// isTerminal gates the live status redraw, following the teacher's use of
// go-isatty in place of its own unix.IoctlGetTermios probe. NO_COLOR
// suppresses the redraw even on a terminal; CLICOLOR_FORCE forces it even
// when stdout isn't one (§6, §10).
var isTerminal = computeShowStatus()

func computeShowStatus() bool {
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(uintptr(1))
}

// Execute runs the scheduler's main loop (§4.7). It returns nil if every
// task reached Done, or the first task failure/context cancellation
// otherwise. On cancellation, pending tasks are marked Skipped and running
// tasks are allowed to drain (they hold cache locks) before the signal
// surfaces.
func (s *Scheduler) Execute(ctx context.Context) error {
	if s.Workers < 1 {
		s.Workers = 1
	}
	s.status = make([]string, s.Workers+1)

	work := make(chan *task.Task, len(s.Graph.Tasks))
	done := make(chan Result)

	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.Workers; i++ {
		i := i
		eg.Go(func() error {
			for t := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				s.updateStatus(i+1, fmt.Sprintf("building %s", taskLabel(t)))
				ev := trace.Event(taskLabel(t), t.Stage.String(), i+1)
				outcome, err := s.Run(ctx, t)
				ev.Done()
				select {
				case done <- Result{Task: t, Outcome: outcome, Err: err}:
				case <-ctx.Done():
					return ctx.Err()
				}
				s.updateStatus(i+1, "idle")
			}
			return nil
		})
	}

	var mu sync.Mutex
	failed := false
	var firstErr error
	scheduled := make(map[int64]bool)
	remaining := len(s.Graph.Tasks)

	enqueueReady := func() {
		mu.Lock()
		defer mu.Unlock()
		if failed {
			return
		}
		for _, t := range s.Graph.Tasks {
			if t.State == task.Pending && !scheduled[t.ID()] && s.Graph.Ready(t) {
				scheduled[t.ID()] = true
				t.State = task.Running
				select {
				case work <- t:
				case <-ctx.Done():
				}
			}
		}
	}

	coordinator := make(chan error, 1)
	go func() {
		defer close(work)
		enqueueReady()
		for remaining > 0 {
			select {
			case r := <-done:
				mu.Lock()
				remaining--
				switch {
				case r.Err != nil:
					r.Task.State = task.Failed
					failed = true
					if firstErr == nil {
						firstErr = r.Err
					}
				case r.Outcome == WouldBlock:
					r.Task.State = task.Pending
					delete(scheduled, r.Task.ID())
					remaining++ // still outstanding, will be rescheduled
				default:
					r.Task.State = task.Done
				}
				mu.Unlock()

				if failed {
					s.skipPending()
					// Skipped tasks never report back; only running ones do.
					mu.Lock()
					remaining = 0
					for _, t := range s.Graph.Tasks {
						if t.State == task.Running {
							remaining++
						}
					}
					mu.Unlock()
					continue
				}
				enqueueReady()
			case <-ctx.Done():
				s.skipPending()
				coordinator <- ctx.Err()
				return
			}
		}
		if failed {
			coordinator <- firstErr
		} else {
			coordinator <- nil
		}
	}()

	egErr := eg.Wait()
	coordErr := <-coordinator
	if coordErr != nil {
		return coordErr
	}
	return egErr
}

// skipPending marks every remaining Pending task Skipped, per §4.7 step 7.
func (s *Scheduler) skipPending() {
	for _, t := range s.Graph.Tasks {
		if t.State == task.Pending {
			t.State = task.Skipped
		}
	}
}

func (s *Scheduler) updateStatus(idx int, line string) {
	if !isTerminal {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if diff := len(s.status[idx]) - len(line); diff > 0 {
		line += strings.Repeat(" ", diff)
	}
	s.status[idx] = line
	if time.Since(s.last) < 100*time.Millisecond {
		return
	}
	s.last = time.Now()
	for _, l := range s.status {
		fmt.Println(l)
	}
	fmt.Printf("\033[%dA", len(s.status))
}

func taskLabel(t *task.Task) string {
	if t.Stage.String() == "BIN" {
		return "BIN"
	}
	return fmt.Sprintf("module#%d %s", t.ModuleIndex, t.Stage)
}
