package cache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/hbuild/hbuild/internal/bderr"
)

func touchInv(content string) Invocation {
	return Invocation{
		Command: func(tmp string) *exec.Cmd {
			return exec.Command("sh", "-c", "printf %s \"$1\" > \"$2\"", "_", content, tmp)
		},
	}
}

// TestBuildRunsToolOnFirstCall verifies a cold cache entry runs the tool and
// produces a canonical artifact (§4.5).
func TestBuildRunsToolOnFirstCall(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	res := Build(context.Background(), p, time.Unix(0, 0), touchInv("hello"))
	if res.Outcome != Built {
		t.Fatalf("expected Built, got %v (%v)", res.Outcome, res.Err)
	}
	b, err := os.ReadFile(p.Artifact)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("artifact content = %q, want %q", b, "hello")
	}
	if _, err := os.Stat(p.Tmp); !os.IsNotExist(err) {
		t.Errorf("expected .tmp to be gone after rename, stat err = %v", err)
	}
}

// TestBuildIsFreshWhenArtifactNewerThanInputs verifies §8 property 4: an
// artifact newer than its inputs is reused without re-running the tool.
func TestBuildIsFreshWhenArtifactNewerThanInputs(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	ran := false
	inv := Invocation{Command: func(tmp string) *exec.Cmd {
		ran = true
		return exec.Command("sh", "-c", "printf x > \"$1\"", "_", tmp)
	}}

	old := time.Now().Add(-time.Hour)
	if res := Build(context.Background(), p, old, inv); res.Outcome != Built {
		t.Fatalf("first build: expected Built, got %v (%v)", res.Outcome, res.Err)
	}
	if !ran {
		t.Fatal("expected tool to run on cold cache")
	}

	ran = false
	res := Build(context.Background(), p, old, inv)
	if res.Outcome != Fresh {
		t.Fatalf("expected Fresh, got %v (%v)", res.Outcome, res.Err)
	}
	if ran {
		t.Error("tool should not run when artifact is fresh")
	}
}

// TestBuildRerunsWhenInputsNewerThanArtifact verifies staleness triggers a
// rebuild even though a canonical artifact already exists.
func TestBuildRerunsWhenInputsNewerThanArtifact(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	if res := Build(context.Background(), p, time.Unix(0, 0), touchInv("v1")); res.Outcome != Built {
		t.Fatalf("first build failed: %v", res.Err)
	}

	future := time.Now().Add(time.Hour)
	res := Build(context.Background(), p, future, touchInv("v2"))
	if res.Outcome != Built {
		t.Fatalf("expected rebuild, got %v (%v)", res.Outcome, res.Err)
	}
	b, _ := os.ReadFile(p.Artifact)
	if string(b) != "v2" {
		t.Errorf("artifact = %q, want %q after rebuild", b, "v2")
	}
}

// TestBuildLeavesNoArtifactOnToolFailure verifies §8 property 5: a failed
// tool run never produces (or corrupts) a canonical artifact, and cleans up
// its .tmp file.
func TestBuildLeavesNoArtifactOnToolFailure(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	inv := Invocation{Command: func(tmp string) *exec.Cmd {
		return exec.Command("sh", "-c", "printf partial > \"$1\"; exit 1", "_", tmp)
	}}

	res := Build(context.Background(), p, time.Unix(0, 0), inv)
	if res.Outcome != Failed {
		t.Fatalf("expected Failed, got %v", res.Outcome)
	}
	if !bderr.Is(res.Err, bderr.ToolFailure) {
		t.Errorf("expected ToolFailure kind, got %v", res.Err)
	}
	if _, err := os.Stat(p.Artifact); !os.IsNotExist(err) {
		t.Errorf("expected no canonical artifact after failure, stat err = %v", err)
	}
	if _, err := os.Stat(p.Tmp); !os.IsNotExist(err) {
		t.Errorf("expected .tmp cleaned up after failure, stat err = %v", err)
	}
	if _, err := os.Stat(p.Log); err != nil {
		t.Errorf("expected log file to persist for failed run: %v", err)
	}
}

// TestBuildWritesSidecarAlongsideArtifact verifies the TD sidecar shares the
// parent artifact's hash in its filename (§3, §4.4).
func TestBuildWritesSidecarAlongsideArtifact(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	inv := Invocation{
		SidecarExt: "ssa.td",
		Command: func(tmp string) *exec.Cmd {
			sidecarTmp, _ := p.SidecarPaths("ssa.td")
			return exec.Command("sh", "-c", "printf out > \"$1\"; printf tdhash > \"$2\"", "_", tmp, sidecarTmp)
		},
	}

	if res := Build(context.Background(), p, time.Unix(0, 0), inv); res.Outcome != Built {
		t.Fatalf("expected Built, got %v (%v)", res.Outcome, res.Err)
	}
	td, err := ReadTD(p)
	if err != nil {
		t.Fatal(err)
	}
	if td != "tdhash" {
		t.Errorf("ReadTD = %q, want %q", td, "tdhash")
	}
	if _, final := p.SidecarPaths("ssa.td"); filepath.Dir(final) != p.Dir {
		t.Errorf("sidecar final path escaped entry dir: %q", final)
	}
}

// TestLockWouldBlockWhenAlreadyHeld verifies §8 property 6: a second holder
// of the same lock file observes WouldBlock rather than blocking or
// corrupting state.
func TestLockWouldBlockWhenAlreadyHeld(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "entry.lock")

	first, err := newLock(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	ok, err := first.TryLock()
	if err != nil || !ok {
		t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
	}
	defer first.Unlock()

	second, err := newLock(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	ok, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock returned error instead of WouldBlock: %v", err)
	}
	if ok {
		t.Fatal("expected second TryLock to fail while first holds the lock")
	}
}

// TestBuildReturnsWouldBlockWhenLockHeld exercises the full Build path
// against an externally-held lock.
func TestBuildReturnsWouldBlockWhenLockHeld(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		t.Fatal(err)
	}

	holder, err := newLock(p.Lock)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("holder TryLock: ok=%v err=%v", ok, err)
	}
	defer holder.Unlock()

	res := Build(context.Background(), p, time.Unix(0, 0), touchInv("x"))
	if res.Outcome != WouldBlock {
		t.Fatalf("expected WouldBlock, got %v (%v)", res.Outcome, res.Err)
	}
}

// TestWriteTranscriptRecordsCommandLine verifies the .txt transcript exists
// and contains the rendered command (§6).
func TestWriteTranscriptRecordsCommandLine(t *testing.T) {
	root := t.TempDir()
	p := For(root, "lib", "deadbeef", "ssa")

	inv := Invocation{
		EnvLines: []string{"HARE_TD_lib=abc"},
		Command: func(tmp string) *exec.Cmd {
			return exec.Command("sh", "-c", "printf ok > \"$1\"", "_", tmp)
		},
	}
	if res := Build(context.Background(), p, time.Unix(0, 0), inv); res.Outcome != Built {
		t.Fatalf("expected Built, got %v (%v)", res.Outcome, res.Err)
	}
	b, err := os.ReadFile(p.Txt)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) == 0 {
		t.Error("expected non-empty transcript")
	}
}
