// Package cache implements the on-disk cache layout, concurrency
// arbitration, and temp-file rename protocol of §4.5: for a stage task with
// fingerprint H and extension E, under <cache-root>/<module-path>/:
//
//	H.E       the final artifact
//	H.E.tmp   the tool's output stream while running
//	H.E.log   captured stdout+stderr, shown only on failure
//	H.E.lock  an empty file used only for advisory whole-file locks
//	H.E.txt   a human-readable invocation transcript
package cache

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"

	"github.com/hbuild/hbuild/internal/bderr"
)

// Paths names every file belonging to one cache entry.
type Paths struct {
	Dir      string
	Hash     string
	Artifact string
	Tmp      string
	Log      string
	Lock     string
	Txt      string
}

// For computes the Paths for a module's cache directory, hash, and
// extension.
func For(cacheRoot, modulePath, hash, ext string) Paths {
	dir := filepath.Join(cacheRoot, modulePath)
	base := filepath.Join(dir, hash+"."+ext)
	return Paths{
		Dir:      dir,
		Hash:     hash,
		Artifact: base,
		Tmp:      base + ".tmp",
		Log:      base + ".log",
		Lock:     base + ".lock",
		Txt:      base + ".txt",
	}
}

// SidecarPaths computes the tmp and final paths for a sidecar family (e.g.
// "ssa.td") belonging to this entry's hash, per §3/§4.5.
func (p Paths) SidecarPaths(ext string) (tmp, final string) {
	base := filepath.Join(p.Dir, p.Hash+"."+ext)
	return base + ".tmp", base
}

// Outcome is what a Build attempt produced.
type Outcome int

const (
	Fresh Outcome = iota // cache hit: artifact already up to date
	Built                // the tool ran and produced a fresh artifact
	WouldBlock           // another process holds the lock; retry later
	Failed               // the tool exited non-zero or an I/O error occurred
)

// Result is the outcome of one Build attempt.
type Result struct {
	Outcome Outcome
	Err     error
}

// Invocation describes one build step to run under the cache's lock
// protocol.
type Invocation struct {
	// Command constructs the *exec.Cmd to run, given the final tmp path the
	// tool must write its artifact to (and, for SSA, a second tmp path for
	// the TD sidecar, whose name follows from SidecarExt below via
	// Paths.SidecarPaths).
	Command func(tmpPath string) *exec.Cmd

	// SidecarExt, if non-empty, names a second artifact family sharing this
	// entry's hash (e.g. "ssa.td"): the tool writes
	// <hash>.<SidecarExt>.tmp, and on success it is renamed into place
	// alongside Artifact exactly like the main output. The sidecar's
	// *content* (not its name) is content-addressed: it holds the TD file's
	// own hash, written there by the frontend.
	SidecarExt string

	// EnvLines, if non-empty, are rendered as "# VAR=value" preamble lines
	// in the transcript (§6: HARE_TD_* variables consulted for SSA tasks).
	EnvLines []string
}

// Build executes the cache protocol of §4.5 for one (module, stage) entry.
// inputsModTime is the source set's aggregated mtime; if the existing
// artifact's mtime is at least that recent, the task is up to date and the
// tool is not re-run (§8 property 4).
func Build(ctx context.Context, p Paths, inputsModTime time.Time, inv Invocation) Result {
	if err := os.MkdirAll(filepath.Dir(p.Artifact), 0755); err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Artifact)}
	}

	lock, err := newLock(p.Lock)
	if err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Lock)}
	}
	defer lock.Close()

	locked, err := lock.TryLock()
	if err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Lock)}
	}
	if !locked {
		return Result{Outcome: WouldBlock}
	}
	defer lock.Unlock()

	if fi, err := os.Stat(p.Artifact); err == nil {
		if !fi.ModTime().Before(inputsModTime) {
			return Result{Outcome: Fresh}
		}
	}

	cmd := inv.Command(p.Tmp)
	logFile, err := os.Create(p.Log)
	if err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Log)}
	}
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()
	if runErr != nil {
		os.Remove(p.Tmp)
		// The log file at p.Log holds the captured stdout+stderr; it is
		// attached to the error's Paths, and the CLI prints it verbatim on
		// ToolFailure, per §7.
		return Result{Outcome: Failed, Err: bderr.New(bderr.ToolFailure, runErr, p.Artifact).WithPaths(p.Log)}
	}

	if err := renameInto(p.Tmp, p.Artifact); err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Artifact)}
	}

	if inv.SidecarExt != "" {
		sidecarTmp, sidecarFinal := p.SidecarPaths(inv.SidecarExt)
		if err := renameInto(sidecarTmp, sidecarFinal); err != nil {
			return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, sidecarFinal)}
		}
	}

	if err := writeTranscript(p.Txt, cmd, inv.EnvLines); err != nil {
		return Result{Outcome: Failed, Err: bderr.New(bderr.IOError, err, p.Txt)}
	}

	return Result{Outcome: Built}
}

// ReadTD reads the TD content hash recorded in a completed SSA task's
// sidecar file (<hash>.ssa.td), used to set HARE_TD_<module> for dependent
// SSA tasks (§4.4, §6).
func ReadTD(p Paths) (string, error) {
	_, final := p.SidecarPaths("ssa.td")
	b, err := os.ReadFile(final)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// renameInto atomically replaces dst with src, matching the "never observe
// a partial write" invariant of §4.5.
func renameInto(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

const transcriptTemplate = `{{range .EnvLines}}# {{.}}
{{end}}{{.Line}}
`

func writeTranscript(path string, cmd *exec.Cmd, envLines []string) error {
	var b strings.Builder
	tmpl := template.Must(template.New("transcript").Parse(transcriptTemplate))
	if err := tmpl.Execute(&b, struct {
		EnvLines []string
		Line     string
	}{EnvLines: envLines, Line: quoteCmd(cmd)}); err != nil {
		return err
	}
	return renameio.WriteFile(path, []byte(b.String()), 0644)
}

// quoteCmd renders cmd as a single shell-quoted line, for the audit
// transcript (§6).
func quoteCmd(cmd *exec.Cmd) string {
	args := append([]string{cmd.Path}, cmd.Args[1:]...)
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r == '-' || r == '_' || r == '.' || r == '/' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// flockLock is an advisory whole-file exclusive lock that dies with the
// process (no O_EXCL staleness, per §9).
type flockLock struct {
	f *os.File
}

func newLock(path string) (*flockLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &flockLock{f: f}, nil
}

// TryLock attempts a non-blocking exclusive lock, returning ok=false
// (never an error) if another process holds it.
func (l *flockLock) TryLock() (ok bool, err error) {
	err = unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *flockLock) Unlock() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func (l *flockLock) Close() error {
	return l.f.Close()
}
