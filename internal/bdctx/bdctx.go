// Package bdctx implements the three concurrency/resource primitives of §5:
// an interruptible top-level context, a cleanup-callback registry run before
// the process actually exits, and a best-effort RLIMIT_NOFILE bump for wide
// scheduler fan-out.
package bdctx

import (
	"context"
	"io/ioutil"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// InterruptibleContext returns a context canceled on SIGINT or SIGTERM. A
// second signal after cancellation is not caught, so a hung cleanup can
// still be interrupted by the user.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		signal.Stop(sig)
		cancel()
	}()
	return ctx, cancel
}

var (
	registryMu sync.Mutex
	registry   []func()
)

// RegisterCleanup records a callback to run, in registration order, each
// time RunCleanups is called. The CLI calls RunCleanups once, deferred in
// its entry point.
func RegisterCleanup(f func()) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, f)
}

// RunCleanups invokes every registered cleanup, in registration order. It
// is safe to call more than once; each callback still runs every time.
func RunCleanups() {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, f := range registry {
		f()
	}
}

// BumpFileLimit raises RLIMIT_NOFILE to the kernel maximum, best-effort.
// A wide scheduler fan-out opens many concurrent lock files, logs, and
// temp files; callers should log (not fail) on error.
func BumpFileLimit() error {
	fileMax, err := readProcUint("/proc/sys/fs/file-max")
	if err != nil {
		return err
	}
	nrOpen, err := readProcUint("/proc/sys/fs/nr_open")
	if err != nil {
		return err
	}
	max := fileMax
	if nrOpen < max {
		max = nrOpen
	}
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &unix.Rlimit{Cur: max, Max: max})
}

func readProcUint(path string) (uint64, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 0, 64)
}
