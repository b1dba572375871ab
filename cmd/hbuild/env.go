package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/hbuild/hbuild/internal/toolctx"
	"github.com/hbuild/hbuild/internal/trace"
)

// cacheRoot resolves HARECACHE, falling back to $XDG_CACHE_HOME/hare or
// ~/.cache/hare (§6).
func cacheRoot() (string, error) {
	if v := os.Getenv("HARECACHE"); v != "" {
		return v, nil
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "hare"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "hare"), nil
}

// searchPath resolves the colon-separated HAREPATH, plus the current
// directory so local modules resolve without an explicit entry.
func searchPath() []string {
	paths := []string{"."}
	if v := os.Getenv("HAREPATH"); v != "" {
		paths = append(paths, strings.Split(v, ":")...)
	}
	return paths
}

// resolveTools applies HAREC/QBE/AR/AS/LD/CC overrides onto the defaults.
func resolveTools() toolctx.Tools {
	t := toolctx.DefaultTools()
	if v := os.Getenv("HAREC"); v != "" {
		t.Frontend = v
	}
	if v := os.Getenv("QBE"); v != "" {
		t.Backend = v
	}
	if v := os.Getenv("AS"); v != "" {
		t.As = v
	}
	if v := os.Getenv("LD"); v != "" {
		t.Ld = v
	}
	if v := os.Getenv("CC"); v != "" {
		t.Cc = v
	}
	if v := os.Getenv("AR"); v != "" {
		t.Ar = v
	}
	return t
}

// jobs resolves the scheduler's worker count: the -j flag if positive,
// otherwise HBUILD_JOBS, otherwise the processor count (§4.7, §10).
func jobs(flagVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	if v := os.Getenv("HBUILD_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return runtime.NumCPU()
}

// enableTraceIfRequested turns on Chrome trace-event emission when
// HBUILD_TRACE is set, printing the resulting file path to stderr so the
// invoker knows where to find it.
func enableTraceIfRequested(prefix string) {
	if os.Getenv("HBUILD_TRACE") == "" {
		return
	}
	fn, err := trace.Enable(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hbuild: could not enable tracing: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "hbuild: writing trace to %s\n", fn)
}
