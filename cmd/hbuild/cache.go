package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/sys/unix"
)

// tryExclusiveLock reports whether path's advisory lock is currently free,
// without disturbing a lock actually held by another process: it opens the
// file, attempts a non-blocking exclusive flock, and releases it again
// immediately if acquired.
func tryExclusiveLock(path string) (free bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, err
	}
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return true, nil
}

const cacheHelp = `hbuild cache <size|clean|log> [-flags] [args]

size  report the aggregate cache size, optionally as TOML
clean remove the entire cache
log   show the transcript and captured output for a cached task

Example:
  % hbuild cache size --format=toml
  % hbuild cache log net::dns SSA
`

// cacheReport is the TOML-encodable shape of "hbuild cache size --format=toml".
type cacheReport struct {
	TotalBytes int64           `toml:"total_bytes"`
	Modules    []moduleUsage   `toml:"module"`
}

type moduleUsage struct {
	Path  string `toml:"path"`
	Bytes int64  `toml:"bytes"`
}

func cacheCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("cache", flag.ExitOnError)
	fset.Usage = usage(fset, cacheHelp)
	fset.Parse(args)

	if fset.NArg() < 1 {
		fset.Usage()
		os.Exit(exitUnknownVerb)
	}
	sub, rest := fset.Arg(0), fset.Args()[1:]

	root, err := cacheRoot()
	if err != nil {
		return err
	}

	switch sub {
	case "size":
		return cacheSize(root, rest)
	case "clean":
		return cacheClean(root)
	case "log":
		return cacheLog(root, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown cache subcommand %q\n", sub)
		os.Exit(exitUnknownVerb)
		return nil
	}
}

func cacheSize(root string, args []string) error {
	fset := flag.NewFlagSet("cache size", flag.ExitOnError)
	format := fset.String("format", "text", "output format: text or toml")
	fset.Parse(args)

	usage := make(map[string]int64)
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		mod := filepath.Dir(rel)
		usage[mod] += info.Size()
		total += info.Size()
		return nil
	})
	if err != nil {
		return err
	}

	if *format == "toml" {
		report := cacheReport{TotalBytes: total}
		for mod, bytes := range usage {
			report.Modules = append(report.Modules, moduleUsage{Path: mod, Bytes: bytes})
		}
		sort.Slice(report.Modules, func(i, j int) bool { return report.Modules[i].Path < report.Modules[j].Path })
		return toml.NewEncoder(os.Stdout).Encode(report)
	}

	var mods []string
	for mod := range usage {
		mods = append(mods, mod)
	}
	sort.Strings(mods)
	for _, mod := range mods {
		fmt.Printf("%10d  %s\n", usage[mod], mod)
	}
	fmt.Printf("%10d  total\n", total)
	return nil
}

func cacheClean(root string) error {
	var heldLocks []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".lock") {
			return nil
		}
		if free, lerr := tryExclusiveLock(path); lerr == nil && !free {
			heldLocks = append(heldLocks, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(heldLocks) > 0 {
		return fmt.Errorf("cache clean aborted: %d lock(s) held: %s", len(heldLocks), strings.Join(heldLocks, ", "))
	}
	return os.RemoveAll(root)
}

func cacheLog(root string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("syntax: cache log <module> <stage>")
	}
	modPath, stage := args[0], strings.ToUpper(args[1])

	rel := filepath.FromSlash(strings.ReplaceAll(modPath, "::", "/"))
	ext := stageExt(stage)
	// Entries live under <root>/<arch>/<module path>/; search every arch and
	// keep the most recently written transcript.
	matches, err := filepath.Glob(filepath.Join(root, "*", rel, "*."+ext+".txt"))
	if err != nil {
		return err
	}

	var txtPath, logPath string
	var newest time.Time
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || (txtPath != "" && !fi.ModTime().After(newest)) {
			continue
		}
		txtPath, newest = m, fi.ModTime()
		logPath = strings.TrimSuffix(txtPath, ".txt") + ".log"
	}
	if txtPath == "" {
		return fmt.Errorf("no cached %s task found for %s", stage, modPath)
	}

	txt, err := ioutil.ReadFile(txtPath)
	if err != nil {
		return err
	}
	fmt.Print(string(txt))

	if logBytes, err := ioutil.ReadFile(logPath); err == nil {
		fmt.Print(string(logBytes))
	}
	return nil
}

func stageExt(stage string) string {
	switch stage {
	case "SSA":
		return "ssa"
	case "S":
		return "s"
	case "O":
		return "o"
	case "BIN":
		return "bin"
	default:
		return strings.ToLower(stage)
	}
}
