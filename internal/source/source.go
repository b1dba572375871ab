// Package source implements tag-filtered source discovery (§4.2): a
// recursive walk of a module directory that admits files and
// subdirectories whose tag predicates are satisfied by the driver's tag
// set, tracks the minimal set of tags actually consulted, detects
// same-(base,extension) conflicts, and aggregates the "youngest change"
// mtime of the matching subtree.
package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/tagset"
)

// Extension families recognized by the driver.
const (
	ExtLang    = ".ha" // language sources
	ExtAsm     = ".s"  // assembly sources
	ExtObj     = ".o"  // precompiled objects
	ExtLink    = ".ld" // linker scripts
	READMEBase = "README"
)

var recognizedExt = map[string]bool{
	ExtLang: true,
	ExtAsm:  true,
	ExtObj:  true,
	ExtLink: true,
}

// Set is the source set of a module after discovery.
type Set struct {
	ModTime  time.Time // youngest mtime across matched dirs/symlinks
	Dirs     []string  // directories traversed, for invalidation
	SeenTags []string  // tag names actually consulted during the walk

	Lang   []string // sorted absolute paths, by extension
	Asm    []string
	Obj    []string
	Linker []string

	HasReadme bool
}

type candidate struct {
	path  string
	depth int // tag-depth: sum of predicate depths along the path + own
}

// discoverer holds the mutable state threaded through the recursive walk.
type discoverer struct {
	tags *tagset.Set
	set  *Set

	winners   map[string]candidate
	tiedPaths map[string][]string
}

// Discover walks root applying tags, returning the module's source set.
func Discover(root string, tags *tagset.Set) (*Set, error) {
	d := &discoverer{
		tags:      tags,
		set:       &Set{},
		winners:   make(map[string]candidate),
		tiedPaths: make(map[string][]string),
	}

	fi, err := os.Lstat(root)
	if err != nil {
		return nil, bderr.Wrap(err, root)
	}
	if err := d.walkDir(root, fi, 0); err != nil {
		return nil, err
	}

	var conflicts []string
	for _, paths := range d.tiedPaths {
		if len(paths) > 1 {
			conflicts = append(conflicts, paths...)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, bderr.New(bderr.Conflict, nil, "conflicting sources").WithPaths(conflicts...)
	}

	s := d.set
	for key, c := range d.winners {
		ext := key[:strings.IndexByte(key, '/')]
		switch ext {
		case ExtLang:
			s.Lang = append(s.Lang, c.path)
		case ExtAsm:
			s.Asm = append(s.Asm, c.path)
		case ExtObj:
			s.Obj = append(s.Obj, c.path)
		case ExtLink:
			s.Linker = append(s.Linker, c.path)
		}
	}
	sort.Strings(s.Lang)
	sort.Strings(s.Asm)
	sort.Strings(s.Obj)
	sort.Strings(s.Linker)
	sort.Strings(s.SeenTags)

	if len(s.Lang) == 0 && !s.HasReadme {
		return nil, bderr.New(bderr.NotFound, nil, root)
	}

	return s, nil
}

// bumpModTime records t as the set's mtime if it is the youngest seen so
// far.
func (d *discoverer) bumpModTime(t time.Time) {
	if t.After(d.set.ModTime) {
		d.set.ModTime = t
	}
}

// walkDir processes dir at the given accumulated tag-depth. dirInfo
// describes dir (for a directory reached via a symlink, the resolved
// target); its mtime is folded into the set's ModTime.
func (d *discoverer) walkDir(dir string, dirInfo os.FileInfo, depth int) error {
	d.set.Dirs = append(d.set.Dirs, dir)
	d.bumpModTime(dirInfo.ModTime())

	entries, err := os.ReadDir(dir)
	if err != nil {
		return bderr.Wrap(err, dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, ent := range entries {
		name := ent.Name()
		full := filepath.Join(dir, name)

		if name == READMEBase {
			d.set.HasReadme = true
			continue
		}

		info, err := os.Lstat(full)
		if err != nil {
			return bderr.Wrap(err, full)
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, terr := filepath.EvalSymlinks(full)
			if terr != nil {
				return bderr.Wrap(terr, full)
			}
			targetInfo, terr := os.Stat(target)
			if terr != nil {
				return bderr.Wrap(terr, full)
			}
			if err := d.admit(full, name, targetInfo, depth, info); err != nil {
				return err
			}
			continue
		}

		if err := d.admit(full, name, info, depth, nil); err != nil {
			return err
		}
	}
	return nil
}

// admit applies tag predicates to one directory entry, named name at path
// full, whose (possibly symlink-resolved) info describes the target.
// symlinkInfo is non-nil when full is itself a symlink — its mtime
// contributes only once the target is actually traversed.
func (d *discoverer) admit(full, name string, info os.FileInfo, depth int, symlinkInfo os.FileInfo) error {
	if info.IsDir() {
		pred, err := tagset.ParseDirectoryPredicate(name)
		if err != nil {
			return bderr.New(bderr.BadTag, err, full)
		}
		if !pred.Satisfied(d.tags, &d.set.SeenTags) {
			return nil
		}
		if err := d.walkDir(full, info, depth+pred.Depth()); err != nil {
			return err
		}
		if symlinkInfo != nil {
			d.bumpModTime(symlinkInfo.ModTime())
		}
		return nil
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	ext := filepath.Ext(name)
	if !recognizedExt[ext] {
		return nil
	}
	base := strings.TrimSuffix(name, ext)
	sigilIdx := strings.IndexAny(base, "+-")

	var baseName, predStr string
	switch {
	case sigilIdx < 0:
		baseName = base
	case sigilIdx == 0:
		return bderr.New(bderr.BadTag, nil, full+": predicate sigil without preceding base name")
	default:
		baseName = base[:sigilIdx]
		predStr = base[sigilIdx:]
	}

	var pred tagset.Predicate
	if predStr != "" {
		p, err := tagset.ParsePredicate(predStr)
		if err != nil {
			return bderr.New(bderr.BadTag, err, full)
		}
		pred = p
	}
	if !pred.Satisfied(d.tags, &d.set.SeenTags) {
		return nil
	}
	if symlinkInfo != nil {
		d.bumpModTime(symlinkInfo.ModTime())
	}

	key := ext + "/" + baseName
	total := depth + pred.Depth()
	existing, ok := d.winners[key]
	switch {
	case !ok || total > existing.depth:
		d.winners[key] = candidate{path: full, depth: total}
		d.tiedPaths[key] = []string{full}
	case total == existing.depth:
		d.tiedPaths[key] = append(d.tiedPaths[key], full)
	}
	return nil
}
