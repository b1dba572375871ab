// Package tagset implements tags and tag sets (§3, §4.2): a tag is a
// (name, polarity) pair; a tag set is the insertion-ordered, all-positive
// set of tag names supplied to the driver; file and directory names carry
// predicates built from individual Tag values of either polarity.
package tagset

import "strings"

// Polarity is whether a tag predicate requires the tag's presence or
// absence.
type Polarity int

const (
	Include Polarity = iota
	Exclude
)

// Tag is a single (name, polarity) pair parsed from a file/directory name
// predicate.
type Tag struct {
	Name     string
	Polarity Polarity
}

// Set is the driver's insertion-ordered, all-positive tag set (e.g. the
// tags supplied on the command line with "+tag-tag+tag" syntax).
type Set struct {
	names   []string
	present map[string]bool
}

// New builds a Set from tag names, preserving insertion order and
// deduplicating.
func New(names ...string) *Set {
	s := &Set{present: make(map[string]bool, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add appends name to the set if not already present.
func (s *Set) Add(name string) {
	if s.present == nil {
		s.present = make(map[string]bool)
	}
	if s.present[name] {
		return
	}
	s.present[name] = true
	s.names = append(s.names, name)
}

// Remove drops name from the set, if present; a no-op otherwise. Used when
// applying a CLI tag-set override's exclude runs (e.g. the "-old" in
// "+linux-old") against the platform's default tag set.
func (s *Set) Remove(name string) {
	if s == nil || !s.present[name] {
		return
	}
	delete(s.present, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Has reports whether name is in the set.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	return s.present[name]
}

// Names returns the tag names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Predicate is the sequence of Tags parsed from one file or directory name
// component.
type Predicate struct {
	Tags []Tag
}

// Satisfied reports whether every tag in p is satisfied by set: inclusive
// tags must be present, exclusive tags must be absent. As a side effect it
// appends every tag whose name determined the outcome (i.e. every tag in
// the predicate) to consulted — these are the "consulted" tags of §4.2,
// tracked so the caller can build the minimal seentags list.
func (p Predicate) Satisfied(set *Set, consulted *[]string) bool {
	ok := true
	for _, t := range p.Tags {
		*consulted = appendUnique(*consulted, t.Name)
		has := set.Has(t.Name)
		switch t.Polarity {
		case Include:
			if !has {
				ok = false
			}
		case Exclude:
			if has {
				ok = false
			}
		}
	}
	return ok
}

func appendUnique(ss []string, s string) []string {
	for _, x := range ss {
		if x == s {
			return ss
		}
	}
	return append(ss, s)
}

// Depth is the number of tags in the predicate, used to break ties between
// candidate files per §4.2 (the candidate with the greatest tag-depth
// wins).
func (p Predicate) Depth() int { return len(p.Tags) }

// ParsePredicate parses a file's tag predicate string such as "+linux-old"
// (the part of a file name after the first polarity sigil, sigil included)
// into a Predicate: one Tag per '+'/'-'-delimited run. Each run must be
// non-empty and must not contain '.' (§4.2: "files with '.' in the
// tag-predicate are rejected"). The string must begin with '+' or '-'; a
// file predicate with no leading sigil is a caller error (the sigil is what
// the base/predicate split in §4.2 found).
func ParsePredicate(s string) (Predicate, error) {
	if s == "" {
		return Predicate{}, nil
	}
	if s[0] != '+' && s[0] != '-' {
		return Predicate{}, errEmptyTagName
	}
	return parseRuns(s, 1, polarityOf(s[0]))
}

// ParseDirectoryPredicate parses a directory's whole name as a tag
// predicate, per §4.2: the directory name *is* the predicate, with no base
// name preceding it, so — unlike ParsePredicate — it must NOT begin with a
// polarity sigil; its first run is implicitly Include (e.g. "linux-old"
// means +linux -old).
func ParseDirectoryPredicate(s string) (Predicate, error) {
	if s == "" {
		return Predicate{}, nil
	}
	if s[0] == '+' || s[0] == '-' {
		return Predicate{}, errLeadingSigilInDir
	}
	return parseRuns(s, 0, Include)
}

func polarityOf(b byte) Polarity {
	if b == '-' {
		return Exclude
	}
	return Include
}

// parseRuns splits s into '+'/'-'-delimited runs starting at index start
// (which is 1 past a leading sigil for files, or 0 for directories), with
// initial polarity firstPol.
func parseRuns(s string, start int, firstPol Polarity) (Predicate, error) {
	var tags []Tag
	pol := firstPol
	runStart := start
	flush := func(end int) error {
		name := s[runStart:end]
		if name == "" {
			return errEmptyTagName
		}
		if strings.Contains(name, ".") {
			return errDotInTag
		}
		tags = append(tags, Tag{Name: name, Polarity: pol})
		return nil
	}
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '+':
			if err := flush(i); err != nil {
				return Predicate{}, err
			}
			pol = Include
			runStart = i + 1
		case '-':
			if err := flush(i); err != nil {
				return Predicate{}, err
			}
			pol = Exclude
			runStart = i + 1
		}
	}
	if err := flush(len(s)); err != nil {
		return Predicate{}, err
	}
	return Predicate{Tags: tags}, nil
}

var (
	errEmptyTagName      = predicateError("empty tag name in predicate")
	errDotInTag          = predicateError("tag predicate contains '.'")
	errLeadingSigilInDir = predicateError("directory name starts with a polarity sigil")
)

type predicateError string

func (e predicateError) Error() string { return string(e) }
