package module

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hbuild/hbuild/internal/bderr"
	"github.com/hbuild/hbuild/internal/ident"
	"github.com/hbuild/hbuild/internal/source"
	"github.com/hbuild/hbuild/internal/tagset"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// useRE matches a `use <ident>...;` import declaration and captures the
// leading dotted identifier, ignoring the various binding forms
// (`={...}`, `::*`, a rename) that may follow it.
var useRE = regexp.MustCompile(`^\s*use\s+([A-Za-z_][A-Za-z0-9_]*(?:::[A-Za-z_][A-Za-z0-9_]*)*)`)

// Graph is the closed, topologically sorted module graph produced by
// Resolve: leaves first, ties broken by identifier order (§4.3.6).
type Graph struct {
	Modules []*Module // topologically sorted, leaves first
	Root    int        // index of the root module
}

// Resolver locates and resolves modules against a search path.
type Resolver struct {
	// SearchPath is the list of roots (e.g. HAREPATH split on ':') to search
	// for imported module identifiers, in order; first match wins.
	SearchPath []string
	Tags       *tagset.Set
}

// Resolve resolves rootPath (an on-disk path, absolute or relative) as the
// root module, recursively resolving its entire import closure.
func (r *Resolver) Resolve(rootPath string) (*Graph, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, bderr.Wrap(err, rootPath)
	}
	rootIdent := ident.Ident{Parts: []string{filepath.Base(abs)}}

	st := &resolveState{
		r:        r,
		byIdent:  make(map[string]*Module),
		indexOf:  make(map[string]int),
		g:        simple.NewDirectedGraph(),
		nodeByID: make(map[string]graph.Node),
		onStack:  make(map[string]bool),
	}

	m, err := st.resolveAt(rootIdent, abs, nil)
	if err != nil {
		return nil, err
	}

	order, err := st.topoOrder()
	if err != nil {
		return nil, err
	}

	rootIdx := -1
	indexOf := make(map[string]int, len(order))
	for i, mod := range order {
		indexOf[mod.Ident.String()] = i
		if mod == m {
			rootIdx = i
		}
	}
	// Backfill each dependency edge's Index now that the final topological
	// position of every module is known; resolveAt only has the identifier
	// available at the point it appends to mod.Deps.
	for _, mod := range order {
		for i := range mod.Deps {
			mod.Deps[i].Index = indexOf[mod.Deps[i].Ident.String()]
		}
	}
	return &Graph{Modules: order, Root: rootIdx}, nil
}

type resolveState struct {
	r *Resolver

	byIdent map[string]*Module  // identifier string -> resolved module
	indexOf map[string]int      // identifier string -> graph node id

	g             *simple.DirectedGraph
	nodeByID      map[string]graph.Node
	identByNodeID map[int64]string

	onStack map[string]bool
	stack   []string
}

func (st *resolveState) nodeFor(id ident.Ident) graph.Node {
	key := id.String()
	if n, ok := st.nodeByID[key]; ok {
		return n
	}
	n := st.g.NewNode()
	st.g.AddNode(n)
	st.nodeByID[key] = n
	if st.identByNodeID == nil {
		st.identByNodeID = make(map[int64]string)
	}
	st.identByNodeID[n.ID()] = key
	return n
}

// locate finds the on-disk directory for a (non-root) module identifier by
// searching SearchPath in order.
func (st *resolveState) locate(id ident.Ident) (string, error) {
	for _, root := range st.r.SearchPath {
		candidate := filepath.Join(append([]string{root}, id.PathComponents()...)...)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate, nil
		}
	}
	return "", bderr.New(bderr.NotFound, nil, id.String())
}

// resolveAt resolves the module rooted at path with identifier id, pushing
// id onto the cycle-detection stack for the duration of the call.
func (st *resolveState) resolveAt(id ident.Ident, path string, via []string) (*Module, error) {
	key := id.String()
	if existing, ok := st.byIdent[key]; ok {
		return existing, nil
	}
	if st.onStack[key] {
		chain := append(append([]string{}, via...), key)
		return nil, bderr.New(bderr.Cycle, nil, strings.Join(chain, " -> "))
	}
	st.onStack[key] = true
	st.stack = append(st.stack, key)
	defer func() {
		delete(st.onStack, key)
		st.stack = st.stack[:len(st.stack)-1]
	}()

	set, err := source.Discover(path, st.r.Tags)
	if err != nil {
		return nil, bderr.Wrap(err, id.String())
	}

	mod := &Module{
		Ident:     id,
		Path:      path,
		Namespace: id.Namespace(),
		Sources:   set,
	}
	st.byIdent[key] = mod
	st.nodeFor(id)

	imports, err := parseImports(set.Lang)
	if err != nil {
		return nil, bderr.Wrap(err, id.String())
	}

	for _, depIdentStr := range imports {
		depID, err := ident.Parse(depIdentStr)
		if err != nil {
			return nil, bderr.Wrap(err, id.String())
		}
		depPath, err := st.locate(depID)
		if err != nil {
			return nil, bderr.Wrap(err, "importing "+depIdentStr+" from "+id.String())
		}
		depMod, err := st.resolveAt(depID, depPath, append(append([]string{}, via...), key))
		if err != nil {
			return nil, err
		}
		mod.Deps = append(mod.Deps, Edge{Ident: depID})
		st.g.SetEdge(st.g.NewEdge(st.nodeFor(id), st.nodeFor(depID)))
		_ = depMod
	}

	return mod, nil
}

// parseImports extracts the set of imported identifiers from a module's
// language sources, deduplicated and in first-seen order.
func parseImports(sources []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, path := range sources {
		f, err := os.Open(path)
		if err != nil {
			return nil, bderr.Wrap(err, path)
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := sc.Text()
			if m := useRE.FindStringSubmatch(line); m != nil {
				if !seen[m[1]] {
					seen[m[1]] = true
					out = append(out, m[1])
				}
			}
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, bderr.Wrap(err, path)
		}
	}
	return out, nil
}

// topoOrder produces the leaves-first topological order of every module
// resolved so far, ties broken by identifier (§4.3.6).
func (st *resolveState) topoOrder() ([]*Module, error) {
	sorted, err := topo.SortStabilized(st.g, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return nodeIdentOf(st, nodes[i]).String() < nodeIdentOf(st, nodes[j]).String()
		})
	})
	if err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			var names []string
			for _, comp := range uo {
				for _, n := range comp {
					names = append(names, nodeIdentOf(st, n).String())
				}
			}
			sort.Strings(names)
			return nil, bderr.New(bderr.Cycle, nil, strings.Join(names, ", "))
		}
		return nil, err
	}

	// topo.Sort gives roots (no incoming edge consumers) first; our edges
	// point from a module to its dependencies, so the sorted order from
	// gonum is dependents-before-dependencies. Reverse it to get
	// leaves-first, matching §4.3.6.
	mods := make([]*Module, len(sorted))
	for i, n := range sorted {
		mods[len(sorted)-1-i] = st.byIdent[nodeIdentOf(st, n).String()]
	}
	return mods, nil
}

func nodeIdentOf(st *resolveState, n graph.Node) ident.Ident {
	key := st.identByNodeID[n.ID()]
	id, _ := ident.Parse(key)
	return id
}
