package env

import (
	"path/filepath"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/gc"
)

// Tables bundles the six named scopes and tables from spec.md §3.3 that the
// lexer, parser and evaluator all share ownership of through GC roots:
// globals, statics, operators, system_environment, sources and search_paths.
//
// Statics and Locals are reseated on every function call: pkg/eval's
// applyApply (Function case) and evalOperatorFunction save the caller's
// Statics/Locals, swap in the callee's source-static (via StaticsFor) and a
// fresh child scope, and restore the saved pair once the body has been
// evaluated. MarkRoots therefore reads whatever they currently point to
// rather than a snapshot taken at construction, and also walks every
// per-source static environment ever handed out, since a call further up
// the stack may be the only thing still pointing at the caller's own.
type Tables struct {
	Globals   *ast.Node
	Operators *OperatorTable
	System    *ast.Node
	Statics   *ast.Node
	Locals    *ast.Node

	sources         []string
	searchPaths     []string
	staticsBySource map[int]*ast.Node
}

// StaticsFor returns the persistent per-source static environment for
// sourceID (spec.md §3.3 "statics — per-source-file persistent scope"),
// allocating it as a child Environment of Globals, kept in a per-source map,
// the first time that source is called into.
func (t *Tables) StaticsFor(c *gc.Collector, sourceID int) (*ast.Node, error) {
	if n, ok := t.staticsBySource[sourceID]; ok {
		return n, nil
	}
	n, err := New(c, t.Globals)
	if err != nil {
		return nil, err
	}
	if t.staticsBySource == nil {
		t.staticsBySource = make(map[int]*ast.Node)
	}
	t.staticsBySource[sourceID] = n
	return n, nil
}

// MarkRoots implements gc.RootSet.
func (t *Tables) MarkRoots(mark func(*ast.Node)) {
	mark(t.Globals)
	if t.Operators != nil {
		t.Operators.MarkChildren(mark)
	}
	mark(t.System)
	mark(t.Statics)
	mark(t.Locals)
	for _, s := range t.staticsBySource {
		mark(s)
	}
}

// Name implements ast.SourceNamer, resolving an interned source-id back to
// its path for diagnostic formatting.
func (t *Tables) Name(id int) string {
	if id >= 0 && id < len(t.sources) {
		return t.sources[id]
	}
	return ""
}

// InternSource returns path's source-id, interning it (and assigning a
// fresh, stable id) on first use. The id becomes the 20-bit source field of
// every Sloc produced while lexing that file.
func (t *Tables) InternSource(path string) int {
	for i, p := range t.sources {
		if p == path {
			return i
		}
	}
	t.sources = append(t.sources, path)
	return len(t.sources) - 1
}

// AddSearchPath appends dir to the ordered, de-duplicated list of
// directories consulted by `import`, unless it is already present.
func (t *Tables) AddSearchPath(dir string) {
	clean := filepath.Clean(dir)
	for _, p := range t.searchPaths {
		if p == clean {
			return
		}
	}
	t.searchPaths = append(t.searchPaths, clean)
}

// SearchPaths returns the ordered list of import search directories.
func (t *Tables) SearchPaths() []string { return t.searchPaths }

// IsAbsolute reports whether path should bypass the search-path walk when
// resolving an `import` target.
func IsAbsolute(path string) bool { return filepath.IsAbs(path) }
