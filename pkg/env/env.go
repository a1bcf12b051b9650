// Package env implements the scoped HAMT-backed Environment from spec.md
// §3.3/§4.5: name binding, outer-scope chasing, and the dual use of the same
// backing store as an ordered vector (array-style indexing) and a name
// index (addenv-defined slots).
package env

import (
	"fmt"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/bitutil"
	"github.com/stytri/oboe/pkg/errs"
	"github.com/stytri/oboe/pkg/gc"
	"github.com/stytri/oboe/pkg/hamt"
)

// Env is the payload an Environment Node carries in its A slot. B carries
// the outer Environment Node (nil at globals).
type Env struct {
	arr *hamt.Array[*ast.Node]
}

// MarkChildren implements gc.Markable: every entry in the backing vector is
// itself a live Ast node (a Reference for named slots, or an arbitrary node
// for array-style use).
func (e *Env) MarkChildren(mark func(*ast.Node)) {
	for _, n := range e.arr.Entries() {
		mark(n)
	}
}

// New allocates a fresh Environment node with the given outer link.
func New(c *gc.Collector, outer *ast.Node) (*ast.Node, error) {
	n, ok := c.Alloc(ast.Environment)
	if !ok {
		return nil, fmt.Errorf("allocating environment: %w", errs.ErrOutOfMemory)
	}
	n.A = &Env{arr: hamt.New[*ast.Node]()}
	n.B = outer
	return n, nil
}

func envOf(n *ast.Node) *Env {
	e, _ := n.A.(*Env)
	return e
}

// Outer returns n's outer-scope link, or nil at the top of the chain.
func Outer(n *ast.Node) *ast.Node {
	if n == nil || n.B == nil {
		return nil
	}
	outer, _ := n.B.(*ast.Node)
	return outer
}

// Len returns the number of vector slots (named or positional) in n.
func Len(n *ast.Node) int { return envOf(n).arr.Len() }

// At returns the vector slot at position i, for array-style subscripting.
func At(n *ast.Node, i int) *ast.Node { return envOf(n).arr.At(i) }

// SetAt overwrites the vector slot at position i in place.
func SetAt(n *ast.Node, i int, v *ast.Node) { envOf(n).arr.Set(i, v) }

// Append adds v as a new positional (unnamed) slot and returns its index,
// used by array-style environment construction ([1,2,3]) where entries are
// not Reference nodes.
func Append(n *ast.Node, v *ast.Node) int { return envOf(n).arr.Push(v) }

// Hash is the precomputed 64-bit mix used to key names into the HAMT index,
// shared by the lexer (identifiers hash themselves once at construction)
// and callers here that build synthetic names at runtime.
func Hash(name string) uint64 { return bitutil.HashString(name) }

// Locate returns the vector index of the Reference named `name` in n's own
// HAMT index, without chasing the outer link.
func Locate(n *ast.Node, hash uint64, name string) (int, bool) {
	e := envOf(n)
	return e.arr.GetIndex(hash, func(idx int) bool {
		ref := e.arr.At(idx)
		return ref.Kind == ast.Reference && ref.A.(string) == name
	})
}

// Lookup chases the outer-scope chain looking for `name`, stopping after
// `depth` hops (0 = unbounded). It returns the Reference node itself, never
// its value — callers use refeval to unwrap it.
func Lookup(n *ast.Node, hash uint64, name string, depth int) (*ast.Node, bool) {
	hops := 0
	for cur := n; cur != nil; cur = Outer(cur) {
		if idx, ok := Locate(cur, hash, name); ok {
			return envOf(cur).arr.At(idx), true
		}
		hops++
		if depth > 0 && hops >= depth {
			break
		}
	}
	return nil, false
}

// Define appends a new Reference(name, value) to n's own scope and indexes
// it by hash. It does not check for a pre-existing binding; callers that
// need the reject-on-duplicate semantics of addenv use AddEnv.
func Define(c *gc.Collector, n *ast.Node, hash uint64, name string, value *ast.Node, attr ast.Attr) (*ast.Node, error) {
	ref, ok := c.Alloc(ast.Reference)
	if !ok {
		return nil, fmt.Errorf("defining %q: %w", name, errs.ErrOutOfMemory)
	}
	ref.A = name
	ref.B = value
	ref.Attr = attr
	ref.Loc = value.Loc

	e := envOf(n)
	idx := e.arr.Push(ref)
	e.arr.MapIndex(hash, idx)
	return ref, nil
}

// AddEnv is locate-then-define: spec.md §4.5 rejects a duplicate name in the
// same scope with InvalidOperand rather than silently shadowing it. Whether
// a *nested* scope may shadow an outer one is a separate, permitted case —
// Lookup finds the inner binding first because it checks cur before chasing
// Outer, so shadowing falls out of the chasing order for free.
func AddEnv(c *gc.Collector, n *ast.Node, name string, value *ast.Node, attr ast.Attr) (*ast.Node, error) {
	hash := Hash(name)
	if _, exists := Locate(n, hash, name); exists {
		return nil, fmt.Errorf("%q already declared in this scope: %w", name, errs.ErrInvalidOperand)
	}
	return Define(c, n, hash, name, value, attr)
}
