package env

import "github.com/stytri/oboe/pkg/ast"

// OperatorTable is the environment-resident operator table spec.md §4.4
// describes: a name-indexed, user-extensible table whose entries carry both
// the callable (a BuiltinOperator or OperatorFunction node) and the
// precedence tier the parser reads back out via Qual — mirroring
// getopr(index)->qual in the original's parse.c, which returns the
// precedence straight off the table entry rather than a separate table.
//
// It is a dedicated type rather than another Environment node because
// operator lookup is by name only (no assignment-through semantics, no
// Reference wrapping) and needs its name preserved for hash-collision
// disambiguation — something env.Env's vector-of-Reference shape doesn't
// carry for unnamed/array-style slots.
type OperatorTable struct {
	names   []string
	entries []*ast.Node
	index   map[uint64][]int
}

// NewOperatorTable returns an empty table.
func NewOperatorTable() *OperatorTable {
	return &OperatorTable{index: map[uint64][]int{}}
}

// MarkChildren implements gc.Markable.
func (t *OperatorTable) MarkChildren(mark func(*ast.Node)) {
	for _, n := range t.entries {
		mark(n)
	}
}

// Define installs node (a BuiltinOperator or OperatorFunction node, its Qual
// set to the declared precedence tier) under name, returning its index.
// Redefining an existing name overwrites its entry in place at the same
// index, so Operator nodes already parsed with that index dispatch to the
// new entry; the precedence they were parsed with is unchanged.
func (t *OperatorTable) Define(name string, node *ast.Node) int {
	if i, _, ok := t.Lookup(name); ok {
		t.entries[i] = node
		return i
	}
	hash := Hash(name)
	i := len(t.entries)
	t.names = append(t.names, name)
	t.entries = append(t.entries, node)
	t.index[hash] = append(t.index[hash], i)
	return i
}

// Lookup finds name's table index and current node.
func (t *OperatorTable) Lookup(name string) (int, *ast.Node, bool) {
	hash := Hash(name)
	for _, i := range t.index[hash] {
		if t.names[i] == name {
			return i, t.entries[i], true
		}
	}
	return 0, nil, false
}

// At returns the node stored at index i (as resolved by the parser into an
// Operator AST node's Qual field at parse time).
func (t *OperatorTable) At(i int) *ast.Node {
	if i < 0 || i >= len(t.entries) {
		return nil
	}
	return t.entries[i]
}

// NameAt returns the operator name stored at index i, used by structural
// matchers (the `..` range check inside subscript/case/while) that need to
// recognise a specific table-resident operator by name rather than value.
func (t *OperatorTable) NameAt(i int) (string, bool) {
	if i < 0 || i >= len(t.names) {
		return "", false
	}
	return t.names[i], true
}
