// Package errs carries the closed error taxonomy from spec.md §7. Errors are
// values, not exceptions: any operator that detects a problem returns an
// Error Ast node instead of a regular value, and the evaluator never
// recovers from one — it simply propagates it until a top-level driver
// prints it or a script exits.
package errs

import (
	"errors"
	"fmt"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/gc"
)

// Kind is the closed set of runtime error qual codes.
type Kind int32

const (
	InvalidOperand  Kind = iota + 1 // operator applied to ill-typed arguments
	InvalidReferent                 // assignment target absent or NoAssign
	InvalidIdentifier               // name lookup missed every enclosing scope
	InvalidOperator                  // operator index has no binding, or a non-operator one
	FailedOperation                  // an external call (rename, remove, fsetpos, ...) failed
	OutOfMemory                       // allocation failure propagated from the GC
)

var kindNames = map[Kind]string{
	InvalidOperand:     "InvalidOperand",
	InvalidReferent:    "InvalidReferent",
	InvalidIdentifier:  "InvalidIdentifier",
	InvalidOperator:    "InvalidOperator",
	FailedOperation:    "FailedOperation",
	OutOfMemory:        "OutOfMemory",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownError"
}

// Sentinel Go errors, used at package boundaries (env, eval, builtin) before
// a Collector is available to turn them into an Error Ast node, and in
// tests that only care about the taxonomy, not the node.
var (
	ErrInvalidOperand    = errors.New(InvalidOperand.String())
	ErrInvalidReferent   = errors.New(InvalidReferent.String())
	ErrInvalidIdentifier = errors.New(InvalidIdentifier.String())
	ErrInvalidOperator   = errors.New(InvalidOperator.String())
	ErrFailedOperation   = errors.New(FailedOperation.String())
	ErrOutOfMemory       = errors.New(OutOfMemory.String())
)

// KindOf maps a sentinel (or a wrapped sentinel) back to its Kind, defaulting
// to InvalidOperand the way invalid_operand() does in spec.md §4.9 when no
// more specific error is found.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidReferent):
		return InvalidReferent
	case errors.Is(err, ErrInvalidIdentifier):
		return InvalidIdentifier
	case errors.Is(err, ErrInvalidOperator):
		return InvalidOperator
	case errors.Is(err, ErrFailedOperation):
		return FailedOperation
	case errors.Is(err, ErrOutOfMemory):
		return OutOfMemory
	default:
		return InvalidOperand
	}
}

// New allocates an Error Ast node of the given kind at loc. OutOfMemory is
// special-cased to a static node (see Static) since allocating a node to
// report an allocation failure would be self-defeating.
func New(c *gc.Collector, kind Kind, loc ast.Sloc, msg string) (*ast.Node, error) {
	if kind == OutOfMemory {
		return Static(OutOfMemory), nil
	}
	n, ok := c.Alloc(ast.ErrorKind)
	if !ok {
		return Static(OutOfMemory), nil
	}
	n.Qual = int32(kind)
	n.Loc = loc
	n.A = msg
	return n, nil
}

var staticOOM = &ast.Node{Kind: ast.ErrorKind, Qual: int32(OutOfMemory), A: "out of memory"}

// Static returns a pre-allocated Error node for kinds that must never
// themselves fail to allocate (spec.md §4.1's "No partial graphs are
// created" failure model).
func Static(kind Kind) *ast.Node {
	if kind == OutOfMemory {
		return staticOOM
	}
	return &ast.Node{Kind: ast.ErrorKind, Qual: int32(kind), A: kind.String()}
}

// IsError reports whether n is an Error node.
func IsError(n *ast.Node) bool { return n != nil && n.Kind == ast.ErrorKind }

// Message renders the user-visible "SOURCE:LINE:OFFSET:SPAN: KIND" form.
func Message(n *ast.Node, names ast.SourceNamer) string {
	kind := Kind(n.Qual)
	return fmt.Sprintf("%s: %s", n.Loc.Format(names), kind)
}

// First returns the first Error node among args, or nil if none is one —
// the "invalid_operand helper" most builtins call before doing their own
// type dispatch (spec.md §4.9).
func First(args ...*ast.Node) *ast.Node {
	for _, a := range args {
		if IsError(a) {
			return a
		}
	}
	return nil
}
