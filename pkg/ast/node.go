package ast

import "fmt"

// ----------------------------------------------------------------------------
// Node

// Node is the uniform two-slot record from spec.md §3.1. Every AST value,
// from an Integer literal to a whole Environment, is one of these; dispatch
// throughout the lexer/parser/evaluator switches on Kind, never on Go type.
//
// The two payload slots (A, B) are interpreted per Kind:
//   - Numeric (Boolean/Integer/Character/Float): A carries the scalar.
//   - String: A carries the Go string (immutable, so no separate ownership
//     bookkeeping is needed the way spec.md's external string library needs).
//   - Identifier: A carries the name, B carries its precomputed 64-bit hash.
//   - Operator/Sequence/Assemblage: A and B are the left/right child Node.
//   - Reference: A carries the bound name (string), B carries the bound value.
//   - Environment: A carries *env.Env (an opaque *HAMT+outer-link owner, see
//     pkg/env), B carries the outer Environment Node (or nil at globals).
//   - BuiltinOperator/BuiltinFunction: B carries the Go function value.
//   - OpaqueDataType/OpaqueDataReference: A/B are free for the registered
//     type's New/Mark/Sweep hooks (pkg/odt).
//
// Node also carries the GC's own bookkeeping (GCNext, GCColor): spec.md's
// "hard core" quartet is deliberately tightly coupled, so rather than layer
// an external allocation header around each node (as the C original does
// with a separate `link`/`size`/`mark`/`sweep` struct) the two concerns
// share one allocation, which is the natural Go shape once the mark/sweep
// free-store bookkeeping no longer needs a raw `size` field to support
// in-place realloc.
type Node struct {
	Kind Kind
	Attr Attr
	Qual int32
	Loc  Sloc

	A, B any

	// GCNext threads this node into the collector's live list, and later
	// (once reclaimed) into its freelist — the same single pointer field
	// serves both purposes, exactly as spec.md's freed-node-via-first-slot
	// description intends, just kept out of the user-visible A/B slots.
	GCNext  *Node
	GCColor uint8
}

// Reset clears every field except identity, so a freelist node can be
// reused for a different Kind without leaking its previous payload.
func (n *Node) Reset() {
	n.Kind = ZenKind
	n.Attr = 0
	n.Qual = 0
	n.Loc = 0
	n.A, n.B = nil, nil
}

// Zen is the canonical "no value" singleton. It is never collected: it is
// not allocated through the collector, and the mark pass skips it (see
// pkg/gc).
var Zen = &Node{Kind: ZenKind}

// IsZen reports whether n is the canonical Zen node. Distinguishing "absent"
// from "freshly allocated Void" matters: a Void slot is a writable hole
// waiting for assign(), Zen never is.
func (n *Node) IsZen() bool { return n == Zen }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case ZenKind:
		return "zen"
	case Boolean, Integer, Float:
		return fmt.Sprintf("%v", n.A)
	case Character:
		return fmt.Sprintf("%c", n.A)
	case String:
		return fmt.Sprintf("%q", n.A)
	case Identifier:
		return fmt.Sprintf("%v", n.A)
	case ErrorKind:
		return fmt.Sprintf("error(%d)", n.Qual)
	default:
		return fmt.Sprintf("%s@%s", n.Kind, n.Loc)
	}
}
