// Package odt implements the Opaque Data Type registry from spec.md §4.8: a
// name-indexed table of foreign types, each carrying New/Eval/Mark/Sweep
// hooks, so host-side resources (an open file, a file-position token) can
// appear as ordinary Ast nodes without the evaluator core knowing anything
// about their internals.
package odt

import (
	"fmt"

	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/gc"
)

// Type is one registered opaque data type. New constructs a fresh instance's
// internal state from the (already-evaluated) constructor argument; Eval, if
// non-nil, lets the type intercept applicate (e.g. reading a `file` like a
// function call); Mark/Sweep are the GC hooks from spec.md §4.1.
type Type struct {
	Name string
	ID   int32

	New   func(c *gc.Collector, arg *ast.Node) (any, ast.Attr, error)
	Eval  func(c *gc.Collector, inst *Instance, arg *ast.Node) (*ast.Node, error)
	Mark  func(inst *Instance, mark func(*ast.Node))
	Sweep func(inst *Instance)
}

// Instance is the payload an OpaqueDataType node carries in its A slot. It
// implements gc.Markable/gc.Sweeper by delegating to its Type's hooks, so
// the collector's generic mark/sweep walk (pkg/gc) picks it up without any
// special-casing of OpaqueDataType as a Kind.
type Instance struct {
	Type  *Type
	State any
}

func (i *Instance) MarkChildren(mark func(*ast.Node)) {
	if i.Type.Mark != nil {
		i.Type.Mark(i, mark)
	}
}

func (i *Instance) Sweep() {
	if i.Type.Sweep != nil {
		i.Type.Sweep(i)
	}
}

// Registry is the name-indexed table of registered types.
type Registry struct {
	byName map[string]*Type
	byID   []*Type
}

// NewRegistry returns an empty Registry. Call RegisterShipped(r) to install the two
// types spec.md §4.8 names (`file`, `fpos`).
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Type{}}
}

// Register installs t, assigning it the next free type id.
func (r *Registry) Register(t *Type) {
	t.ID = int32(len(r.byID))
	r.byID = append(r.byID, t)
	r.byName[t.Name] = t
}

// Lookup finds a registered type by name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// ByID finds a registered type by its assigned id (an OpaqueDataType node's
// Qual field).
func (r *Registry) ByID(id int32) (*Type, bool) {
	if id < 0 || int(id) >= len(r.byID) {
		return nil, false
	}
	return r.byID[id], true
}

// New constructs a fresh OpaqueDataType node for the named type and wraps it
// in an OpaqueDataReference, the shape programs actually see (spec.md §4.8:
// "the distinction is used to prevent an fpos from being assigned into,
// while a file reference can be passed around freely").
func (r *Registry) New(c *gc.Collector, name string, arg *ast.Node) (*ast.Node, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("opaque data type %q is not registered", name)
	}

	state, attr, err := t.New(c, arg)
	if err != nil {
		return nil, fmt.Errorf("constructing %q: %w", name, err)
	}

	data, ok := c.Alloc(ast.OpaqueDataType)
	if !ok {
		return nil, errAlloc
	}
	data.Qual = t.ID
	data.A = &Instance{Type: t, State: state}

	ref, ok := c.Alloc(ast.OpaqueDataReference)
	if !ok {
		return nil, errAlloc
	}
	ref.A = name
	ref.B = data
	ref.Attr = attr
	return ref, nil
}

var errAlloc = fmt.Errorf("allocating opaque data type node")

// InstanceOf extracts an OpaqueDataType node's Instance, given either the
// bare data node or its OpaqueDataReference wrapper.
func InstanceOf(n *ast.Node) (*Instance, bool) {
	switch n.Kind {
	case ast.OpaqueDataType:
		inst, ok := n.A.(*Instance)
		return inst, ok
	case ast.OpaqueDataReference:
		data, ok := n.B.(*ast.Node)
		if !ok {
			return nil, false
		}
		return InstanceOf(data)
	default:
		return nil, false
	}
}
