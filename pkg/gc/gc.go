// Package gc implements the mark-sweep collector (nodes come from Go's own
// allocator, recycled through a freelist; there is no slab pool)
// and explicit shadow stack from spec.md §4.1/§4.2. It owns every Ast node's
// lifetime; the evaluator never frees a node directly, it only snapshots and
// reverts the shadow stack around recursive steps.
package gc

import (
	"github.com/stytri/oboe/pkg/ast"
	"github.com/stytri/oboe/pkg/utils"
)

// RootSet is implemented by anything the collector must treat as a GC root:
// the globals/statics/operators/system_environment/sources/search_paths
// environments and the evaluator's current locals (spec.md §3.3).
type RootSet interface {
	MarkRoots(mark func(*ast.Node))
}

// Markable is implemented by non-Node payloads (an *env.Env living in an
// Environment node's A slot, an opaque data type's internal state) that
// themselves hold onto further Ast nodes.
type Markable interface {
	MarkChildren(mark func(*ast.Node))
}

// Sweeper is implemented by payloads that own an external resource (an ODT's
// open file handle) that must be released when its node is reclaimed.
type Sweeper interface {
	Sweep()
}

// Collector is a process-wide, single-threaded mark-sweep allocator. It is
// deliberately not safe for concurrent use: spec.md §5 requires exactly one
// evaluation thread, and the shadow stack, freelist and live-set are all
// unsynchronized mutable state shared by design, not by oversight.
type Collector struct {
	head *ast.Node // every live allocation, linked through GCNext
	free *ast.Node // freelist, also linked through GCNext

	liveColor uint8
	live      int
	threshold int

	// MaxLive, if non-zero, caps the live set. Go's own allocator has no
	// user-visible OOM signal the way the C original's malloc does, so this
	// is the policy knob that lets Alloc honour spec.md's "allocation
	// failure returns null; the evaluator propagates ERR_OutOfMemory"
	// contract without pretending to emulate malloc failure.
	MaxLive int

	shadow utils.Stack[*ast.Node]
	roots  []RootSet
}

// New returns a Collector with the initial threshold from spec.md §4.1:
// CHAR_BIT * sizeof(size_t), i.e. 8*8 = 64 live allocations on a 64-bit host.
func New() *Collector {
	return &Collector{threshold: 64, liveColor: 1}
}

// AddRoot registers a permanent GC root (globals, operators, statics,
// system_environment, sources, search_paths). Roots added this way are
// consulted on every Collect.
func (c *Collector) AddRoot(r RootSet) { c.roots = append(c.roots, r) }

// Depth returns the current shadow-stack height, to be paired with a later
// Revert or Return once the caller's recursive step completes.
func (c *Collector) Depth() int { return c.shadow.Count() }

// Push records n as a live intermediate so it survives until the next
// Revert/Return, without counting as a permanent root.
func (c *Collector) Push(n *ast.Node) { c.shadow.Push(n) }

// Revert drops every shadow-stack entry above top, discarding references to
// whatever transient nodes a recursive step produced.
func (c *Collector) Revert(top int) { c.shadow.Truncate(top) }

// Return reverts to top and then pushes result, so exactly one live
// reference to the recursive step's output survives, for callers that took
// a Depth() snapshot before that step.
func (c *Collector) Return(top int, result *ast.Node) *ast.Node {
	c.Revert(top)
	c.Push(result)
	return result
}

// Live returns the number of currently-live allocations, used by the
// gc_total_size() testable property (spec.md §8).
func (c *Collector) Live() int { return c.live }

// Alloc draws a node from the freelist, collecting first if the freelist is
// empty and the live set has reached the threshold, or allocates a fresh
// node from Go's heap if still empty afterwards. Every fresh node is pushed onto the shadow stack,
// mirroring new_ast's behaviour in spec.md §4.2 — including String leaves,
// which the C original leaves unpushed because its string payloads are owned
// by an intern table; here a fresh String node is reachable from nowhere
// until its caller stores it, and Alloc itself may collect.
func (c *Collector) Alloc(kind ast.Kind) (*ast.Node, bool) {
	if c.free == nil && c.live >= c.threshold {
		c.Collect()
	}

	if c.MaxLive > 0 && c.live >= c.MaxLive && c.free == nil {
		return nil, false
	}

	var n *ast.Node
	if c.free != nil {
		n = c.free
		c.free = n.GCNext
		n.Reset()
	} else {
		n = &ast.Node{}
	}

	n.Kind = kind
	n.GCColor = c.liveColor
	n.GCNext = c.head
	c.head = n
	c.live++

	c.Push(n)
	return n, true
}

// Collect runs one full mark-sweep pass: it flips the live colour, marks
// every node reachable from a registered root or the shadow stack with the
// new colour, then reclaims everything still carrying the old colour.
// Following a collection it rebalances the threshold so collection stays
// amortised at constant-factor overhead relative to residency (spec.md
// §4.1): grow if live occupies at least two thirds of the threshold, shrink
// if live falls to at most one third.
func (c *Collector) Collect() {
	newColor := 1 - c.liveColor

	mark := func(n *ast.Node) { c.mark(n, newColor) }
	for _, r := range c.roots {
		r.MarkRoots(mark)
	}
	c.shadow.Each(mark)

	var survivors *ast.Node
	count := 0
	for n := c.head; n != nil; {
		next := n.GCNext
		if n.GCColor == newColor {
			n.GCNext = survivors
			survivors = n
			count++
		} else {
			if s, ok := n.A.(Sweeper); ok {
				s.Sweep()
			}
			if s, ok := n.B.(Sweeper); ok {
				s.Sweep()
			}
			n.GCNext = c.free
			c.free = n
		}
		n = next
	}

	c.head = survivors
	c.live = count
	c.liveColor = newColor

	if count*3 >= c.threshold*2 {
		c.threshold *= 2
	} else if c.threshold > 64 && count*3 <= c.threshold {
		c.threshold /= 2
	}
}

func (c *Collector) mark(n *ast.Node, newColor uint8) {
	if n == nil || n == ast.Zen || n.GCColor == newColor {
		return
	}
	n.GCColor = newColor

	if child, ok := n.A.(*ast.Node); ok {
		c.mark(child, newColor)
	}
	if child, ok := n.B.(*ast.Node); ok {
		c.mark(child, newColor)
	}
	if m, ok := n.A.(Markable); ok {
		m.MarkChildren(func(c2 *ast.Node) { c.mark(c2, newColor) })
	}
	if m, ok := n.B.(Markable); ok {
		m.MarkChildren(func(c2 *ast.Node) { c.mark(c2, newColor) })
	}
}
