package ast

// Attr holds the four attribute bits a node can carry (spec.md §3.1). They
// are independent flags, not part of the Kind enumeration.
type Attr uint8

const (
	NoEvaluate Attr = 1 << iota // the parser/evaluator must not auto-evaluate this node
	NoAssign                    // assign() rejects a slot carrying this bit w/ ERR_InvalidReferent
	CopyOnAssign
	RetainCopyOnAssign
)

func (a Attr) Has(bit Attr) bool { return a&bit != 0 }
func (a Attr) Set(bit Attr) Attr { return a | bit }
func (a Attr) Clear(bit Attr) Attr { return a &^ bit }
