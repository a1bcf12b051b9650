package ast

// ----------------------------------------------------------------------------
// Node kinds

// Kind is the closed tag carried by every Ast node (spec.md §3.1). Every node's
// Kind is fixed at construction and never mutated afterwards; dispatch in the
// lexer, parser, evaluator and builtins all switch on this value.
type Kind uint8

const (
	ZenKind   Kind = iota // the canonical "no value" node, a singleton
	VoidKind              // an uninitialized slot, distinct from Zen
	Boolean
	Integer
	Character
	Float
	String
	Identifier
	Operator
	Sequence
	Assemblage
	Quoted
	Reference
	Function
	OperatorFunction
	OperatorAlias
	BuiltinOperator
	BuiltinFunction
	Environment
	ErrorKind
	OpaqueDataType
	OpaqueDataReference
)

var kindNames = [...]string{
	ZenKind: "Zen", VoidKind: "Void", Boolean: "Boolean", Integer: "Integer",
	Character: "Character", Float: "Float", String: "String", Identifier: "Identifier",
	Operator: "Operator", Sequence: "Sequence", Assemblage: "Assemblage", Quoted: "Quoted",
	Reference: "Reference", Function: "Function", OperatorFunction: "OperatorFunction",
	OperatorAlias: "OperatorAlias", BuiltinOperator: "BuiltinOperator", BuiltinFunction: "BuiltinFunction",
	Environment: "Environment", ErrorKind: "Error", OpaqueDataType: "OpaqueDataType",
	OpaqueDataReference: "OpaqueDataReference",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "UnknownKind"
}

// IsNumeric reports whether k is one of the four scalar kinds that
// participate in the arithmetic/compare/bitwise/shift dispatch tables.
func (k Kind) IsNumeric() bool {
	switch k {
	case Boolean, Integer, Character, Float:
		return true
	default:
		return false
	}
}

// IsDeferred reports whether k is one of the two kinds that postpone
// evaluation: a Quoted node blocks one round of eval, a Reference is an
// already-bound name that refeval chases to its value.
func (k Kind) IsDeferred() bool {
	return k == Quoted || k == Reference
}
