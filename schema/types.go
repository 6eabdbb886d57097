// Package schema compiles the schema DSL (spec.md §4.1) into an in-memory
// Schema: named enum types, command signatures, and a status vector.
//
// The grammar is a small, fixed block/brace language, unlike the SQL-like
// filter-expression grammar the teacher parses with a generated ANTLR
// parser (sttp/filterexpressions). A hand-written recursive-descent
// lexer/parser is a better fit here: it is simpler than wiring a grammar
// codegen step for a dozen-odd production rules, and it can attach the
// precise per-token line/column spans §4.1 requires directly as it scans.
package schema

// KindEnum tags the three shapes a Type can take, per spec.md §3.
type KindEnum int

var Kind = struct {
	Int  KindEnum
	Bool KindEnum
	Enum KindEnum
}{
	Int:  0,
	Bool: 1,
	Enum: 2,
}

// Type is the tagged variant over {int, bool, enum(name)} from spec.md §3.
type Type struct {
	Kind KindEnum
	Enum string // populated only when Kind == Kind.Enum
}

func IntType() Type  { return Type{Kind: Kind.Int} }
func BoolType() Type { return Type{Kind: Kind.Bool} }
func EnumType(name string) Type {
	return Type{Kind: Kind.Enum, Enum: name}
}

func (t Type) String() string {
	switch t.Kind {
	case Kind.Int:
		return "int"
	case Kind.Bool:
		return "bool"
	case Kind.Enum:
		return "enum(" + t.Enum + ")"
	default:
		return "unknown"
	}
}

// Equal reports whether t and other denote the same declared type.
func (t Type) Equal(other Type) bool {
	return t.Kind == other.Kind && t.Enum == other.Enum
}

// Param is one (name, Type) entry in a Signature.
type Param struct {
	Name string
	Type Type
}

// Signature is an ordered sequence of named, typed parameters. Parameter
// names are unique within a signature (spec.md §3).
type Signature []Param

// Names returns the ordered parameter names of the signature.
func (s Signature) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Find returns the Param with the given name, or false if absent.
func (s Signature) Find(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// EnumDecl is a named enum type: an ordered set of member identifiers.
// The member -> integer mapping lives in the Model, not here (spec.md §3).
type EnumDecl struct {
	Name    string
	Members []string
}

// HasMember reports whether member is declared on this enum.
func (e EnumDecl) HasMember(member string) bool {
	for _, m := range e.Members {
		if m == member {
			return true
		}
	}
	return false
}

// Schema is the compiled output of the schema DSL (spec.md §3).
type Schema struct {
	Version  int
	Kind     string
	Enums    map[string]EnumDecl
	Commands map[string]Signature
	Status   Signature
}
