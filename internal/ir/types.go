// Package ir defines the typed, SSA-capable intermediate representation
// consumed by the optimizer and lowered to machine IR.
package ir

import (
	"fmt"
	"strings"
)

// TypeKind classifies IR types.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeFloat
	TypePointer
	TypeArray
	TypeStruct
	TypeFunction
	TypeLabel
)

// FloatKind selects the precision of a float type.
type FloatKind int

const (
	Float FloatKind = iota
	Double
	LongDouble
)

func (k FloatKind) String() string {
	switch k {
	case Float:
		return "float"
	case Double:
		return "double"
	case LongDouble:
		return "longdouble"
	default:
		return "unknown"
	}
}

// Type is a closed variant over all IR types. Only the fields relevant to
// Kind are meaningful.
type Type struct {
	Kind TypeKind

	// TypeInt
	Bits int

	// TypeFloat
	Float FloatKind

	// TypePointer, TypeArray
	Elem  *Type
	Count int64

	// TypeStruct
	Fields []*Type
	Name   string

	// TypeFunction
	Ret      *Type
	Params   []*Type
	Variadic bool
}

var (
	voidType  = &Type{Kind: TypeVoid}
	labelType = &Type{Kind: TypeLabel}
)

// VoidType returns the void type.
func VoidType() *Type { return voidType }

// LabelType returns the type of basic block labels.
func LabelType() *Type { return labelType }

// IntType returns an integer type of the given bit width.
func IntType(bits int) *Type { return &Type{Kind: TypeInt, Bits: bits} }

// BoolType returns the 1-bit integer produced by comparisons.
func BoolType() *Type { return IntType(1) }

// FloatType returns a float type of the given precision.
func FloatType(kind FloatKind) *Type { return &Type{Kind: TypeFloat, Float: kind} }

// PointerTo returns a pointer to elem.
func PointerTo(elem *Type) *Type { return &Type{Kind: TypePointer, Elem: elem} }

// ArrayOf returns an array of count elements.
func ArrayOf(elem *Type, count int64) *Type {
	return &Type{Kind: TypeArray, Elem: elem, Count: count}
}

// StructOf returns a struct type. An empty name makes it a literal struct.
func StructOf(name string, fields ...*Type) *Type {
	return &Type{Kind: TypeStruct, Name: name, Fields: fields}
}

// FunctionOf returns a function signature type.
func FunctionOf(ret *Type, params []*Type, variadic bool) *Type {
	return &Type{Kind: TypeFunction, Ret: ret, Params: params, Variadic: variadic}
}

func (t *Type) IsVoid() bool    { return t != nil && t.Kind == TypeVoid }
func (t *Type) IsInt() bool     { return t != nil && t.Kind == TypeInt }
func (t *Type) IsFloat() bool   { return t != nil && t.Kind == TypeFloat }
func (t *Type) IsPointer() bool { return t != nil && t.Kind == TypePointer }
func (t *Type) IsArray() bool   { return t != nil && t.Kind == TypeArray }
func (t *Type) IsStruct() bool  { return t != nil && t.Kind == TypeStruct }

// IsAggregate reports whether values of t live only in memory.
func (t *Type) IsAggregate() bool { return t.IsArray() || t.IsStruct() }

// ByteWidth returns the storage width of an integer type.
func (t *Type) ByteWidth() int {
	if t.Bits <= 8 {
		return 1
	}
	return (t.Bits + 7) / 8
}

// Equal compares types structurally. Named structs compare by name so that
// self-referential types terminate.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TypeVoid, TypeLabel:
		return true
	case TypeInt:
		return t.Bits == o.Bits
	case TypeFloat:
		return t.Float == o.Float
	case TypePointer:
		return t.Elem.Equal(o.Elem)
	case TypeArray:
		return t.Count == o.Count && t.Elem.Equal(o.Elem)
	case TypeStruct:
		if t.Name != "" || o.Name != "" {
			return t.Name == o.Name
		}
		return equalTypes(t.Fields, o.Fields)
	case TypeFunction:
		return t.Variadic == o.Variadic && t.Ret.Equal(o.Ret) && equalTypes(t.Params, o.Params)
	}
	return false
}

func equalTypes(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "<nil-type>"
	}
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeLabel:
		return "label"
	case TypeInt:
		return fmt.Sprintf("i%d", t.Bits)
	case TypeFloat:
		return t.Float.String()
	case TypePointer:
		return t.Elem.String() + "*"
	case TypeArray:
		return fmt.Sprintf("[%d x %s]", t.Count, t.Elem)
	case TypeStruct:
		if t.Name != "" {
			return "%" + t.Name
		}
		return t.Body()
	case TypeFunction:
		var b strings.Builder
		b.WriteString(t.Ret.String())
		b.WriteString(" (")
		for i, p := range t.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		if t.Variadic {
			if len(t.Params) > 0 {
				b.WriteString(", ")
			}
			b.WriteString("...")
		}
		b.WriteString(")")
		return b.String()
	}
	return "<bad-type>"
}

// Body renders the field list of a struct type.
func (t *Type) Body() string {
	if len(t.Fields) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{ ")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.String())
	}
	b.WriteString(" }")
	return b.String()
}
