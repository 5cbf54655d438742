package ir

import (
	"fmt"
	"strconv"
)

// Value is anything that can appear as an instruction operand.
type Value interface {
	Type() *Type
	Name() string
	// Ref renders the value the way it appears as an operand.
	Ref() string
	isValue()
}

// IntConstant is an integer literal.
type IntConstant struct {
	typ    *Type
	Value  int64
	Signed bool
}

// ConstInt creates a signed integer constant.
func ConstInt(t *Type, v int64) *IntConstant {
	return &IntConstant{typ: t, Value: v, Signed: true}
}

// ConstUint creates an unsigned integer constant.
func ConstUint(t *Type, v uint64) *IntConstant {
	return &IntConstant{typ: t, Value: int64(v), Signed: false}
}

func (c *IntConstant) Type() *Type  { return c.typ }
func (c *IntConstant) Name() string { return "" }
func (c *IntConstant) Ref() string {
	if !c.Signed {
		return strconv.FormatUint(uint64(c.Value), 10)
	}
	return strconv.FormatInt(c.Value, 10)
}
func (*IntConstant) isValue() {}

// IsZero reports whether the constant is zero.
func (c *IntConstant) IsZero() bool { return c.Value == 0 }

// FloatConstant is a floating point literal.
type FloatConstant struct {
	typ   *Type
	Value float64
}

// ConstFloat creates a float constant of type t.
func ConstFloat(t *Type, v float64) *FloatConstant {
	return &FloatConstant{typ: t, Value: v}
}

func (c *FloatConstant) Type() *Type  { return c.typ }
func (c *FloatConstant) Name() string { return "" }
func (c *FloatConstant) Ref() string {
	s := strconv.FormatFloat(c.Value, 'g', -1, 64)
	for _, r := range s {
		if r == '.' || r == 'e' || r == 'n' || r == 'N' {
			return s
		}
	}
	return s + ".0"
}
func (*FloatConstant) isValue() {}

// IsDouble reports whether the constant has double precision.
func (c *FloatConstant) IsDouble() bool { return c.typ.Float != Float }

// IsConstant reports whether v is an integer or float literal.
func IsConstant(v Value) bool {
	switch v.(type) {
	case *IntConstant, *FloatConstant:
		return true
	}
	return false
}

// ZeroValue returns the zero constant of a scalar type.
func ZeroValue(t *Type) Value {
	if t.IsFloat() {
		return ConstFloat(t, 0)
	}
	return ConstInt(t, 0)
}

// Parameter is a formal function parameter.
type Parameter struct {
	typ      *Type
	name     string
	Index    int
	Implicit bool
	Parent   *Function
}

func (p *Parameter) Type() *Type  { return p.typ }
func (p *Parameter) Name() string { return p.name }
func (p *Parameter) Ref() string  { return "%" + p.name }
func (*Parameter) isValue()       {}

func (p *Parameter) String() string {
	return fmt.Sprintf("%s %%%s", p.typ, p.name)
}

// Placeholder stands for a value referenced before its definition while a
// function is being read back from text. Readers replace every placeholder
// before handing the function out.
type Placeholder struct {
	typ  *Type
	name string
}

// NewPlaceholder creates a forward reference to the named value.
func NewPlaceholder(t *Type, name string) *Placeholder {
	return &Placeholder{typ: t, name: name}
}

func (p *Placeholder) Type() *Type  { return p.typ }
func (p *Placeholder) Name() string { return p.name }
func (p *Placeholder) Ref() string  { return "%" + p.name }
func (*Placeholder) isValue()       {}
