// Package mir defines the machine-level IR produced by lowering. It is still
// target generic: instructions carry generic opcodes until selection resolves
// them to a target code, and registers are virtual until allocation.
package mir

import (
	"fmt"
	"strconv"
)

// TypeKind classifies the value held by an operand.
type TypeKind int

const (
	TypeNone TypeKind = iota
	TypeInteger
	TypeFloat
	TypePointer
)

// Type is the register-level type of an operand: a kind and a byte width.
type Type struct {
	Kind  TypeKind
	Bytes int
}

// Integer, Float and Pointer build operand types.
func Integer(bytes int) Type { return Type{Kind: TypeInteger, Bytes: bytes} }
func Float(bytes int) Type   { return Type{Kind: TypeFloat, Bytes: bytes} }
func Pointer() Type          { return Type{Kind: TypePointer, Bytes: 8} }

func (t Type) IsFloat() bool { return t.Kind == TypeFloat }

// Sized returns t with a different byte width.
func (t Type) Sized(bytes int) Type {
	t.Bytes = bytes
	if t.Kind == TypePointer && bytes != 8 {
		t.Kind = TypeInteger
	}
	return t
}

func (t Type) String() string {
	switch t.Kind {
	case TypeInteger:
		return "i" + strconv.Itoa(t.Bytes*8)
	case TypeFloat:
		return "f" + strconv.Itoa(t.Bytes*8)
	case TypePointer:
		return "ptr"
	}
	return "none"
}

// RegClass is a target register class. NoClass means unassigned; targets
// number their classes from 1.
type RegClass int

const NoClass RegClass = 0

// OperandKind tags the Operand variant.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandImmInt
	OperandImmFloat
	OperandRegister
	OperandGlobal
	OperandBlock
	OperandFunction
	OperandStackIndex
)

// Operand is a tagged variant over everything an instruction can refer to.
// A memory reference is written as four consecutive operands: base register
// (or stack index, or global symbol), scale immediate, index register (invalid
// when absent) and displacement immediate.
type Operand struct {
	Kind OperandKind
	Type Type

	Imm  int64
	FImm float64

	// Reg is a virtual register id when Virtual is set and a target register
	// number otherwise. Zero is the invalid register.
	Reg     int
	Virtual bool
	Class   RegClass

	Symbol string
	Block  *BasicBlock
	// Index is the slot key of a stack index operand.
	Index int
}

// Imm builds an integer immediate.
func Imm(t Type, v int64) Operand { return Operand{Kind: OperandImmInt, Type: t, Imm: v} }

// FImm builds a float immediate. Such operands must be turned into constant
// pool loads before emission.
func FImm(t Type, v float64) Operand { return Operand{Kind: OperandImmFloat, Type: t, FImm: v} }

// VReg builds a virtual register operand.
func VReg(t Type, id int) Operand {
	return Operand{Kind: OperandRegister, Type: t, Reg: id, Virtual: true}
}

// PReg builds a physical register operand.
func PReg(t Type, reg int, class RegClass) Operand {
	return Operand{Kind: OperandRegister, Type: t, Reg: reg, Class: class}
}

// NoReg is the invalid register, used for an absent index in a memory
// reference and for undefined phi inputs.
func NoReg() Operand { return Operand{Kind: OperandRegister} }

// Global builds a reference to a data symbol.
func Global(name string) Operand {
	return Operand{Kind: OperandGlobal, Type: Pointer(), Symbol: name}
}

// Func builds a reference to a function symbol.
func Func(name string) Operand {
	return Operand{Kind: OperandFunction, Type: Pointer(), Symbol: name}
}

// BlockRef builds a branch target.
func BlockRef(b *BasicBlock) Operand { return Operand{Kind: OperandBlock, Block: b} }

// StackIndex builds a symbolic reference to a LocalDataArea slot.
func StackIndex(key int) Operand {
	return Operand{Kind: OperandStackIndex, Type: Pointer(), Index: key}
}

func (o Operand) IsImm() bool      { return o.Kind == OperandImmInt }
func (o Operand) IsFImm() bool     { return o.Kind == OperandImmFloat }
func (o Operand) IsRegister() bool { return o.Kind == OperandRegister && o.Reg != 0 }
func (o Operand) IsVReg() bool     { return o.IsRegister() && o.Virtual }
func (o Operand) IsPReg() bool     { return o.IsRegister() && !o.Virtual }

// IsInvalidReg reports whether o is the invalid register.
func (o Operand) IsInvalidReg() bool { return o.Kind == OperandRegister && o.Reg == 0 }

// SameRegister reports whether both operands name the same register,
// ignoring width.
func (o Operand) SameRegister(p Operand) bool {
	return o.IsRegister() && p.IsRegister() && o.Reg == p.Reg && o.Virtual == p.Virtual
}

// WithType returns o viewed at another type.
func (o Operand) WithType(t Type) Operand {
	o.Type = t
	return o
}

// RegisterNamer renders physical registers and register classes in dumps.
type RegisterNamer interface {
	RegisterName(reg int) string
	ClassName(class RegClass) string
}

// Format renders o, using n for physical registers when it is not nil.
func (o Operand) Format(n RegisterNamer) string {
	switch o.Kind {
	case OperandImmInt:
		return fmt.Sprintf("%s %d", o.Type, o.Imm)
	case OperandImmFloat:
		return fmt.Sprintf("%s %s", o.Type, strconv.FormatFloat(o.FImm, 'g', -1, 64))
	case OperandRegister:
		if o.Reg == 0 {
			return "noreg"
		}
		var s string
		if o.Virtual {
			s = fmt.Sprintf("%s %%v%d", o.Type, o.Reg)
		} else if n != nil {
			s = fmt.Sprintf("%s $%s", o.Type, n.RegisterName(o.Reg))
		} else {
			s = fmt.Sprintf("%s $r%d", o.Type, o.Reg)
		}
		if o.Class != NoClass {
			if n != nil {
				s += ":" + n.ClassName(o.Class)
			} else {
				s += ":" + strconv.Itoa(int(o.Class))
			}
		}
		return s
	case OperandGlobal, OperandFunction:
		return "@" + o.Symbol
	case OperandBlock:
		if o.Block == nil {
			return "label <nil>"
		}
		return "label %" + o.Block.Name
	case OperandStackIndex:
		return fmt.Sprintf("stack.%d", o.Index)
	}
	return "none"
}

func (o Operand) String() string { return o.Format(nil) }
