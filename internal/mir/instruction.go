package mir

import (
	"github.com/orizon-lang/ancl/internal/errors"
)

// Opcode is a generic machine operation. Selection keeps the opcode and records
// the chosen target instruction in Instruction.Code.
type Opcode int

const (
	OpMul Opcode = iota
	OpFMul
	OpSDiv
	OpUDiv
	OpFDiv
	OpSRem
	OpURem
	OpFRem
	OpAdd
	OpFAdd
	OpSub
	OpFSub
	OpShiftL
	OpLShiftR
	OpAShiftR
	OpAnd
	OpXor
	OpOr

	OpCmp
	OpUCmp
	OpFCmp

	OpITrunc
	OpFTrunc
	OpZExt
	OpSExt
	OpFExt
	OpFToUI
	OpFToSI
	OpUIToF
	OpSIToF
	OpPtrToI
	OpIToPtr

	OpCall
	OpJump
	OpBranch
	OpRet

	OpMov
	OpFMov
	OpLoad
	OpStore
	OpStackAddress
	OpGlobalAddress
	OpMemberAddress
	OpPush
	OpPop
	OpPhi

	// OpSubregToReg writes a narrow value into a full register, OpRegToSubreg
	// reads the low part of one.
	OpSubregToReg
	OpRegToSubreg
)

var opcodeNames = [...]string{
	OpMul: "MUL", OpFMul: "FMUL", OpSDiv: "SDIV", OpUDiv: "UDIV", OpFDiv: "FDIV",
	OpSRem: "SREM", OpURem: "UREM", OpFRem: "FREM", OpAdd: "ADD", OpFAdd: "FADD",
	OpSub: "SUB", OpFSub: "FSUB", OpShiftL: "SHL", OpLShiftR: "LSHR", OpAShiftR: "ASHR",
	OpAnd: "AND", OpXor: "XOR", OpOr: "OR",
	OpCmp: "CMP", OpUCmp: "UCMP", OpFCmp: "FCMP",
	OpITrunc: "ITRUNC", OpFTrunc: "FTRUNC", OpZExt: "ZEXT", OpSExt: "SEXT", OpFExt: "FEXT",
	OpFToUI: "FTOUI", OpFToSI: "FTOSI", OpUIToF: "UITOF", OpSIToF: "SITOF",
	OpPtrToI: "PTRTOI", OpIToPtr: "ITOPTR",
	OpCall: "CALL", OpJump: "JMP", OpBranch: "BR", OpRet: "RET",
	OpMov: "MOV", OpFMov: "FMOV", OpLoad: "LOAD", OpStore: "STORE",
	OpStackAddress: "STACKADDR", OpGlobalAddress: "GLOBALADDR", OpMemberAddress: "MEMBERADDR",
	OpPush: "PUSH", OpPop: "POP", OpPhi: "PHI",
	OpSubregToReg: "SUBREG2REG", OpRegToSubreg: "REG2SUBREG",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "UNKNOWN"
}

// IsCompare reports whether op is one of the compare opcodes.
func (op Opcode) IsCompare() bool { return op == OpCmp || op == OpUCmp || op == OpFCmp }

// IsTerminator reports whether op ends a block.
func (op Opcode) IsTerminator() bool { return op == OpJump || op == OpBranch || op == OpRet }

// CompareKind is the relation tested by a compare.
type CompareKind int

const (
	CmpEqual CompareKind = iota
	CmpNotEqual
	CmpGreater
	CmpLess
	CmpGreaterEq
	CmpLessEq
)

func (k CompareKind) String() string {
	switch k {
	case CmpEqual:
		return "EQ"
	case CmpNotEqual:
		return "NE"
	case CmpGreater:
		return "GT"
	case CmpLess:
		return "LT"
	case CmpGreaterEq:
		return "GE"
	case CmpLessEq:
		return "LE"
	}
	return "??"
}

// Swapped returns the relation that holds with the operands exchanged.
func (k CompareKind) Swapped() CompareKind {
	switch k {
	case CmpGreater:
		return CmpLess
	case CmpLess:
		return CmpGreater
	case CmpGreaterEq:
		return CmpLessEq
	case CmpLessEq:
		return CmpGreaterEq
	}
	return k
}

// Instruction is one machine instruction. If it defines a value the definition
// is Ops[0]; the remaining operands are uses.
type Instruction struct {
	Op  Opcode
	Cmp CompareKind
	Ops []Operand

	// Code is the selected target instruction, 0 before selection.
	Code int
	// Class is the register class the target instruction operates on.
	Class RegClass

	// ImplicitDefs and ImplicitUses list physical registers touched by the
	// instruction without appearing as operands.
	ImplicitDefs []int
	ImplicitUses []int

	Block *BasicBlock

	nodef bool
}

// NewInstruction creates an instruction with the given operands. Whether it
// defines Ops[0] follows from the opcode.
func NewInstruction(op Opcode, ops ...Operand) *Instruction {
	i := &Instruction{Op: op, Ops: ops}
	switch op {
	case OpRet, OpJump, OpBranch, OpStore, OpCall, OpPush:
		i.nodef = true
	}
	return i
}

// NewCompare creates a compare defining a flag-sized result.
func NewCompare(op Opcode, kind CompareKind, ops ...Operand) *Instruction {
	i := NewInstruction(op, ops...)
	i.Cmp = kind
	return i
}

// HasDef reports whether Ops[0] is a definition.
func (i *Instruction) HasDef() bool { return !i.nodef && len(i.Ops) > 0 }

// Undefine marks the instruction as defining nothing; every operand becomes
// a use. Targets use it for flag-setting compares and implicit-result ops.
func (i *Instruction) Undefine() { i.nodef = true }

// Redefine restores the definition of Ops[0].
func (i *Instruction) Redefine() { i.nodef = false }

// Def returns the defined operand, or the invalid register.
func (i *Instruction) Def() Operand {
	if !i.HasDef() {
		return NoReg()
	}
	return i.Ops[0]
}

// SetDef replaces the defined operand.
func (i *Instruction) SetDef(o Operand) {
	if i.HasDef() {
		i.Ops[0] = o
	}
}

func (i *Instruction) usesStart() int {
	if i.HasDef() {
		return 1
	}
	return 0
}

// NumUses is the number of use operands.
func (i *Instruction) NumUses() int { return len(i.Ops) - i.usesStart() }

// Use returns use n. It panics when n is out of range; UseChecked does not.
func (i *Instruction) Use(n int) Operand { return i.Ops[i.usesStart()+n] }

// UseChecked returns use n or a structural error.
func (i *Instruction) UseChecked(n int) (Operand, error) {
	if n < 0 || n >= i.NumUses() {
		return Operand{}, errors.OperandOutOfRange(n, i.NumUses(), i.Op.String())
	}
	return i.Use(n), nil
}

// SetUse replaces use n.
func (i *Instruction) SetUse(n int, o Operand) { i.Ops[i.usesStart()+n] = o }

// Uses returns the use operands. The slice aliases Ops.
func (i *Instruction) Uses() []Operand { return i.Ops[i.usesStart():] }

// AddUse appends a use operand.
func (i *Instruction) AddUse(o Operand) { i.Ops = append(i.Ops, o) }

// AddMemory appends a four operand memory reference.
func (i *Instruction) AddMemory(base Operand, scale int64, index Operand, disp int64) {
	i.Ops = append(i.Ops, base, Imm(Integer(8), scale), index, Imm(Integer(8), disp))
}

// IsTerminator reports whether the instruction ends a block.
func (i *Instruction) IsTerminator() bool { return i.Op.IsTerminator() }

// Clone returns a detached copy of i.
func (i *Instruction) Clone() *Instruction {
	c := *i
	c.Ops = append([]Operand(nil), i.Ops...)
	c.ImplicitDefs = append([]int(nil), i.ImplicitDefs...)
	c.ImplicitUses = append([]int(nil), i.ImplicitUses...)
	c.Block = nil
	return &c
}
