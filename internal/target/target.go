// Package target declares the interfaces a machine description implements:
// its register file, calling convention, instruction templates, selection
// patterns and legalization rules.
package target

import (
	"github.com/orizon-lang/ancl/internal/mir"
)

// Register describes one physical register. Parent and SubRegs encode the
// aliasing tree (RAX > EAX > AX > AL/AH); Paired links registers that share a
// parent without overlapping.
type Register struct {
	Name    string
	Number  int
	Bytes   int
	Float   bool
	Parent  int
	SubRegs []int
	Paired  int
}

// RegisterSet is the register file of a machine.
type RegisterSet interface {
	Register(number int) *Register
	IsValid(number int) bool
	// Registers returns the members of class in allocation preference order.
	Registers(class mir.RegClass) []int
	// ClassOf maps a value width and kind to a register class.
	ClassOf(bytes int, float bool) mir.RegClass
	// ClassOfRegister returns the class of a physical register.
	ClassOfRegister(number int) mir.RegClass
	GPClasses() []mir.RegClass
	FPClasses() []mir.RegClass
	ClassName(class mir.RegClass) string
	// Sized returns the register aliasing reg that is bytes wide.
	Sized(reg, bytes int) int
	// Unit returns the widest register aliasing reg.
	Unit(reg int) int
	SP() int
	ARP() int
	IP() int
}

// ABI is the calling convention of a machine.
type ABI interface {
	StackAlign() int64
	RedZoneSize() int64
	MaxStructParamSize() int64
	IntArgRegisters() []int
	FloatArgRegisters() []int
	IntReturnRegisters() []int
	FloatReturnRegisters() []int
	CalleeSaved() []int
	CallerSaved() []int
	// VectorCountRegister holds the number of vector registers used by a
	// variadic call.
	VectorCountRegister() int
}

// OperandClass is the kind of one template operand.
type OperandClass int

const (
	ClassREL OperandClass = iota
	ClassGR
	ClassFR
	ClassIMM
	// ClassMEM covers four MIR operands.
	ClassMEM
)

// TargetInstruction is an instruction template.
type TargetInstruction struct {
	Code    int
	Name    string
	Classes []OperandClass
	// Destructive templates require the definition and the first use to be
	// the same register.
	Destructive bool
}

// InstructionSet is the table of templates of a machine.
type InstructionSet interface {
	Instruction(code int) *TargetInstruction
	IsDestructive(code int) bool
}

// Machine bundles a target description.
type Machine interface {
	Name() string
	PointerSize() int
	Registers() RegisterSet
	ABI() ABI
	Instructions() InstructionSet
	Legalizer() LegalizationRules
	// Select resolves every node of tree to target instructions.
	Select(tree *SelectionTree) error
	// Scratch returns the registers of class kept out of allocation for
	// spill reloads.
	Scratch(float bool) []int
}
