package amd64

import (
	"fmt"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Machine is the AMD64 target.
type Machine struct {
	regs  *RegisterSet
	abi   ABI
	insts *InstructionSet
	legal *Legalizer
}

var _ target.Machine = (*Machine)(nil)

// New creates the target description.
func New() *Machine {
	m := &Machine{regs: newRegisterSet(), insts: newInstructionSet()}
	m.legal = &Legalizer{m: m}
	return m
}

func (m *Machine) Name() string                         { return "amd64" }
func (m *Machine) PointerSize() int                     { return 8 }
func (m *Machine) Registers() target.RegisterSet        { return m.regs }
func (m *Machine) ABI() target.ABI                      { return m.abi }
func (m *Machine) Instructions() target.InstructionSet  { return m.insts }
func (m *Machine) Legalizer() target.LegalizationRules  { return m.legal }
func (m *Machine) RegisterName(n int) string            { return m.regs.Name(n) }
func (m *Machine) ClassName(c mir.RegClass) string      { return m.regs.ClassName(c) }

// InstructionName renders a template for dumps, e.g. ADD_RI.
func (m *Machine) InstructionName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return fmt.Sprintf("code%d", code)
}

func (m *Machine) Scratch(float bool) []int {
	if float {
		return []int{XMM14, XMM15}
	}
	return []int{R10, R11}
}

// inst builds a target instruction. Whether it defines Ops[0] follows op.
func (m *Machine) inst(op mir.Opcode, code int, class mir.RegClass, ops ...mir.Operand) *mir.Instruction {
	i := mir.NewInstruction(op, ops...)
	i.Code = code
	i.Class = class
	return i
}

// use builds a target instruction that defines nothing.
func (m *Machine) use(op mir.Opcode, code int, class mir.RegClass, ops ...mir.Operand) *mir.Instruction {
	i := m.inst(op, code, class, ops...)
	i.Undefine()
	return i
}

func (m *Machine) freshReg(n *target.SelectionNode, t mir.Type) mir.Operand {
	reg := mir.VReg(t, n.Block.Func.NextVReg())
	reg.Class = m.regs.ClassOf(t.Bytes, t.IsFloat())
	return reg
}

// Move returns the copy of src into dst for the register file of dst.
func (m *Machine) Move(dst, src mir.Operand) *mir.Instruction {
	if dst.Type.IsFloat() {
		code := MOVSD_RR
		if dst.Type.Bytes == 4 {
			code = MOVSS_RR
		}
		return m.inst(mir.OpFMov, code, m.regs.ClassOf(dst.Type.Bytes, true), dst, src)
	}
	class := m.regs.ClassOf(dst.Type.Bytes, false)
	if src.IsImm() {
		return m.inst(mir.OpMov, MOV_RI, class, dst, src)
	}
	return m.inst(mir.OpMov, MOV_RR, class, dst, src.WithType(dst.Type))
}

// Load returns a load of dst from a memory reference.
func (m *Machine) Load(dst mir.Operand, memory []mir.Operand) *mir.Instruction {
	code := MOV_RM
	if dst.Type.IsFloat() {
		code = MOVSD_RM
		if dst.Type.Bytes == 4 {
			code = MOVSS_RM
		}
	}
	return m.inst(mir.OpLoad, code, m.regs.ClassOf(dst.Type.Bytes, dst.Type.IsFloat()),
		append([]mir.Operand{dst}, memory...)...)
}

// Store returns a store of src to a memory reference.
func (m *Machine) Store(memory []mir.Operand, src mir.Operand) *mir.Instruction {
	code := MOV_MR
	switch {
	case src.IsImm():
		code = MOV_MI
	case src.Type.IsFloat() && src.Type.Bytes == 4:
		code = MOVSS_MR
	case src.Type.IsFloat():
		code = MOVSD_MR
	}
	ops := append(append([]mir.Operand(nil), memory...), src)
	return m.inst(mir.OpStore, code, m.regs.ClassOf(src.Type.Bytes, src.Type.IsFloat()), ops...)
}

// Select legalizes and selects every node of tree. Nodes are visited parent
// first so patterns can fold their children.
func (m *Machine) Select(tree *target.SelectionTree) error {
	return tree.Walk(func(n *target.SelectionNode) error {
		if n.IsSelected() {
			return nil
		}
		changed, err := target.Legalize(m.legal, n)
		if err != nil {
			return err
		}
		if changed {
			tlog.V("legalize").Printw("legalized", "op", n.Instr.Op.String())
		}
		if err := m.selectNode(n); err != nil {
			return err
		}
		n.MarkSelected()
		return nil
	})
}

func (m *Machine) selectNode(n *target.SelectionNode) error {
	switch n.Instr.Op {
	case mir.OpAdd, mir.OpSub, mir.OpAnd, mir.OpOr, mir.OpXor:
		return m.selectALU(n)
	case mir.OpMul:
		return m.selectMul(n)
	case mir.OpSDiv, mir.OpUDiv, mir.OpSRem, mir.OpURem:
		return m.selectDivide(n)
	case mir.OpShiftL, mir.OpLShiftR, mir.OpAShiftR:
		return m.selectShift(n)
	case mir.OpFAdd, mir.OpFSub, mir.OpFMul, mir.OpFDiv:
		return m.selectFloatALU(n)
	case mir.OpCmp, mir.OpUCmp, mir.OpFCmp:
		return m.selectCompare(n)
	case mir.OpITrunc, mir.OpRegToSubreg:
		return m.selectTrunc(n)
	case mir.OpZExt, mir.OpSExt, mir.OpSubregToReg:
		return m.selectExtend(n)
	case mir.OpFExt, mir.OpFTrunc:
		return m.selectFloatResize(n)
	case mir.OpFToSI, mir.OpFToUI:
		return m.selectFloatToInt(n)
	case mir.OpSIToF, mir.OpUIToF:
		return m.selectIntToFloat(n)
	case mir.OpPtrToI, mir.OpIToPtr:
		return m.selectPointerCast(n)
	case mir.OpLoad:
		return m.selectLoad(n)
	case mir.OpStore:
		return m.selectStore(n)
	case mir.OpStackAddress, mir.OpGlobalAddress, mir.OpMemberAddress:
		return m.selectAddress(n)
	case mir.OpMov, mir.OpFMov:
		return m.selectMove(n)
	case mir.OpPush:
		n.Emit(m.use(mir.OpPush, PUSH_R, GR64, n.Instr.Use(0).WithType(mir.Integer(8))))
		return nil
	case mir.OpPop:
		n.Emit(m.inst(mir.OpPop, POP_R, GR64, n.Instr.Def().WithType(mir.Integer(8))))
		return nil
	case mir.OpCall:
		return m.selectCall(n)
	case mir.OpJump:
		n.Emit(m.use(mir.OpJump, JMP, mir.NoClass, n.Instr.Use(0)))
		return nil
	case mir.OpBranch:
		return m.selectBranch(n)
	case mir.OpRet:
		ret := m.use(mir.OpRet, RET, GR64)
		ret.ImplicitUses = n.Instr.ImplicitUses
		n.Emit(ret)
		return nil
	case mir.OpPhi:
		// Phis survive selection and are removed by phi elimination.
		n.Emit(n.Instr)
		return nil
	}
	return errors.Lowering("NO_PATTERN", "no selection pattern for "+n.Instr.Op.String(),
		map[string]interface{}{"target": m.Name(), "op": n.Instr.Op.String()})
}

var codeNames = map[int]string{
	JMP: "JMP", JE: "JE", JNE: "JNE", JG: "JG", JL: "JL", JGE: "JGE", JLE: "JLE",
	JA: "JA", JB: "JB", JAE: "JAE", JBE: "JBE", CALL: "CALL", CALL_R: "CALL_R", RET: "RET",
	PUSH_R: "PUSH_R", POP_R: "POP_R",
	MOV_RR: "MOV_RR", MOV_RI: "MOV_RI", MOV_RM: "MOV_RM", MOV_MR: "MOV_MR", MOV_MI: "MOV_MI",
	MOVSS_RR: "MOVSS_RR", MOVSS_RM: "MOVSS_RM", MOVSS_MR: "MOVSS_MR",
	MOVSD_RR: "MOVSD_RR", MOVSD_RM: "MOVSD_RM", MOVSD_MR: "MOVSD_MR",
	MOVZX_RR: "MOVZX_RR", MOVZX_RM: "MOVZX_RM", MOVSX_RR: "MOVSX_RR", MOVSX_RM: "MOVSX_RM",
	MOVSXD_RR: "MOVSXD_RR", MOVSXD_RM: "MOVSXD_RM", LEA: "LEA",
	ADD_RR: "ADD_RR", ADD_RI: "ADD_RI", ADD_RM: "ADD_RM",
	SUB_RR: "SUB_RR", SUB_RI: "SUB_RI", SUB_RM: "SUB_RM",
	AND_RR: "AND_RR", AND_RI: "AND_RI", AND_RM: "AND_RM",
	OR_RR: "OR_RR", OR_RI: "OR_RI", OR_RM: "OR_RM",
	XOR_RR: "XOR_RR", XOR_RI: "XOR_RI", XOR_RM: "XOR_RM",
	IMUL_RR: "IMUL_RR", IMUL_RM: "IMUL_RM", IMUL_RRI: "IMUL_RRI", IMUL_RMI: "IMUL_RMI",
	IDIV_R: "IDIV_R", IDIV_M: "IDIV_M", DIV_R: "DIV_R", DIV_M: "DIV_M", CDQ: "CDQ", CQO: "CQO",
	SHL_RI: "SHL_RI", SHL_RCL: "SHL_RCL", SHR_RI: "SHR_RI", SHR_RCL: "SHR_RCL",
	SAR_RI: "SAR_RI", SAR_RCL: "SAR_RCL",
	CMP_RR: "CMP_RR", CMP_RI: "CMP_RI", CMP_RM: "CMP_RM",
	UCOMISS_RR: "UCOMISS_RR", UCOMISS_RM: "UCOMISS_RM", UCOMISD_RR: "UCOMISD_RR", UCOMISD_RM: "UCOMISD_RM",
	SETE: "SETE", SETNE: "SETNE", SETG: "SETG", SETL: "SETL", SETGE: "SETGE", SETLE: "SETLE",
	SETA: "SETA", SETB: "SETB", SETAE: "SETAE", SETBE: "SETBE",
	ADDSS_RR: "ADDSS_RR", ADDSS_RM: "ADDSS_RM", SUBSS_RR: "SUBSS_RR", SUBSS_RM: "SUBSS_RM",
	MULSS_RR: "MULSS_RR", MULSS_RM: "MULSS_RM", DIVSS_RR: "DIVSS_RR", DIVSS_RM: "DIVSS_RM",
	ADDSD_RR: "ADDSD_RR", ADDSD_RM: "ADDSD_RM", SUBSD_RR: "SUBSD_RR", SUBSD_RM: "SUBSD_RM",
	MULSD_RR: "MULSD_RR", MULSD_RM: "MULSD_RM", DIVSD_RR: "DIVSD_RR", DIVSD_RM: "DIVSD_RM",
	CVTSS2SD_RR: "CVTSS2SD_RR", CVTSS2SD_RM: "CVTSS2SD_RM", CVTSD2SS_RR: "CVTSD2SS_RR", CVTSD2SS_RM: "CVTSD2SS_RM",
	CVTTSS2SI_RR: "CVTTSS2SI_RR", CVTTSS2SI_RM: "CVTTSS2SI_RM", CVTTSD2SI_RR: "CVTTSD2SI_RR", CVTTSD2SI_RM: "CVTTSD2SI_RM",
	CVTSI2SS_RR: "CVTSI2SS_RR", CVTSI2SS_RM: "CVTSI2SS_RM", CVTSI2SD_RR: "CVTSI2SD_RR", CVTSI2SD_RM: "CVTSI2SD_RM",
}
