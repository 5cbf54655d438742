package amd64

import (
	"github.com/orizon-lang/ancl/internal/target"
)

// Target instruction codes. The suffix names the operand forms: R register,
// M memory, I immediate, CL the count register.
const (
	invalidCode = iota

	JMP
	JE
	JNE
	JG
	JL
	JGE
	JLE
	JA
	JB
	JAE
	JBE
	CALL
	CALL_R
	RET

	PUSH_R
	POP_R

	MOV_RR
	MOV_RI
	MOV_RM
	MOV_MR
	MOV_MI
	MOVSS_RR
	MOVSS_RM
	MOVSS_MR
	MOVSD_RR
	MOVSD_RM
	MOVSD_MR
	MOVZX_RR
	MOVZX_RM
	MOVSX_RR
	MOVSX_RM
	MOVSXD_RR
	MOVSXD_RM
	LEA

	ADD_RR
	ADD_RI
	ADD_RM
	SUB_RR
	SUB_RI
	SUB_RM
	AND_RR
	AND_RI
	AND_RM
	OR_RR
	OR_RI
	OR_RM
	XOR_RR
	XOR_RI
	XOR_RM
	IMUL_RR
	IMUL_RM
	IMUL_RRI
	IMUL_RMI
	IDIV_R
	IDIV_M
	DIV_R
	DIV_M
	CDQ
	CQO
	SHL_RI
	SHL_RCL
	SHR_RI
	SHR_RCL
	SAR_RI
	SAR_RCL

	CMP_RR
	CMP_RI
	CMP_RM
	UCOMISS_RR
	UCOMISS_RM
	UCOMISD_RR
	UCOMISD_RM
	SETE
	SETNE
	SETG
	SETL
	SETGE
	SETLE
	SETA
	SETB
	SETAE
	SETBE

	ADDSS_RR
	ADDSS_RM
	SUBSS_RR
	SUBSS_RM
	MULSS_RR
	MULSS_RM
	DIVSS_RR
	DIVSS_RM
	ADDSD_RR
	ADDSD_RM
	SUBSD_RR
	SUBSD_RM
	MULSD_RR
	MULSD_RM
	DIVSD_RR
	DIVSD_RM

	CVTSS2SD_RR
	CVTSS2SD_RM
	CVTSD2SS_RR
	CVTSD2SS_RM
	CVTTSS2SI_RR
	CVTTSS2SI_RM
	CVTTSD2SI_RR
	CVTTSD2SI_RM
	CVTSI2SS_RR
	CVTSI2SS_RM
	CVTSI2SD_RR
	CVTSI2SD_RM

	numCodes
)

const (
	rel = target.ClassREL
	gr  = target.ClassGR
	fr  = target.ClassFR
	imm = target.ClassIMM
	mem = target.ClassMEM
)

// InstructionSet is the AMD64 template table.
type InstructionSet struct {
	table [numCodes]target.TargetInstruction
}

var _ target.InstructionSet = (*InstructionSet)(nil)

func newInstructionSet() *InstructionSet {
	s := &InstructionSet{}
	def := func(code int, name string, destructive bool, classes ...target.OperandClass) {
		s.table[code] = target.TargetInstruction{Code: code, Name: name, Classes: classes, Destructive: destructive}
	}

	for code, name := range map[int]string{
		JMP: "jmp", JE: "je", JNE: "jne", JG: "jg", JL: "jl", JGE: "jge", JLE: "jle",
		JA: "ja", JB: "jb", JAE: "jae", JBE: "jbe", CALL: "call",
	} {
		def(code, name, false, rel)
	}
	def(CALL_R, "call", false, gr)
	def(RET, "ret", false)
	def(PUSH_R, "push", false, gr)
	def(POP_R, "pop", false, gr)

	def(MOV_RR, "mov", false, gr, gr)
	def(MOV_RI, "mov", false, gr, imm)
	def(MOV_RM, "mov", false, gr, mem)
	def(MOV_MR, "mov", false, mem, gr)
	def(MOV_MI, "mov", false, mem, imm)
	def(MOVSS_RR, "movss", false, fr, fr)
	def(MOVSS_RM, "movss", false, fr, mem)
	def(MOVSS_MR, "movss", false, mem, fr)
	def(MOVSD_RR, "movsd", false, fr, fr)
	def(MOVSD_RM, "movsd", false, fr, mem)
	def(MOVSD_MR, "movsd", false, mem, fr)
	def(MOVZX_RR, "movzx", false, gr, gr)
	def(MOVZX_RM, "movzx", false, gr, mem)
	def(MOVSX_RR, "movsx", false, gr, gr)
	def(MOVSX_RM, "movsx", false, gr, mem)
	def(MOVSXD_RR, "movsxd", false, gr, gr)
	def(MOVSXD_RM, "movsxd", false, gr, mem)
	def(LEA, "lea", false, gr, mem)

	for _, op := range []struct {
		name       string
		rr, ri, rm int
	}{
		{"add", ADD_RR, ADD_RI, ADD_RM},
		{"sub", SUB_RR, SUB_RI, SUB_RM},
		{"and", AND_RR, AND_RI, AND_RM},
		{"or", OR_RR, OR_RI, OR_RM},
		{"xor", XOR_RR, XOR_RI, XOR_RM},
	} {
		def(op.rr, op.name, true, gr, gr, gr)
		def(op.ri, op.name, true, gr, gr, imm)
		def(op.rm, op.name, true, gr, gr, mem)
	}
	def(IMUL_RR, "imul", true, gr, gr, gr)
	def(IMUL_RM, "imul", true, gr, gr, mem)
	def(IMUL_RRI, "imul", false, gr, gr, imm)
	def(IMUL_RMI, "imul", false, gr, mem, imm)
	def(IDIV_R, "idiv", false, gr)
	def(IDIV_M, "idiv", false, mem)
	def(DIV_R, "div", false, gr)
	def(DIV_M, "div", false, mem)
	def(CDQ, "cdq", false)
	def(CQO, "cqo", false)
	for _, op := range []struct {
		name   string
		ri, cl int
	}{{"shl", SHL_RI, SHL_RCL}, {"shr", SHR_RI, SHR_RCL}, {"sar", SAR_RI, SAR_RCL}} {
		def(op.ri, op.name, true, gr, gr, imm)
		def(op.cl, op.name, true, gr, gr, gr)
	}

	def(CMP_RR, "cmp", false, gr, gr)
	def(CMP_RI, "cmp", false, gr, imm)
	def(CMP_RM, "cmp", false, gr, mem)
	def(UCOMISS_RR, "ucomiss", false, fr, fr)
	def(UCOMISS_RM, "ucomiss", false, fr, mem)
	def(UCOMISD_RR, "ucomisd", false, fr, fr)
	def(UCOMISD_RM, "ucomisd", false, fr, mem)
	for code, name := range map[int]string{
		SETE: "sete", SETNE: "setne", SETG: "setg", SETL: "setl", SETGE: "setge", SETLE: "setle",
		SETA: "seta", SETB: "setb", SETAE: "setae", SETBE: "setbe",
	} {
		def(code, name, false, gr)
	}

	for _, op := range []struct {
		name   string
		rr, rm int
	}{
		{"addss", ADDSS_RR, ADDSS_RM}, {"subss", SUBSS_RR, SUBSS_RM},
		{"mulss", MULSS_RR, MULSS_RM}, {"divss", DIVSS_RR, DIVSS_RM},
		{"addsd", ADDSD_RR, ADDSD_RM}, {"subsd", SUBSD_RR, SUBSD_RM},
		{"mulsd", MULSD_RR, MULSD_RM}, {"divsd", DIVSD_RR, DIVSD_RM},
	} {
		def(op.rr, op.name, true, fr, fr, fr)
		def(op.rm, op.name, true, fr, fr, mem)
	}

	def(CVTSS2SD_RR, "cvtss2sd", false, fr, fr)
	def(CVTSS2SD_RM, "cvtss2sd", false, fr, mem)
	def(CVTSD2SS_RR, "cvtsd2ss", false, fr, fr)
	def(CVTSD2SS_RM, "cvtsd2ss", false, fr, mem)
	def(CVTTSS2SI_RR, "cvttss2si", false, gr, fr)
	def(CVTTSS2SI_RM, "cvttss2si", false, gr, mem)
	def(CVTTSD2SI_RR, "cvttsd2si", false, gr, fr)
	def(CVTTSD2SI_RM, "cvttsd2si", false, gr, mem)
	def(CVTSI2SS_RR, "cvtsi2ss", false, fr, gr)
	def(CVTSI2SS_RM, "cvtsi2ss", false, fr, mem)
	def(CVTSI2SD_RR, "cvtsi2sd", false, fr, gr)
	def(CVTSI2SD_RM, "cvtsi2sd", false, fr, mem)
	return s
}

func (s *InstructionSet) Instruction(code int) *target.TargetInstruction {
	if code <= invalidCode || code >= numCodes {
		return nil
	}
	return &s.table[code]
}

func (s *InstructionSet) IsDestructive(code int) bool {
	ti := s.Instruction(code)
	return ti != nil && ti.Destructive
}
