package amd64

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

func memory(base mir.Operand, scale int64, index mir.Operand, disp int64) []mir.Operand {
	return []mir.Operand{base, mir.Imm(mir.Integer(8), scale), index, mir.Imm(mir.Integer(8), disp)}
}

// mergeAddress folds an address producing child into a memory reference.
// It reports false when child does not produce an address that fits one
// addressing mode.
func (m *Machine) mergeAddress(child *target.SelectionNode) ([]mir.Operand, bool) {
	if child == nil || child.IsSelected() {
		return nil, false
	}
	i := child.Instr
	switch i.Op {
	case mir.OpStackAddress:
		child.Fold()
		return memory(i.Use(0), 1, mir.NoReg(), 0), true
	case mir.OpGlobalAddress:
		child.Fold()
		return memory(i.Use(0), 1, mir.NoReg(), 0), true
	case mir.OpMemberAddress:
		mem := m.memberMemory(child)
		child.Fold()
		return mem, true
	}
	return nil, false
}

// memberMemory builds the memory reference of a member address node, folding
// its base producer when both fit one addressing mode. A RIP-relative base
// takes no index register, and only one index register fits.
func (m *Machine) memberMemory(n *target.SelectionNode) []mir.Operand {
	i := n.Instr
	base, scale, index, disp := i.Use(0), i.Use(1).Imm, i.Use(2), i.Use(3).Imm
	inner, ok := m.peekAddress(n.Child(0))
	if !ok {
		return memory(base, scale, index, disp)
	}
	symbolic := inner[0].Kind == mir.OperandGlobal || inner[0].Kind == mir.OperandFunction
	if index.IsRegister() && (inner[2].IsRegister() || symbolic) {
		return memory(base, scale, index, disp)
	}
	inner, _ = m.mergeAddress(n.Child(0))
	if !index.IsRegister() {
		index, scale = inner[2], inner[1].Imm
	}
	return memory(inner[0], scale, index, disp+inner[3].Imm)
}

// peekAddress reports what mergeAddress would produce without folding.
func (m *Machine) peekAddress(child *target.SelectionNode) ([]mir.Operand, bool) {
	if child == nil || child.IsSelected() {
		return nil, false
	}
	i := child.Instr
	switch i.Op {
	case mir.OpStackAddress, mir.OpGlobalAddress:
		return memory(i.Use(0), 1, mir.NoReg(), 0), true
	case mir.OpMemberAddress:
		return memory(i.Use(0), i.Use(1).Imm, i.Use(2), i.Use(3).Imm), true
	}
	return nil, false
}

// address returns the memory reference for use k of n, which holds a
// pointer. An address producing child is folded into it.
func (m *Machine) address(n *target.SelectionNode, k int) []mir.Operand {
	if mem, ok := m.mergeAddress(n.Child(k)); ok {
		return mem
	}
	return memory(n.Instr.Use(k), 1, mir.NoReg(), 0)
}

// loadOperand folds a load child of use k into a memory reference.
func (m *Machine) loadOperand(n *target.SelectionNode, k int) ([]mir.Operand, bool) {
	child := n.Child(k)
	if child == nil || child.IsSelected() || child.Instr.Op != mir.OpLoad {
		return nil, false
	}
	mem := m.loadMemory(child)
	child.Fold()
	return mem, true
}

// loadMemory returns the memory reference read by a load node.
func (m *Machine) loadMemory(n *target.SelectionNode) []mir.Operand {
	if n.Instr.NumUses() == 4 {
		return append([]mir.Operand(nil), n.Instr.Uses()...)
	}
	return m.address(n, 0)
}

func (m *Machine) classOf(o mir.Operand) mir.RegClass {
	return m.regs.ClassOf(o.Type.Bytes, o.Type.IsFloat())
}

type aluCodes struct{ rr, ri, rm int }

var aluTable = map[mir.Opcode]aluCodes{
	mir.OpAdd: {ADD_RR, ADD_RI, ADD_RM},
	mir.OpSub: {SUB_RR, SUB_RI, SUB_RM},
	mir.OpAnd: {AND_RR, AND_RI, AND_RM},
	mir.OpOr:  {OR_RR, OR_RI, OR_RM},
	mir.OpXor: {XOR_RR, XOR_RI, XOR_RM},
}

func (m *Machine) selectALU(n *target.SelectionNode) error {
	i := n.Instr
	codes := aluTable[i.Op]
	def, a, b := i.Def(), i.Use(0), i.Use(1)
	class := m.classOf(def)
	switch {
	case b.IsImm():
		n.Emit(m.inst(i.Op, codes.ri, class, def, a, b))
	default:
		if mem, ok := m.loadOperand(n, 1); ok {
			n.Emit(m.inst(i.Op, codes.rm, class, append([]mir.Operand{def, a}, mem...)...))
			return nil
		}
		n.Emit(m.inst(i.Op, codes.rr, class, def, a, b))
	}
	return nil
}

func (m *Machine) selectMul(n *target.SelectionNode) error {
	i := n.Instr
	def, a, b := i.Def(), i.Use(0), i.Use(1)
	if def.Type.Bytes == 1 {
		// There is no two operand byte multiply; the low byte of a 32-bit
		// product is the same.
		w := mir.Integer(4)
		def, a = def.WithType(w), a.WithType(w)
		if !b.IsImm() {
			b = b.WithType(w)
		}
		if b.IsImm() {
			n.Emit(m.inst(i.Op, IMUL_RRI, GR32, def, a, b))
		} else {
			n.Emit(m.inst(i.Op, IMUL_RR, GR32, def, a, b))
		}
		return nil
	}
	class := m.classOf(def)
	if b.IsImm() {
		if mem, ok := m.loadOperand(n, 0); ok {
			n.Emit(m.inst(i.Op, IMUL_RMI, class, append(append([]mir.Operand{def}, mem...), b)...))
			return nil
		}
		n.Emit(m.inst(i.Op, IMUL_RRI, class, def, a, b))
		return nil
	}
	if mem, ok := m.loadOperand(n, 1); ok {
		n.Emit(m.inst(i.Op, IMUL_RM, class, append([]mir.Operand{def, a}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, IMUL_RR, class, def, a, b))
	return nil
}

// selectDivide expects the legalized form with the divisor as only use.
func (m *Machine) selectDivide(n *target.SelectionNode) error {
	i := n.Instr
	if i.HasDef() {
		return errors.Structural("UNLEGALIZED_DIVIDE", "division reached selection without legalization", nil)
	}
	signed := i.Op == mir.OpSDiv || i.Op == mir.OpSRem
	reg, memCode := DIV_R, DIV_M
	if signed {
		reg, memCode = IDIV_R, IDIV_M
	}
	divisor := i.Use(0)
	class := m.classOf(divisor)
	var div *mir.Instruction
	if mem, ok := m.loadOperand(n, 0); ok {
		div = m.use(i.Op, memCode, class, mem...)
	} else {
		div = m.use(i.Op, reg, class, divisor)
	}
	div.ImplicitDefs = i.ImplicitDefs
	div.ImplicitUses = i.ImplicitUses
	n.Emit(div)
	return nil
}

func (m *Machine) selectShift(n *target.SelectionNode) error {
	i := n.Instr
	def, a, count := i.Def(), i.Use(0), i.Use(1)
	var ri, cl int
	switch i.Op {
	case mir.OpShiftL:
		ri, cl = SHL_RI, SHL_RCL
	case mir.OpLShiftR:
		ri, cl = SHR_RI, SHR_RCL
	default:
		ri, cl = SAR_RI, SAR_RCL
	}
	class := m.classOf(def)
	if count.IsImm() {
		n.Emit(m.inst(i.Op, ri, class, def, a, count.WithType(mir.Integer(1))))
		return nil
	}
	if !count.IsPReg() || m.regs.Unit(count.Reg) != RCX {
		return errors.Structural("UNLEGALIZED_SHIFT", "shift count must be in CL", nil)
	}
	n.Emit(m.inst(i.Op, cl, class, def, a, count))
	return nil
}

func (m *Machine) selectFloatALU(n *target.SelectionNode) error {
	i := n.Instr
	def, a, b := i.Def(), i.Use(0), i.Use(1)
	single := def.Type.Bytes == 4
	var rr, rm int
	switch i.Op {
	case mir.OpFAdd:
		rr, rm = ADDSD_RR, ADDSD_RM
		if single {
			rr, rm = ADDSS_RR, ADDSS_RM
		}
	case mir.OpFSub:
		rr, rm = SUBSD_RR, SUBSD_RM
		if single {
			rr, rm = SUBSS_RR, SUBSS_RM
		}
	case mir.OpFMul:
		rr, rm = MULSD_RR, MULSD_RM
		if single {
			rr, rm = MULSS_RR, MULSS_RM
		}
	default:
		rr, rm = DIVSD_RR, DIVSD_RM
		if single {
			rr, rm = DIVSS_RR, DIVSS_RM
		}
	}
	if a.IsFImm() || b.IsFImm() {
		return errors.Structural("FLOAT_IMMEDIATE", "float immediates must be loaded from the constant pool", nil)
	}
	class := m.classOf(def)
	if mem, ok := m.loadOperand(n, 1); ok {
		n.Emit(m.inst(i.Op, rm, class, append([]mir.Operand{def, a}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, rr, class, def, a, b))
	return nil
}

var (
	signedJumps   = map[mir.CompareKind]int{mir.CmpEqual: JE, mir.CmpNotEqual: JNE, mir.CmpGreater: JG, mir.CmpLess: JL, mir.CmpGreaterEq: JGE, mir.CmpLessEq: JLE}
	unsignedJumps = map[mir.CompareKind]int{mir.CmpEqual: JE, mir.CmpNotEqual: JNE, mir.CmpGreater: JA, mir.CmpLess: JB, mir.CmpGreaterEq: JAE, mir.CmpLessEq: JBE}
	signedSets    = map[mir.CompareKind]int{mir.CmpEqual: SETE, mir.CmpNotEqual: SETNE, mir.CmpGreater: SETG, mir.CmpLess: SETL, mir.CmpGreaterEq: SETGE, mir.CmpLessEq: SETLE}
	unsignedSets  = map[mir.CompareKind]int{mir.CmpEqual: SETE, mir.CmpNotEqual: SETNE, mir.CmpGreater: SETA, mir.CmpLess: SETB, mir.CmpGreaterEq: SETAE, mir.CmpLessEq: SETBE}
)

// compare selects the flag setting part of a compare node.
func (m *Machine) compare(n *target.SelectionNode) (*mir.Instruction, error) {
	i := n.Instr
	a, b := i.Use(0), i.Use(1)
	if i.Op == mir.OpFCmp {
		if a.IsFImm() || b.IsFImm() {
			return nil, errors.Structural("FLOAT_IMMEDIATE", "float immediates must be loaded from the constant pool", nil)
		}
		rr, rm := UCOMISD_RR, UCOMISD_RM
		if a.Type.Bytes == 4 {
			rr, rm = UCOMISS_RR, UCOMISS_RM
		}
		if mem, ok := m.loadOperand(n, 1); ok {
			return m.use(i.Op, rm, m.classOf(a), append([]mir.Operand{a}, mem...)...), nil
		}
		return m.use(i.Op, rr, m.classOf(a), a, b), nil
	}
	class := m.classOf(a)
	if b.IsImm() {
		return m.use(i.Op, CMP_RI, class, a, b), nil
	}
	if mem, ok := m.loadOperand(n, 1); ok {
		return m.use(i.Op, CMP_RM, class, append([]mir.Operand{a}, mem...)...), nil
	}
	return m.use(i.Op, CMP_RR, class, a, b), nil
}

func (m *Machine) selectCompare(n *target.SelectionNode) error {
	cmp, err := m.compare(n)
	if err != nil {
		return err
	}
	sets := signedSets
	if n.Instr.Op != mir.OpCmp {
		sets = unsignedSets
	}
	def := n.Instr.Def().WithType(mir.Integer(1))
	n.Emit(cmp, m.inst(n.Instr.Op, sets[n.Instr.Cmp], mir.NoClass, def))
	return nil
}

// selectBranch fuses a compare child into the conditional jump.
func (m *Machine) selectBranch(n *target.SelectionNode) error {
	i := n.Instr
	cond, ifTrue, ifFalse := i.Use(0), i.Use(1), i.Use(2)
	if child := n.Child(0); child != nil && !child.IsSelected() && child.Instr.Op.IsCompare() {
		if _, err := target.Legalize(m.legal, child); err != nil {
			return err
		}
		cmp, err := m.compare(child)
		if err != nil {
			return err
		}
		n.EmitPrologue(child.Prologue...)
		child.Prologue = nil
		child.Fold()
		jumps := signedJumps
		if child.Instr.Op != mir.OpCmp {
			jumps = unsignedJumps
		}
		n.Emit(cmp,
			m.use(mir.OpBranch, jumps[child.Instr.Cmp], mir.NoClass, ifTrue),
			m.use(mir.OpJump, JMP, mir.NoClass, ifFalse))
		return nil
	}
	if cond.IsImm() {
		dest := ifFalse
		if cond.Imm != 0 {
			dest = ifTrue
		}
		n.Emit(m.use(mir.OpJump, JMP, mir.NoClass, dest))
		return nil
	}
	n.Emit(m.use(mir.OpCmp, CMP_RI, m.classOf(cond), cond, mir.Imm(cond.Type, 0)),
		m.use(mir.OpBranch, JNE, mir.NoClass, ifTrue),
		m.use(mir.OpJump, JMP, mir.NoClass, ifFalse))
	return nil
}

func (m *Machine) selectTrunc(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	if src.IsImm() {
		n.Emit(m.inst(mir.OpMov, MOV_RI, m.classOf(def), def, truncImm(src, def.Type.Bytes)))
		return nil
	}
	n.Emit(m.inst(mir.OpRegToSubreg, MOV_RR, m.classOf(def), def, src.WithType(def.Type)))
	return nil
}

func truncImm(o mir.Operand, bytes int) mir.Operand {
	v := o.Imm
	switch bytes {
	case 1:
		v = int64(int8(v))
	case 2:
		v = int64(int16(v))
	case 4:
		v = int64(int32(v))
	}
	return mir.Imm(mir.Integer(bytes), v)
}

func zextImm(o mir.Operand) int64 {
	switch o.Type.Bytes {
	case 1:
		return int64(uint8(o.Imm))
	case 2:
		return int64(uint16(o.Imm))
	case 4:
		return int64(uint32(o.Imm))
	}
	return o.Imm
}

func (m *Machine) selectExtend(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	if src.IsImm() {
		v := truncImm(src, src.Type.Bytes).Imm
		if i.Op != mir.OpSExt {
			v = zextImm(src)
		}
		n.Emit(m.inst(mir.OpMov, MOV_RI, m.classOf(def), def, mir.Imm(def.Type, v)))
		return nil
	}
	if i.Op == mir.OpSubregToReg || (i.Op == mir.OpZExt && src.Type.Bytes == 4) {
		narrow := def.WithType(mir.Integer(4))
		n.Emit(m.inst(mir.OpSubregToReg, MOV_RR, GR32, narrow, src.WithType(mir.Integer(4))))
		return nil
	}
	if src.Type.Bytes >= def.Type.Bytes {
		return errors.Structural("BAD_EXTENSION", "extension does not widen its operand",
			map[string]interface{}{"from": src.Type.String(), "to": def.Type.String()})
	}
	rr, rm := MOVZX_RR, MOVZX_RM
	if i.Op == mir.OpSExt {
		rr, rm = MOVSX_RR, MOVSX_RM
		if src.Type.Bytes == 4 {
			rr, rm = MOVSXD_RR, MOVSXD_RM
		}
	}
	// Extensions carry the class of their source operand.
	class := m.classOf(src)
	if mem, ok := m.loadOperand(n, 0); ok {
		n.Emit(m.inst(i.Op, rm, class, append([]mir.Operand{def}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, rr, class, def, src))
	return nil
}

func (m *Machine) selectFloatResize(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	rr, rm := CVTSS2SD_RR, CVTSS2SD_RM
	if i.Op == mir.OpFTrunc {
		rr, rm = CVTSD2SS_RR, CVTSD2SS_RM
	}
	class := m.classOf(src)
	if mem, ok := m.loadOperand(n, 0); ok {
		n.Emit(m.inst(i.Op, rm, class, append([]mir.Operand{def}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, rr, class, def, src))
	return nil
}

// selectFloatToInt also serves unsigned results; values above the signed
// range are not handled.
func (m *Machine) selectFloatToInt(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	if def.Type.Bytes < 4 {
		def = def.WithType(mir.Integer(4))
	}
	rr, rm := CVTTSD2SI_RR, CVTTSD2SI_RM
	if src.Type.Bytes == 4 {
		rr, rm = CVTTSS2SI_RR, CVTTSS2SI_RM
	}
	class := m.classOf(src)
	if mem, ok := m.loadOperand(n, 0); ok {
		n.Emit(m.inst(i.Op, rm, class, append([]mir.Operand{def}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, rr, class, def, src))
	return nil
}

func (m *Machine) selectIntToFloat(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	if src.Type.Bytes != 4 && src.Type.Bytes != 8 {
		return errors.Structural("NARROW_CONVERSION", "integer source of a float conversion must be 32 or 64 bits",
			map[string]interface{}{"bytes": src.Type.Bytes})
	}
	if src.IsImm() {
		reg := m.freshReg(n, src.Type)
		n.EmitPrologue(m.inst(mir.OpMov, MOV_RI, reg.Class, reg, src))
		src = reg
	}
	rr, rm := CVTSI2SD_RR, CVTSI2SD_RM
	if def.Type.Bytes == 4 {
		rr, rm = CVTSI2SS_RR, CVTSI2SS_RM
	}
	class := m.classOf(src)
	if mem, ok := m.loadOperand(n, 0); ok {
		n.Emit(m.inst(i.Op, rm, class, append([]mir.Operand{def}, mem...)...))
		return nil
	}
	n.Emit(m.inst(i.Op, rr, class, def, src))
	return nil
}

func (m *Machine) selectPointerCast(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	switch {
	case src.IsImm():
		n.Emit(m.inst(mir.OpMov, MOV_RI, m.classOf(def), def, mir.Imm(def.Type, src.Imm)))
	case src.Type.Bytes > def.Type.Bytes:
		n.Emit(m.inst(mir.OpRegToSubreg, MOV_RR, m.classOf(def), def, src.WithType(def.Type)))
	case src.Type.Bytes == 4:
		n.Emit(m.inst(mir.OpSubregToReg, MOV_RR, GR32, def.WithType(mir.Integer(4)), src))
	case src.Type.Bytes < def.Type.Bytes:
		n.Emit(m.inst(mir.OpZExt, MOVZX_RR, m.classOf(src), def, src))
	default:
		n.Emit(m.inst(mir.OpMov, MOV_RR, m.classOf(def), def, src.WithType(def.Type)))
	}
	return nil
}

func (m *Machine) selectLoad(n *target.SelectionNode) error {
	n.Emit(m.Load(n.Instr.Def(), m.loadMemory(n)))
	return nil
}

func (m *Machine) selectStore(n *target.SelectionNode) error {
	i := n.Instr
	var mem []mir.Operand
	var val mir.Operand
	if i.NumUses() == 5 {
		mem = append([]mir.Operand(nil), i.Uses()[:4]...)
		val = i.Use(4)
	} else {
		mem = m.address(n, 0)
		val = i.Use(1)
	}
	switch {
	case val.IsFImm():
		return errors.Structural("FLOAT_IMMEDIATE", "float immediates must be loaded from the constant pool", nil)
	case val.IsImm() && !fitsImm32(val.Imm):
		reg := m.freshReg(n, val.Type)
		n.EmitPrologue(m.inst(mir.OpMov, MOV_RI, reg.Class, reg, val))
		val = reg
	}
	n.Emit(m.Store(mem, val))
	return nil
}

func (m *Machine) selectAddress(n *target.SelectionNode) error {
	i := n.Instr
	mem := memory(i.Use(0), 1, mir.NoReg(), 0)
	if i.Op == mir.OpMemberAddress {
		mem = m.memberMemory(n)
	}
	n.Emit(m.inst(i.Op, LEA, GR64, append([]mir.Operand{i.Def()}, mem...)...))
	return nil
}

func (m *Machine) selectMove(n *target.SelectionNode) error {
	i := n.Instr
	def, src := i.Def(), i.Use(0)
	if src.IsFImm() {
		return errors.Structural("FLOAT_IMMEDIATE", "float immediates must be loaded from the constant pool", nil)
	}
	n.Emit(m.Move(def, src))
	return nil
}

func (m *Machine) selectCall(n *target.SelectionNode) error {
	i := n.Instr
	callee := i.Use(0)
	var call *mir.Instruction
	if callee.Kind == mir.OperandFunction || callee.Kind == mir.OperandGlobal {
		call = m.use(mir.OpCall, CALL, GR64, callee)
	} else {
		call = m.use(mir.OpCall, CALL_R, GR64, callee)
	}
	call.ImplicitDefs = i.ImplicitDefs
	call.ImplicitUses = i.ImplicitUses
	n.Emit(call)
	return nil
}
