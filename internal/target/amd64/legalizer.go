package amd64

import (
	"math"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Legalizer rewrites generic instructions into shapes the selection
// patterns accept.
type Legalizer struct {
	m *Machine
}

var _ target.LegalizationRules = (*Legalizer)(nil)

func fitsImm32(v int64) bool { return v >= math.MinInt32 && v <= math.MaxInt32 }

// materialize moves the immediate use i into a fresh register ahead of the
// node.
func (l *Legalizer) materialize(n *target.SelectionNode, i int) {
	use := n.Instr.Use(i)
	reg := l.m.freshReg(n, use.Type)
	n.EmitPrologue(l.m.inst(mir.OpMov, MOV_RI, reg.Class, reg, use))
	n.Instr.SetUse(i, reg)
}

func (l *Legalizer) fixWideImm(n *target.SelectionNode, i int) bool {
	if u := n.Instr.Use(i); u.IsImm() && !fitsImm32(u.Imm) {
		l.materialize(n, i)
		return true
	}
	return false
}

// commutative puts an immediate operand last.
func (l *Legalizer) commutative(n *target.SelectionNode) (bool, error) {
	a, b := n.Instr.Use(0), n.Instr.Use(1)
	changed := false
	switch {
	case a.IsImm() && b.IsImm():
		l.materialize(n, 0)
		changed = true
	case a.IsImm():
		n.SwapUses(0, 1)
		changed = true
	}
	return l.fixWideImm(n, 1) || changed, nil
}

// leftReg materializes an immediate left operand.
func (l *Legalizer) leftReg(n *target.SelectionNode) (bool, error) {
	changed := false
	if n.Instr.Use(0).IsImm() {
		l.materialize(n, 0)
		changed = true
	}
	return l.fixWideImm(n, 1) || changed, nil
}

func (l *Legalizer) LegalizeMul(n *target.SelectionNode) (bool, error) { return l.commutative(n) }
func (l *Legalizer) LegalizeAdd(n *target.SelectionNode) (bool, error) { return l.commutative(n) }
func (l *Legalizer) LegalizeAnd(n *target.SelectionNode) (bool, error) { return l.commutative(n) }
func (l *Legalizer) LegalizeXor(n *target.SelectionNode) (bool, error) { return l.commutative(n) }
func (l *Legalizer) LegalizeOr(n *target.SelectionNode) (bool, error)  { return l.commutative(n) }
func (l *Legalizer) LegalizeSub(n *target.SelectionNode) (bool, error) { return l.leftReg(n) }

// LegalizeCmp swaps an immediate left operand to the right, mirroring the
// relation.
func (l *Legalizer) LegalizeCmp(n *target.SelectionNode) (bool, error) {
	a, b := n.Instr.Use(0), n.Instr.Use(1)
	changed := false
	switch {
	case a.IsImm() && b.IsImm():
		l.materialize(n, 0)
		changed = true
	case a.IsImm():
		n.SwapUses(0, 1)
		n.Instr.Cmp = n.Instr.Cmp.Swapped()
		changed = true
	}
	return l.fixWideImm(n, 1) || changed, nil
}

// LegalizeShift routes a variable count through CL.
func (l *Legalizer) LegalizeShift(n *target.SelectionNode) (bool, error) {
	changed := false
	if n.Instr.Use(0).IsImm() {
		l.materialize(n, 0)
		changed = true
	}
	count := n.Instr.Use(1)
	if count.IsImm() {
		if count.Imm < 0 || count.Imm > 63 {
			n.Instr.SetUse(1, mir.Imm(count.Type, count.Imm&63))
			changed = true
		}
		return changed, nil
	}
	cl := mir.PReg(mir.Integer(1), CL, GR8)
	n.EmitPrologue(l.m.inst(mir.OpMov, MOV_RR, GR8, cl, count.WithType(mir.Integer(1))))
	n.Instr.SetUse(1, cl)
	return true, nil
}

// divide rewrites a division or remainder into the RDX:RAX sequence:
//
//	mov eax, a; cdq (or mov edx, 0); idiv b; mov def, eax (or edx)
//
// The node instruction keeps its opcode but only uses the divisor.
func (l *Legalizer) divide(n *target.SelectionNode, remainder bool) (bool, error) {
	i := n.Instr
	def := i.Def()
	bytes := def.Type.Bytes
	if bytes != 4 && bytes != 8 {
		return false, errors.Lowering("NARROW_DIVISION", "division must be widened to 32 or 64 bits",
			map[string]interface{}{"bytes": bytes})
	}
	if i.Use(1).IsImm() {
		l.materialize(n, 1)
	}
	rs := l.m.regs
	class := rs.ClassOf(bytes, false)
	t := mir.Integer(bytes)
	rax := mir.PReg(t, rs.Sized(RAX, bytes), class)
	rdx := mir.PReg(t, rs.Sized(RDX, bytes), class)

	signed := i.Op == mir.OpSDiv || i.Op == mir.OpSRem
	n.EmitPrologue(l.m.Move(rax, i.Use(0)))
	if signed {
		widen := l.m.inst(mir.OpSExt, CQO, class)
		if bytes == 4 {
			widen.Code = CDQ
		}
		widen.ImplicitDefs = []int{RDX}
		widen.ImplicitUses = []int{RAX}
		n.EmitPrologue(widen)
	} else {
		n.EmitPrologue(l.m.inst(mir.OpMov, MOV_RI, class, rdx, mir.Imm(t, 0)))
	}

	result := rax
	if remainder {
		result = rdx
	}
	n.EmitEpilogue(l.m.inst(mir.OpMov, MOV_RR, class, def, result))

	divisor := i.Use(1)
	i.Ops = []mir.Operand{divisor}
	i.Undefine()
	i.ImplicitDefs = []int{RAX, RDX}
	i.ImplicitUses = []int{RAX, RDX}
	// The dividend producer stays attached so it is still generated.
	n.Children = []*target.SelectionNode{n.Child(1), n.Child(0)}
	return true, nil
}

func (l *Legalizer) LegalizeDiv(n *target.SelectionNode) (bool, error) {
	if !n.Instr.HasDef() {
		return false, nil
	}
	return l.divide(n, false)
}

func (l *Legalizer) LegalizeRem(n *target.SelectionNode) (bool, error) {
	if !n.Instr.HasDef() {
		return false, nil
	}
	return l.divide(n, true)
}

// LegalizeZExt turns a 32 to 64 bit extension into a 32-bit move, which
// clears the upper half.
func (l *Legalizer) LegalizeZExt(n *target.SelectionNode) (bool, error) {
	i := n.Instr
	src := i.Use(0)
	if src.IsImm() || src.Type.Bytes != 4 || i.Def().Type.Bytes != 8 {
		return false, nil
	}
	i.Op = mir.OpSubregToReg
	return true, nil
}
