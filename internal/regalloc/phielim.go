// Package regalloc turns selected MIR into code over physical registers:
// phi elimination, the destructive-operand rewrite, LiveOUT analysis and a
// linear-scan allocator with spilling.
package regalloc

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// EliminatePhis replaces every phi with copies. Each phi gets its own
// temporary: every predecessor copies its incoming value into the temporary
// just before its terminator, and the phi becomes a copy out of the
// temporary.
//
// The copies are not scheduled as a parallel assignment. Phis whose values
// feed each other (a swap across a back edge) are only correct because every
// copy goes through a temporary that no other phi reads; a register cycle is
// never broken explicitly. Undefined inputs produce no copy.
func EliminatePhis(fn *mir.Function, m target.Machine) error {
	regs := m.Registers()
	removed := 0
	for _, b := range fn.Blocks {
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}
		var outs []*mir.Instruction
		for _, phi := range phis {
			def := phi.Def()
			if phi.NumUses() != len(b.Preds) {
				return errors.Structural("PHI_ARITY", "phi input count differs from predecessor count",
					map[string]interface{}{"function": fn.Name, "block": b.Name,
						"inputs": phi.NumUses(), "preds": len(b.Preds)})
			}
			tmp := classed(mir.VReg(def.Type, fn.NextVReg()), regs)
			for k, p := range b.Preds {
				in := phi.Use(k)
				if in.IsInvalidReg() {
					continue
				}
				copies, err := isel.SelectInstruction(m, p, move(tmp, in.WithType(def.Type), regs))
				if err != nil {
					return errors.Annotate(err, "block", p.Name)
				}
				p.InsertAt(p.TerminatorIndex(), copies...)
			}
			out, err := isel.SelectInstruction(m, b, move(def, tmp, regs))
			if err != nil {
				return err
			}
			outs = append(outs, out...)
			removed++
		}
		b.Instrs = append(outs, b.Instrs[len(phis):]...)
	}
	if removed > 0 {
		tlog.V("regalloc").Printw("phis eliminated", "func", fn.Name, "phis", removed)
	}
	return nil
}

// move builds the generic copy of src into dst for the register file of dst.
func move(dst, src mir.Operand, regs target.RegisterSet) *mir.Instruction {
	op := mir.OpMov
	if dst.Type.IsFloat() {
		op = mir.OpFMov
	}
	return mir.NewInstruction(op, dst, classed(src, regs))
}

// classed returns o with the register class its type calls for.
func classed(o mir.Operand, regs target.RegisterSet) mir.Operand {
	switch {
	case o.IsPReg():
		o.Class = regs.ClassOfRegister(o.Reg)
	case (o.IsVReg() || o.IsImm()) && o.Type.Bytes > 0:
		o.Class = regs.ClassOf(o.Type.Bytes, o.Type.IsFloat())
	}
	return o
}
