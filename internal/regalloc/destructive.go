package regalloc

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// RewriteDestructive makes the first use of every destructive instruction
// the register it defines. When the two differ, a copy of the use into the
// definition is inserted in front of the instruction.
func RewriteDestructive(fn *mir.Function, m target.Machine) error {
	set := m.Instructions()
	regs := m.Registers()
	inserted := 0
	for _, b := range fn.Blocks {
		for k := 0; k < len(b.Instrs); k++ {
			i := b.Instrs[k]
			if !set.IsDestructive(i.Code) || !i.HasDef() || i.NumUses() == 0 {
				continue
			}
			def, first := i.Def(), i.Use(0)
			if def.SameRegister(first) {
				continue
			}
			for n := 1; n < i.NumUses(); n++ {
				if def.SameRegister(i.Use(n)) {
					return errors.Structural("DESTRUCTIVE_OVERLAP",
						"destructive definition is also a later operand",
						map[string]interface{}{"function": fn.Name, "block": b.Name, "op": i.Op.String()})
				}
			}
			copies, err := isel.SelectInstruction(m, b, move(def, first.WithType(def.Type), regs))
			if err != nil {
				return err
			}
			b.InsertAt(k, copies...)
			k += len(copies)
			i.SetUse(0, def.WithType(first.Type))
			inserted++
		}
	}
	if inserted > 0 {
		tlog.V("regalloc").Printw("destructive copies", "func", fn.Name, "copies", inserted)
	}
	return nil
}
