package isel

import (
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// AssignClasses gives every register and immediate operand of fn a register
// class: virtual registers and immediates by size and register file,
// physical registers by their own class.
func AssignClasses(fn *mir.Function, regs target.RegisterSet) {
	fn.Instructions(func(i *mir.Instruction) {
		for k := range i.Ops {
			classify(&i.Ops[k], regs)
		}
	})
}

func classify(o *mir.Operand, regs target.RegisterSet) {
	switch {
	case o.IsPReg():
		o.Class = regs.ClassOfRegister(o.Reg)
	case o.IsVReg(), o.IsImm():
		if o.Type.Bytes > 0 {
			o.Class = regs.ClassOf(o.Type.Bytes, o.Type.IsFloat())
		}
	}
}
