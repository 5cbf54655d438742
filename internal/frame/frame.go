// Package frame finalizes stack frames after register allocation: symbolic
// stack slots become frame pointer relative addresses, and every function
// gets its prologue and epilogues.
package frame

import (
	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/isel"
	"github.com/orizon-lang/ancl/internal/layout"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// StackAddressPass rewrites every stack index operand into the frame pointer
// and moves the slot's resolved offset into the displacement of the memory
// reference it starts.
func StackAddressPass(fn *mir.Function, m target.Machine) error {
	regs := m.Registers()
	arp := mir.PReg(mir.Pointer(), regs.ARP(), regs.ClassOfRegister(regs.ARP()))
	rewritten := 0
	for _, b := range fn.Blocks {
		for _, i := range b.Instrs {
			for n := range i.Ops {
				o := i.Ops[n]
				if o.Kind != mir.OperandStackIndex {
					continue
				}
				if n+3 >= len(i.Ops) || !i.Ops[n+1].IsImm() || !i.Ops[n+3].IsImm() {
					return errors.Structural("STACK_INDEX_OUTSIDE_MEMORY",
						"stack index is not the base of a memory reference",
						map[string]interface{}{"function": fn.Name, "block": b.Name, "op": i.Op.String()})
				}
				off, err := fn.Locals.ResolvedOffset(fn.Name, o.Index)
				if err != nil {
					return err
				}
				i.Ops[n] = arp
				i.Ops[n+3].Imm -= off
				rewritten++
			}
		}
	}
	tlog.V("frame").Printw("stack addresses", "func", fn.Name, "rewritten", rewritten)
	return nil
}

// Size returns the stack adjustment the prologue makes for fn. The frame is
// rounded so the stack pointer is 16-byte aligned at calls once the saved
// registers and the frame pointer are pushed. Leaf functions whose locals fit
// the red zone need no adjustment.
func Size(fn *mir.Function, abi target.ABI) int64 {
	align := abi.StackAlign()
	size := layout.AlignUp(fn.Locals.Size, align)
	if len(fn.SavedRegs)%2 == 1 {
		size += 8
	}
	if !fn.IsCaller && fn.Locals.Size <= abi.RedZoneSize() {
		return 0
	}
	return size
}

// PrologueEpiloguePass inserts the prologue at the start of the entry block
// and an epilogue before every return. Callee-saved registers are pushed
// before the frame pointer and popped after it.
func PrologueEpiloguePass(fn *mir.Function, m target.Machine) error {
	entry := fn.Entry()
	if entry == nil {
		return nil
	}
	regs := m.Registers()
	i64 := mir.Integer(8)
	reg := func(n int) mir.Operand { return mir.PReg(i64, n, regs.ClassOfRegister(n)) }
	sp, arp := reg(regs.SP()), reg(regs.ARP())
	fn.FrameSize = Size(fn, m.ABI())

	var prologue []*mir.Instruction
	for _, r := range fn.SavedRegs {
		prologue = append(prologue, mir.NewInstruction(mir.OpPush, reg(r)))
	}
	prologue = append(prologue,
		mir.NewInstruction(mir.OpPush, arp),
		mir.NewInstruction(mir.OpMov, arp, sp),
	)
	if fn.FrameSize > 0 {
		prologue = append(prologue, mir.NewInstruction(mir.OpSub, sp, sp, mir.Imm(i64, fn.FrameSize)))
	}
	selected, err := selectAll(m, entry, prologue)
	if err != nil {
		return err
	}
	entry.Prepend(selected...)

	rets := 0
	for _, b := range fn.Blocks {
		for k := 0; k < len(b.Instrs); k++ {
			if b.Instrs[k].Op != mir.OpRet {
				continue
			}
			var epilogue []*mir.Instruction
			if fn.FrameSize > 0 {
				epilogue = append(epilogue, mir.NewInstruction(mir.OpAdd, sp, sp, mir.Imm(i64, fn.FrameSize)))
			}
			epilogue = append(epilogue, mir.NewInstruction(mir.OpPop, arp))
			for n := len(fn.SavedRegs) - 1; n >= 0; n-- {
				epilogue = append(epilogue, mir.NewInstruction(mir.OpPop, reg(fn.SavedRegs[n])))
			}
			selected, err := selectAll(m, b, epilogue)
			if err != nil {
				return err
			}
			b.InsertAt(k, selected...)
			k += len(selected)
			rets++
		}
	}
	tlog.V("frame").Printw("frame", "func", fn.Name, "size", fn.FrameSize,
		"saved", len(fn.SavedRegs), "returns", rets)
	return nil
}

func selectAll(m target.Machine, b *mir.BasicBlock, instrs []*mir.Instruction) ([]*mir.Instruction, error) {
	var out []*mir.Instruction
	for _, i := range instrs {
		sel, err := isel.SelectInstruction(m, b, i)
		if err != nil {
			return nil, err
		}
		out = append(out, sel...)
	}
	return out, nil
}

// Finalize runs both passes over every function of p.
func Finalize(p *mir.Program, m target.Machine) error {
	for _, fn := range p.Functions {
		if err := StackAddressPass(fn, m); err != nil {
			return err
		}
		if err := PrologueEpiloguePass(fn, m); err != nil {
			return errors.Annotate(err, "function", fn.Name)
		}
	}
	return nil
}
