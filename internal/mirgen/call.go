package mirgen

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/mir"
)

// lowerParams copies the incoming arguments into virtual registers at the
// function entry. Arguments past the register banks are read from the
// caller's frame.
func (l *lowering) lowerParams() error {
	abi := l.m.ABI()
	ints, floats := abi.IntArgRegisters(), abi.FloatArgRegisters()
	ni, nf, stack := 0, 0, int64(0)
	for _, p := range l.src.Params {
		t, err := MType(p.Type())
		if err != nil {
			return errors.Annotate(err, "param", p.Name())
		}
		v := l.vreg(t)
		switch {
		case t.IsFloat() && nf < len(floats):
			l.emit(l.move(v, l.preg(t, floats[nf])))
			nf++
		case !t.IsFloat() && ni < len(ints):
			l.emit(l.move(v, l.preg(t, ints[ni])))
			ni++
		default:
			key := l.fn.NextVReg()
			l.fn.Locals.AddFixedSlot(key, 8, stack)
			stack += 8
			addr := l.vreg(mir.Pointer())
			l.emit(
				mir.NewInstruction(mir.OpStackAddress, addr, mir.StackIndex(key)),
				mir.NewInstruction(mir.OpLoad, v, addr),
			)
		}
		l.params[p] = v
		l.fn.Params = append(l.fn.Params, mir.Param{Reg: v.Reg, Type: t})
	}
	return nil
}

func signature(callee ir.Value) *ir.Type {
	sig := callee.Type()
	if sig.IsPointer() {
		sig = sig.Elem
	}
	return sig
}

func (l *lowering) lowerCall(i *ir.Instruction) error {
	sig := signature(i.Callee())
	var callee mir.Operand
	if f, ok := i.Callee().(*ir.Function); ok {
		callee = mir.Func(f.Name())
	} else {
		c, err := l.reg(i.Callee())
		if err != nil {
			return err
		}
		callee = c
	}
	var def mir.Operand
	if i.HasResult() {
		d, err := l.result(i)
		if err != nil {
			return err
		}
		def = d
	}
	return l.call(callee, i.Args(), sig.Variadic, def)
}

// callRuntime calls a C library routine that returns nothing we use.
func (l *lowering) callRuntime(name string, args []ir.Value) error {
	return l.call(mir.Func(name), args, false, mir.NoReg())
}

type argument struct {
	val mir.Operand
	reg int
}

// call emits the argument moves, the call and the result copy. Stack
// arguments are pushed right to left with the stack kept 16-byte aligned.
func (l *lowering) call(callee mir.Operand, args []ir.Value, variadic bool, def mir.Operand) error {
	abi := l.m.ABI()
	rs := l.m.Registers()
	ints, floats := abi.IntArgRegisters(), abi.FloatArgRegisters()

	var inRegs, onStack []argument
	ni, nf := 0, 0
	for _, a := range args {
		val, err := l.operand(a)
		if err != nil {
			return err
		}
		switch {
		case val.Type.IsFloat() && nf < len(floats):
			inRegs = append(inRegs, argument{val, floats[nf]})
			nf++
		case !val.Type.IsFloat() && ni < len(ints):
			inRegs = append(inRegs, argument{val, ints[ni]})
			ni++
		default:
			onStack = append(onStack, argument{val: val})
		}
	}

	i64 := mir.Integer(8)
	rsp := l.preg(i64, rs.SP())
	pushed := int64(0)
	if len(onStack)%2 == 1 {
		l.emit(mir.NewInstruction(mir.OpSub, rsp, rsp, mir.Imm(i64, 8)))
		pushed += 8
	}
	for k := len(onStack) - 1; k >= 0; k-- {
		val := onStack[k].val
		switch {
		case val.Type.IsFloat():
			l.emit(
				mir.NewInstruction(mir.OpSub, rsp, rsp, mir.Imm(i64, 8)),
				mir.NewInstruction(mir.OpStore, rsp, mir.Imm(i64, 1), mir.NoReg(), mir.Imm(i64, 0), val),
			)
		default:
			if val.IsImm() || val.Type.Bytes != 8 {
				wide := l.vreg(i64)
				if val.IsImm() {
					l.emit(l.move(wide, mir.Imm(i64, val.Imm)))
				} else {
					l.emit(mir.NewInstruction(mir.OpZExt, wide, val))
				}
				val = wide
			}
			l.emit(mir.NewInstruction(mir.OpPush, val))
		}
		pushed += 8
	}

	uses := make([]int, 0, len(inRegs)+1)
	for _, a := range inRegs {
		l.emit(l.move(l.preg(a.val.Type, a.reg), a.val))
		uses = append(uses, rs.Unit(a.reg))
	}
	if variadic {
		al := abi.VectorCountRegister()
		l.emit(l.move(l.preg(mir.Integer(1), al), mir.Imm(mir.Integer(1), int64(nf))))
		uses = append(uses, rs.Unit(al))
	}

	call := mir.NewInstruction(mir.OpCall, callee)
	call.ImplicitDefs = append([]int(nil), abi.CallerSaved()...)
	call.ImplicitUses = uses
	l.emit(call)
	l.fn.IsCaller = true

	if pushed > 0 {
		l.emit(mir.NewInstruction(mir.OpAdd, rsp, rsp, mir.Imm(i64, pushed)))
	}
	if def.IsRegister() {
		ret := abi.IntReturnRegisters()[0]
		if def.Type.IsFloat() {
			ret = abi.FloatReturnRegisters()[0]
		}
		l.emit(l.move(def, l.preg(def.Type, ret)))
	}
	return nil
}

func (l *lowering) lowerReturn(i *ir.Instruction) error {
	ret := mir.NewInstruction(mir.OpRet)
	if len(i.Ops) == 1 {
		val, err := l.operand(i.Ops[0])
		if err != nil {
			return err
		}
		abi := l.m.ABI()
		reg := abi.IntReturnRegisters()[0]
		if val.Type.IsFloat() {
			reg = abi.FloatReturnRegisters()[0]
		}
		l.emit(l.move(l.preg(val.Type, reg), val))
		ret.ImplicitUses = []int{reg}
	}
	l.emit(ret)
	return nil
}
