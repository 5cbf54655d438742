package mirgen

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/layout"
	"github.com/orizon-lang/ancl/internal/mir"
)

// lowerAlloca reserves a stack slot. Every use of the alloca becomes a
// StackAddress of the slot.
func (l *lowering) lowerAlloca(i *ir.Instruction) error {
	lay, err := layout.Default.Layout(i.AllocType)
	if err != nil {
		return errors.Annotate(err, "alloca", i.Name())
	}
	key := l.fn.NextVReg()
	l.fn.Locals.AddSlot(key, lay.Size, lay.Alignment)
	l.allocas[i] = key
	return nil
}

func (l *lowering) lowerLoad(i *ir.Instruction) error {
	def, err := l.result(i)
	if err != nil {
		return err
	}
	addr, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	l.emit(mir.NewInstruction(mir.OpLoad, def, addr))
	return nil
}

func (l *lowering) lowerStore(i *ir.Instruction) error {
	val, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	addr, err := l.operand(i.Ops[1])
	if err != nil {
		return err
	}
	l.emit(mir.NewInstruction(mir.OpStore, addr, val))
	return nil
}

func legalScale(s int64) bool { return s == 1 || s == 2 || s == 4 || s == 8 }

// lowerMember computes base + scale*index + disp. Constant indices fold into
// the displacement. Scales without an addressing mode are multiplied out.
func (l *lowering) lowerMember(i *ir.Instruction) error {
	def, err := l.result(i)
	if err != nil {
		return err
	}
	ptr, index := i.Ops[0], i.Ops[1]
	if !ptr.Type().IsPointer() || ptr.Type().Elem == nil {
		return errors.BadValueKind("pointer", ptr)
	}
	pointee := ptr.Type().Elem

	var scale int64
	switch {
	case pointee.IsArray():
		scale, err = layout.SizeOf(pointee.Elem)
	case i.Deref && pointee.IsStruct():
		c, ok := index.(*ir.IntConstant)
		if !ok {
			return errors.Structural("FIELD_INDEX", "struct field index must be constant",
				map[string]interface{}{"member": i.Name()})
		}
		off, err := layout.FieldOffset(pointee, int(c.Value))
		if err != nil {
			return errors.Annotate(err, "member", i.Name())
		}
		return l.member(def, ptr, 1, mir.NoReg(), off)
	default:
		scale, err = layout.SizeOf(pointee)
	}
	if err != nil {
		return errors.Annotate(err, "member", i.Name())
	}

	if c, ok := index.(*ir.IntConstant); ok {
		return l.member(def, ptr, 1, mir.NoReg(), c.Value*scale)
	}
	idx, err := l.operand(index)
	if err != nil {
		return err
	}
	i64 := mir.Integer(8)
	if idx.Type.Bytes < 8 {
		wide := l.vreg(i64)
		l.emit(mir.NewInstruction(mir.OpSExt, wide, idx))
		idx = wide
	}
	if !legalScale(scale) {
		scaled := l.vreg(i64)
		l.emit(mir.NewInstruction(mir.OpMul, scaled, idx, mir.Imm(i64, scale)))
		idx, scale = scaled, 1
	}
	return l.member(def, ptr, scale, idx, 0)
}

func (l *lowering) member(def mir.Operand, ptr ir.Value, scale int64, index mir.Operand, disp int64) error {
	base, err := l.reg(ptr)
	if err != nil {
		return err
	}
	i64 := mir.Integer(8)
	l.emit(mir.NewInstruction(mir.OpMemberAddress, def, base, mir.Imm(i64, scale), index, mir.Imm(i64, disp)))
	return nil
}

// lowerMemCopy calls memcpy(dst, src, size).
func (l *lowering) lowerMemCopy(i *ir.Instruction) error {
	size := ir.ConstInt(ir.IntType(64), i.Size)
	return l.callRuntime("memcpy", []ir.Value{i.Ops[0], i.Ops[1], size})
}

// lowerMemSet calls memset(dst, fill, count).
func (l *lowering) lowerMemSet(i *ir.Instruction) error {
	fill := ir.ConstInt(ir.IntType(32), int64(i.Fill))
	count := ir.ConstInt(ir.IntType(64), i.Size)
	return l.callRuntime("memset", []ir.Value{i.Ops[0], fill, count})
}
