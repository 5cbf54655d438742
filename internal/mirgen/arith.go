package mirgen

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/mir"
)

var binaryOps = map[ir.BinaryOp]mir.Opcode{
	ir.Mul: mir.OpMul, ir.FMul: mir.OpFMul,
	ir.SDiv: mir.OpSDiv, ir.UDiv: mir.OpUDiv, ir.FDiv: mir.OpFDiv,
	ir.SRem: mir.OpSRem, ir.URem: mir.OpURem, ir.FRem: mir.OpFRem,
	ir.Add: mir.OpAdd, ir.FAdd: mir.OpFAdd,
	ir.Sub: mir.OpSub, ir.FSub: mir.OpFSub,
	ir.Shl: mir.OpShiftL, ir.LShr: mir.OpLShiftR, ir.AShr: mir.OpAShiftR,
	ir.And: mir.OpAnd, ir.Xor: mir.OpXor, ir.Or: mir.OpOr,
}

func (l *lowering) lowerBinary(i *ir.Instruction) error {
	def, err := l.result(i)
	if err != nil {
		return err
	}
	a, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	b, err := l.operand(i.Ops[1])
	if err != nil {
		return err
	}
	op := binaryOps[i.BinOp]
	switch i.BinOp {
	case ir.SDiv, ir.UDiv, ir.SRem, ir.URem:
		if def.Type.Bytes < 4 {
			return l.narrowDivide(op, def, a, b)
		}
	}
	l.emit(mir.NewInstruction(op, def, a, b))
	return nil
}

// narrowDivide performs a byte or word division at 32 bits, since the
// register pair forms only exist for the wider widths.
func (l *lowering) narrowDivide(op mir.Opcode, def, a, b mir.Operand) error {
	signed := op == mir.OpSDiv || op == mir.OpSRem
	wide := mir.Integer(4)
	a, b = l.widen(a, wide, signed), l.widen(b, wide, signed)
	tmp := l.vreg(wide)
	l.emit(
		mir.NewInstruction(op, tmp, a, b),
		mir.NewInstruction(mir.OpITrunc, def, tmp),
	)
	return nil
}

func (l *lowering) widen(o mir.Operand, t mir.Type, signed bool) mir.Operand {
	if o.IsImm() {
		v := o.Imm
		switch o.Type.Bytes {
		case 1:
			v = int64(uint8(v))
			if signed {
				v = int64(int8(v))
			}
		case 2:
			v = int64(uint16(v))
			if signed {
				v = int64(int16(v))
			}
		}
		return mir.Imm(t, v)
	}
	op := mir.OpZExt
	if signed {
		op = mir.OpSExt
	}
	r := l.vreg(t)
	l.emit(mir.NewInstruction(op, r, o))
	return r
}

func compareOp(p ir.ComparePred) (mir.Opcode, mir.CompareKind) {
	switch p {
	case ir.ULess:
		return mir.OpUCmp, mir.CmpLess
	case ir.UGreater:
		return mir.OpUCmp, mir.CmpGreater
	case ir.ULessEq:
		return mir.OpUCmp, mir.CmpLessEq
	case ir.UGreaterEq:
		return mir.OpUCmp, mir.CmpGreaterEq
	case ir.SLess:
		return mir.OpCmp, mir.CmpLess
	case ir.SGreater:
		return mir.OpCmp, mir.CmpGreater
	case ir.SLessEq:
		return mir.OpCmp, mir.CmpLessEq
	case ir.SGreaterEq:
		return mir.OpCmp, mir.CmpGreaterEq
	case ir.IEqual:
		return mir.OpCmp, mir.CmpEqual
	case ir.INotEqual:
		return mir.OpCmp, mir.CmpNotEqual
	case ir.FLess:
		return mir.OpFCmp, mir.CmpLess
	case ir.FGreater:
		return mir.OpFCmp, mir.CmpGreater
	case ir.FLessEq:
		return mir.OpFCmp, mir.CmpLessEq
	case ir.FGreaterEq:
		return mir.OpFCmp, mir.CmpGreaterEq
	case ir.FEqual:
		return mir.OpFCmp, mir.CmpEqual
	}
	return mir.OpFCmp, mir.CmpNotEqual
}

func (l *lowering) lowerCompare(i *ir.Instruction) error {
	def, err := l.result(i)
	if err != nil {
		return err
	}
	a, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	b, err := l.operand(i.Ops[1])
	if err != nil {
		return err
	}
	op, kind := compareOp(i.Pred)
	l.emit(mir.NewCompare(op, kind, def, a, b))
	return nil
}

var castOps = map[ir.CastOp]mir.Opcode{
	ir.ITrunc: mir.OpITrunc, ir.FTrunc: mir.OpFTrunc,
	ir.ZExt: mir.OpZExt, ir.SExt: mir.OpSExt, ir.FExt: mir.OpFExt,
	ir.FToUI: mir.OpFToUI, ir.FToSI: mir.OpFToSI,
	ir.UIToF: mir.OpUIToF, ir.SIToF: mir.OpSIToF,
	ir.PtrToI: mir.OpPtrToI, ir.IToPtr: mir.OpIToPtr,
}

func (l *lowering) lowerCast(i *ir.Instruction) error {
	def, err := l.result(i)
	if err != nil {
		return err
	}
	src, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	switch i.CastOp {
	case ir.Bitcast:
		if def.Type.IsFloat() != src.Type.IsFloat() {
			return errors.Lowering("CROSS_FILE_BITCAST", "bitcast between integer and float registers",
				map[string]interface{}{"from": src.Type.String(), "to": def.Type.String()})
		}
		l.emit(l.move(def, src.WithType(def.Type)))
		return nil
	case ir.ITrunc, ir.ZExt, ir.SExt:
		// i1 and i8 share a width.
		if def.Type.Bytes == src.Type.Bytes {
			l.emit(l.move(def, src.WithType(def.Type)))
			return nil
		}
	case ir.UIToF, ir.SIToF:
		if src.Type.Bytes < 4 {
			src = l.widen(src, mir.Integer(4), i.CastOp == ir.SIToF)
		}
	}
	l.emit(mir.NewInstruction(castOps[i.CastOp], def, src))
	return nil
}
