// Package constfold evaluates IR operations whose operands are constants.
// Integer arithmetic follows the operand width with two's complement
// wrap-around; float arithmetic is IEEE, rounded to single precision for
// float. Operations with undefined results (division by zero, overflowing
// signed division, oversized shifts, out-of-range float conversions) are
// never folded.
package constfold

import (
	"math"

	"github.com/orizon-lang/ancl/internal/ir"
)

// Fold evaluates a binary, compare or cast instruction whose operands are
// constants. It reports false when the instruction is not foldable.
func Fold(i *ir.Instruction) (ir.Value, bool) {
	switch i.Op {
	case ir.OpBinary:
		return Binary(i.BinOp, i.Ops[0], i.Ops[1])
	case ir.OpCompare:
		return Compare(i.Pred, i.Ops[0], i.Ops[1])
	case ir.OpCast:
		return Cast(i.CastOp, i.Ops[0], i.Type())
	}
	return nil, false
}

// Binary folds op applied to two constants of the same type.
func Binary(op ir.BinaryOp, l, r ir.Value) (ir.Value, bool) {
	if op.IsFloat() {
		lf, lok := l.(*ir.FloatConstant)
		rf, rok := r.(*ir.FloatConstant)
		if !lok || !rok {
			return nil, false
		}
		return floatBinary(op, lf, rf)
	}
	li, lok := l.(*ir.IntConstant)
	ri, rok := r.(*ir.IntConstant)
	if !lok || !rok || !li.Type().IsInt() || li.Type().Bits != ri.Type().Bits {
		return nil, false
	}
	return intBinary(op, li, ri)
}

func intBinary(op ir.BinaryOp, l, r *ir.IntConstant) (ir.Value, bool) {
	bits := l.Type().Bits
	ls, rs := signed(l.Value, bits), signed(r.Value, bits)
	lu, ru := unsigned(l.Value, bits), unsigned(r.Value, bits)

	var res uint64
	switch op {
	case ir.Mul:
		res = lu * ru
	case ir.Add:
		res = lu + ru
	case ir.Sub:
		res = lu - ru
	case ir.SDiv, ir.SRem:
		if rs == 0 || (rs == -1 && ls == minSigned(bits)) {
			return nil, false
		}
		if op == ir.SDiv {
			res = uint64(ls / rs)
		} else {
			res = uint64(ls % rs)
		}
	case ir.UDiv, ir.URem:
		if ru == 0 {
			return nil, false
		}
		if op == ir.UDiv {
			res = lu / ru
		} else {
			res = lu % ru
		}
	case ir.Shl, ir.LShr, ir.AShr:
		if ru >= uint64(bits) {
			return nil, false
		}
		switch op {
		case ir.Shl:
			res = lu << ru
		case ir.LShr:
			res = lu >> ru
		default:
			res = uint64(ls >> ru)
		}
	case ir.And:
		res = lu & ru
	case ir.Xor:
		res = lu ^ ru
	case ir.Or:
		res = lu | ru
	default:
		return nil, false
	}
	return makeInt(l.Type(), res, l.Signed), true
}

func floatBinary(op ir.BinaryOp, l, r *ir.FloatConstant) (ir.Value, bool) {
	if l.Type().Float != r.Type().Float {
		return nil, false
	}
	lhs, rhs := l.Value, r.Value
	var res float64
	switch op {
	case ir.FMul:
		res = lhs * rhs
	case ir.FDiv:
		res = lhs / rhs
	case ir.FRem:
		res = math.Mod(lhs, rhs)
	case ir.FAdd:
		res = lhs + rhs
	case ir.FSub:
		res = lhs - rhs
	default:
		return nil, false
	}
	return makeFloat(l.Type(), res), true
}

// Compare folds a comparison of two constants to an i1 constant.
func Compare(pred ir.ComparePred, l, r ir.Value) (ir.Value, bool) {
	var res bool
	if pred.IsFloat() {
		lf, lok := l.(*ir.FloatConstant)
		rf, rok := r.(*ir.FloatConstant)
		if !lok || !rok {
			return nil, false
		}
		a, b := lf.Value, rf.Value
		switch pred {
		case ir.FLess:
			res = a < b
		case ir.FGreater:
			res = a > b
		case ir.FLessEq:
			res = a <= b
		case ir.FGreaterEq:
			res = a >= b
		case ir.FEqual:
			res = a == b
		case ir.FNotEqual:
			res = a != b
		}
		return boolConst(res), true
	}

	li, lok := l.(*ir.IntConstant)
	ri, rok := r.(*ir.IntConstant)
	if !lok || !rok {
		return nil, false
	}
	bits := li.Type().Bits
	if li.Type().IsPointer() {
		bits = 64
	}
	ls, rs := signed(li.Value, bits), signed(ri.Value, bits)
	lu, ru := unsigned(li.Value, bits), unsigned(ri.Value, bits)
	switch pred {
	case ir.ULess:
		res = lu < ru
	case ir.UGreater:
		res = lu > ru
	case ir.ULessEq:
		res = lu <= ru
	case ir.UGreaterEq:
		res = lu >= ru
	case ir.SLess:
		res = ls < rs
	case ir.SGreater:
		res = ls > rs
	case ir.SLessEq:
		res = ls <= rs
	case ir.SGreaterEq:
		res = ls >= rs
	case ir.IEqual:
		res = lu == ru
	case ir.INotEqual:
		res = lu != ru
	default:
		return nil, false
	}
	return boolConst(res), true
}

// Cast folds a conversion of a constant to type to.
func Cast(op ir.CastOp, v ir.Value, to *ir.Type) (ir.Value, bool) {
	switch c := v.(type) {
	case *ir.IntConstant:
		if !c.Type().IsInt() {
			return nil, false
		}
		bits := c.Type().Bits
		switch op {
		case ir.ITrunc, ir.ZExt, ir.Bitcast:
			if !to.IsInt() {
				return nil, false
			}
			return makeInt(to, unsigned(c.Value, bits), c.Signed), true
		case ir.SExt:
			if !to.IsInt() {
				return nil, false
			}
			return makeInt(to, uint64(signed(c.Value, bits)), c.Signed), true
		case ir.SIToF:
			if !to.IsFloat() {
				return nil, false
			}
			return makeFloat(to, float64(signed(c.Value, bits))), true
		case ir.UIToF:
			if !to.IsFloat() {
				return nil, false
			}
			return makeFloat(to, float64(unsigned(c.Value, bits))), true
		}
	case *ir.FloatConstant:
		if (op == ir.FToSI || op == ir.FToUI) && !to.IsInt() {
			return nil, false
		}
		switch op {
		case ir.FExt, ir.FTrunc:
			if !to.IsFloat() {
				return nil, false
			}
			return makeFloat(to, c.Value), true
		case ir.FToSI:
			t := math.Trunc(c.Value)
			lo, hi := float64(minSigned(to.Bits)), -float64(minSigned(to.Bits))
			if math.IsNaN(t) || t < lo || t >= hi {
				return nil, false
			}
			return makeInt(to, uint64(int64(t)), true), true
		case ir.FToUI:
			t := math.Trunc(c.Value)
			if math.IsNaN(t) || t < 0 || t >= math.Ldexp(1, to.Bits) {
				return nil, false
			}
			return makeInt(to, uint64(t), false), true
		}
	}
	return nil, false
}

func boolConst(b bool) *ir.IntConstant {
	if b {
		return ir.ConstUint(ir.BoolType(), 1)
	}
	return ir.ConstUint(ir.BoolType(), 0)
}

func mask(bits int) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return 1<<uint(bits) - 1
}

func unsigned(v int64, bits int) uint64 { return uint64(v) & mask(bits) }

func signed(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	shift := uint(64 - bits)
	return v << shift >> shift
}

func minSigned(bits int) int64 {
	if bits >= 64 {
		return math.MinInt64
	}
	return -1 << uint(bits-1)
}

// makeInt normalizes res to the width of t. Signed constants are stored
// sign-extended, unsigned and boolean ones zero-extended.
func makeInt(t *ir.Type, res uint64, isSigned bool) *ir.IntConstant {
	bits := t.Bits
	if isSigned && bits > 1 {
		return ir.ConstInt(t, signed(int64(res), bits))
	}
	return ir.ConstUint(t, res&mask(bits))
}

func makeFloat(t *ir.Type, v float64) *ir.FloatConstant {
	if t.Float == ir.Float {
		v = float64(float32(v))
	}
	return ir.ConstFloat(t, v)
}
