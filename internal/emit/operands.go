package emit

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
	"github.com/orizon-lang/ancl/internal/target/amd64"
)

type operandKind int

const (
	regOperand operandKind = iota
	immOperand
	memOperand
	labelOperand
)

// memRef is a decoded base + scale*index + disp reference. Symbol is set
// for RIP-relative references.
type memRef struct {
	base   int
	symbol string
	scale  int64
	index  int
	disp   int64
}

// operand is one template operand ready for printing.
type operand struct {
	kind  operandKind
	reg   int
	imm   int64
	mem   memRef
	label string
}

// decode walks the template of i and returns its operands in Intel order,
// destination first. The tied first source of a destructive template is
// dropped.
func (e *Emitter) decode(fn *mir.Function, i *mir.Instruction) ([]operand, *target.TargetInstruction, error) {
	ti := e.m.Instructions().Instruction(i.Code)
	if ti == nil {
		return nil, nil, errors.Structural("UNSELECTED_INSTRUCTION", "instruction has no target code",
			map[string]interface{}{"function": fn.Name, "op": i.Op.String()})
	}
	var out []operand
	k := 0
	take := func() (mir.Operand, error) {
		if k >= len(i.Ops) {
			return mir.Operand{}, errors.OperandOutOfRange(k, len(i.Ops), ti.Name)
		}
		o := i.Ops[k]
		k++
		return o, nil
	}
	for _, c := range ti.Classes {
		switch c {
		case target.ClassMEM:
			ops := make([]mir.Operand, 4)
			for n := range ops {
				o, err := take()
				if err != nil {
					return nil, nil, err
				}
				ops[n] = o
			}
			mem, err := e.memory(fn, ops)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, operand{kind: memOperand, mem: mem})
		case target.ClassREL:
			o, err := take()
			if err != nil {
				return nil, nil, err
			}
			switch o.Kind {
			case mir.OperandBlock:
				out = append(out, operand{kind: labelOperand, label: BlockLabel(fn, o.Block)})
			case mir.OperandFunction, mir.OperandGlobal:
				out = append(out, operand{kind: labelOperand, label: o.Symbol})
			default:
				return nil, nil, e.badOperand(fn, ti, "branch target", o)
			}
		case target.ClassGR, target.ClassFR:
			o, err := take()
			if err != nil {
				return nil, nil, err
			}
			if !o.IsPReg() {
				return nil, nil, errors.Structural("UNALLOCATED_REGISTER", "register operand was not allocated",
					map[string]interface{}{"function": fn.Name, "instruction": ti.Name, "operand": o.Format(e.m)})
			}
			out = append(out, operand{kind: regOperand, reg: o.Reg})
		case target.ClassIMM:
			o, err := take()
			if err != nil {
				return nil, nil, err
			}
			if !o.IsImm() {
				return nil, nil, e.badOperand(fn, ti, "integer immediate", o)
			}
			out = append(out, operand{kind: immOperand, imm: o.Imm})
		}
	}
	if ti.Destructive && len(out) > 2 {
		out = append(out[:1], out[2:]...)
	}
	return out, ti, nil
}

func (e *Emitter) badOperand(fn *mir.Function, ti *target.TargetInstruction, want string, o mir.Operand) error {
	return errors.Structural("BAD_OPERAND", "expected "+want,
		map[string]interface{}{"function": fn.Name, "instruction": ti.Name, "operand": o.Format(e.m)})
}

func (e *Emitter) memory(fn *mir.Function, ops []mir.Operand) (memRef, error) {
	base, scale, index, disp := ops[0], ops[1], ops[2], ops[3]
	ref := memRef{scale: scale.Imm, disp: disp.Imm}
	switch {
	case base.Kind == mir.OperandGlobal || base.Kind == mir.OperandFunction:
		ref.symbol = base.Symbol
	case base.Kind == mir.OperandStackIndex:
		return ref, errors.Structural("UNRESOLVED_STACK_INDEX", "stack index survived frame finalization",
			map[string]interface{}{"function": fn.Name, "index": base.Index})
	case base.IsPReg():
		ref.base = base.Reg
	default:
		return ref, errors.Structural("UNALLOCATED_REGISTER", "memory base was not allocated",
			map[string]interface{}{"function": fn.Name, "operand": base.Format(e.m)})
	}
	if index.IsRegister() {
		if !index.IsPReg() {
			return ref, errors.Structural("UNALLOCATED_REGISTER", "memory index was not allocated",
				map[string]interface{}{"function": fn.Name, "operand": index.Format(e.m)})
		}
		ref.index = index.Reg
	}
	return ref, nil
}

// classBytes is the operand width an instruction class works on.
func classBytes(c mir.RegClass) int {
	switch c {
	case amd64.GR8:
		return 1
	case amd64.GR16:
		return 2
	case amd64.GR32, amd64.FR32:
		return 4
	}
	return 8
}

// isWideImmediate reports whether a MOV_RI needs the 64-bit immediate form.
func isWideImmediate(i *mir.Instruction, ops []operand) bool {
	if i.Code != amd64.MOV_RI || len(ops) != 2 || classBytes(i.Class) != 8 {
		return false
	}
	v := ops[1].imm
	return v < -1<<31 || v > 1<<31-1
}
