// Package mirgen lowers optimized IR into pre-selection MIR: virtual
// registers, explicit ABI register moves, stack slots and address
// computations in the shapes the instruction selector consumes.
package mirgen

import (
	"fmt"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/mir"
	"github.com/orizon-lang/ancl/internal/target"
)

// Lower translates every defined function and every global of p.
func Lower(p *ir.Program, m target.Machine) (*mir.Program, error) {
	out := &mir.Program{}
	for _, g := range p.Globals {
		area, err := lowerGlobal(g)
		if err != nil {
			return nil, fmt.Errorf("global %s: %w", g.Name(), err)
		}
		out.Data = append(out.Data, area)
	}
	for _, fn := range p.Functions {
		if fn.IsDeclaration() {
			continue
		}
		mf, err := lowerFunction(out, m, fn)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fn.Name(), err)
		}
		out.Functions = append(out.Functions, mf)
	}
	return out, nil
}

// MType maps an IR scalar type to its MIR register type.
func MType(t *ir.Type) (mir.Type, error) {
	switch {
	case t.IsInt():
		return mir.Integer(t.ByteWidth()), nil
	case t.IsFloat():
		switch t.Float {
		case ir.Float:
			return mir.Float(4), nil
		case ir.Double:
			return mir.Float(8), nil
		}
		return mir.Type{}, errors.Unsupported("long double", "amd64")
	case t.IsPointer(), t.Kind == ir.TypeFunction, t.Kind == ir.TypeLabel:
		return mir.Pointer(), nil
	case t.IsAggregate():
		return mir.Type{}, errors.Lowering("AGGREGATE_VALUE", "aggregate values must live in memory",
			map[string]interface{}{"type": t.String()})
	}
	return mir.Type{}, errors.Lowering("NO_REGISTER_TYPE", "type has no register representation",
		map[string]interface{}{"type": t.String()})
}

// lowering holds the state of one function.
type lowering struct {
	prog *mir.Program
	m    target.Machine
	src  *ir.Function
	fn   *mir.Function

	blocks map[*ir.BasicBlock]*mir.BasicBlock
	// origin maps every MIR block to the IR block whose edges it carries.
	origin  map[*mir.BasicBlock]*ir.BasicBlock
	extra   map[*ir.BasicBlock][]*mir.BasicBlock
	values  map[ir.Value]mir.Operand
	params  map[*ir.Parameter]mir.Operand
	allocas map[*ir.Instruction]int

	cur *mir.BasicBlock
	// beforeTerm inserts new instructions ahead of the current block's
	// terminator instead of appending them.
	beforeTerm bool
}

func lowerFunction(prog *mir.Program, m target.Machine, src *ir.Function) (*mir.Function, error) {
	l := &lowering{
		prog:    prog,
		m:       m,
		src:     src,
		fn:      mir.NewFunction(src.Name()),
		blocks:  make(map[*ir.BasicBlock]*mir.BasicBlock),
		origin:  make(map[*mir.BasicBlock]*ir.BasicBlock),
		extra:   make(map[*ir.BasicBlock][]*mir.BasicBlock),
		values:  make(map[ir.Value]mir.Operand),
		params:  make(map[*ir.Parameter]mir.Operand),
		allocas: make(map[*ir.Instruction]int),
	}
	l.fn.Local = src.Linkage == ir.InternalLinkage

	var pre *mir.BasicBlock
	if entry := src.Entry(); len(entry.Preds) > 0 {
		// Parameter copies must not run again on a back edge.
		pre = l.fn.NewBlock(entry.Name() + ".pre")
	}
	for _, b := range src.Blocks {
		mb := l.fn.NewBlock(b.Name())
		l.blocks[b] = mb
		l.origin[mb] = b
	}
	first := l.blocks[src.Entry()]
	if pre != nil {
		first = pre
	}
	l.cur = first
	if err := l.lowerParams(); err != nil {
		return nil, err
	}
	if pre != nil {
		l.jump(l.blocks[src.Entry()])
	}

	for _, b := range src.Blocks {
		l.cur = l.blocks[b]
		for _, i := range b.Instrs {
			if i.Op == ir.OpPhi {
				continue
			}
			if err := l.lowerInstruction(i); err != nil {
				return nil, errors.Annotate(err, "block", b.Name())
			}
		}
	}
	if err := l.lowerPhis(); err != nil {
		return nil, err
	}

	order := make([]*mir.BasicBlock, 0, len(l.fn.Blocks))
	if pre != nil {
		order = append(order, pre)
	}
	for _, b := range src.Blocks {
		order = append(order, l.blocks[b])
		order = append(order, l.extra[b]...)
	}
	l.fn.Blocks = order
	tlog.V("mirgen").Printw("lowered", "func", src.Name(), "blocks", len(order), "vregs", l.fn.VRegCount()-1)
	return l.fn, nil
}

// emit adds instructions at the current insertion point.
func (l *lowering) emit(instrs ...*mir.Instruction) {
	if l.beforeTerm {
		l.cur.InsertAt(l.cur.TerminatorIndex(), instrs...)
		return
	}
	l.cur.Append(instrs...)
}

func (l *lowering) vreg(t mir.Type) mir.Operand { return mir.VReg(t, l.fn.NextVReg()) }

// preg builds a physical register operand of type t on the unit reg.
func (l *lowering) preg(t mir.Type, reg int) mir.Operand {
	rs := l.m.Registers()
	n := reg
	if !t.IsFloat() {
		n = rs.Sized(reg, t.Bytes)
	}
	return mir.PReg(t, n, rs.ClassOfRegister(n))
}

func (l *lowering) move(dst, src mir.Operand) *mir.Instruction {
	op := mir.OpMov
	if dst.Type.IsFloat() {
		op = mir.OpFMov
	}
	return mir.NewInstruction(op, dst, src)
}

func (l *lowering) jump(to *mir.BasicBlock) {
	l.emit(mir.NewInstruction(mir.OpJump, mir.BlockRef(to)))
	l.cur.AddEdge(to)
}

// result returns the register holding the value of i, creating it on first
// reference so phis can name values defined later.
func (l *lowering) result(i *ir.Instruction) (mir.Operand, error) {
	if o, ok := l.values[i]; ok {
		return o, nil
	}
	t, err := MType(i.Type())
	if err != nil {
		return mir.Operand{}, err
	}
	o := l.vreg(t)
	l.values[i] = o
	return o, nil
}

// operand returns v as a MIR operand, emitting address and constant pool
// loads at the insertion point as needed.
func (l *lowering) operand(v ir.Value) (mir.Operand, error) {
	switch v := v.(type) {
	case *ir.IntConstant:
		t, err := MType(v.Type())
		if err != nil {
			return mir.Operand{}, err
		}
		return mir.Imm(t, v.Value), nil
	case *ir.FloatConstant:
		return l.floatConstant(v)
	case *ir.Parameter:
		if o, ok := l.params[v]; ok {
			return o, nil
		}
		return mir.Operand{}, errors.Structural("UNKNOWN_PARAMETER", "parameter of another function",
			map[string]interface{}{"param": v.Name()})
	case *ir.GlobalVariable:
		addr := l.vreg(mir.Pointer())
		l.emit(mir.NewInstruction(mir.OpGlobalAddress, addr, mir.Global(v.Name())))
		return addr, nil
	case *ir.Function:
		addr := l.vreg(mir.Pointer())
		l.emit(mir.NewInstruction(mir.OpGlobalAddress, addr, mir.Func(v.Name())))
		return addr, nil
	case *ir.Instruction:
		if key, ok := l.allocas[v]; ok {
			addr := l.vreg(mir.Pointer())
			l.emit(mir.NewInstruction(mir.OpStackAddress, addr, mir.StackIndex(key)))
			return addr, nil
		}
		if v.Op == ir.OpAlloca {
			return mir.Operand{}, errors.Structural("ALLOCA_ORDER", "alloca used before it is lowered",
				map[string]interface{}{"value": v.Name()})
		}
		return l.result(v)
	}
	return mir.Operand{}, errors.BadValueKind("lowerable value", v)
}

// reg returns v in a register, moving an immediate into a fresh one.
func (l *lowering) reg(v ir.Value) (mir.Operand, error) {
	o, err := l.operand(v)
	if err != nil || !o.IsImm() {
		return o, err
	}
	r := l.vreg(o.Type)
	l.emit(l.move(r, o))
	return r, nil
}

// floatConstant places c in the constant pool and loads it.
func (l *lowering) floatConstant(c *ir.FloatConstant) (mir.Operand, error) {
	t, err := MType(c.Type())
	if err != nil {
		return mir.Operand{}, err
	}
	area := &mir.GlobalDataArea{Name: l.prog.NextConstLabel(), Const: true, Local: true, Align: int64(t.Bytes)}
	if t.Bytes == 4 {
		area.AddFloat(c.Value)
	} else {
		area.AddDouble(c.Value)
	}
	l.prog.Data = append(l.prog.Data, area)
	addr, val := l.vreg(mir.Pointer()), l.vreg(t)
	l.emit(
		mir.NewInstruction(mir.OpGlobalAddress, addr, mir.Global(area.Name)),
		mir.NewInstruction(mir.OpLoad, val, addr),
	)
	return val, nil
}

func (l *lowering) lowerInstruction(i *ir.Instruction) error {
	switch i.Op {
	case ir.OpAlloca:
		return l.lowerAlloca(i)
	case ir.OpLoad:
		return l.lowerLoad(i)
	case ir.OpStore:
		return l.lowerStore(i)
	case ir.OpBinary:
		return l.lowerBinary(i)
	case ir.OpCompare:
		return l.lowerCompare(i)
	case ir.OpCast:
		return l.lowerCast(i)
	case ir.OpMember:
		return l.lowerMember(i)
	case ir.OpCall:
		return l.lowerCall(i)
	case ir.OpMemCopy:
		return l.lowerMemCopy(i)
	case ir.OpMemSet:
		return l.lowerMemSet(i)
	case ir.OpBranch:
		return l.lowerBranch(i)
	case ir.OpReturn:
		return l.lowerReturn(i)
	case ir.OpSwitch:
		return l.lowerSwitch(i)
	}
	return errors.Lowering("NO_LOWERING", "no lowering for "+i.Op.String(), nil)
}

func (l *lowering) lowerBranch(i *ir.Instruction) error {
	if !i.IsConditional() {
		l.jump(l.blocks[i.True])
		return nil
	}
	cond, err := l.operand(i.Ops[0])
	if err != nil {
		return err
	}
	t, f := l.blocks[i.True], l.blocks[i.False]
	l.emit(mir.NewInstruction(mir.OpBranch, cond, mir.BlockRef(t), mir.BlockRef(f)))
	l.cur.AddEdge(t)
	l.cur.AddEdge(f)
	return nil
}

// lowerSwitch builds a chain of equality tests, one synthesized block per
// case after the first.
func (l *lowering) lowerSwitch(i *ir.Instruction) error {
	origin := l.origin[l.cur]
	if len(i.Cases) == 0 {
		l.jump(l.blocks[i.Default])
		return nil
	}
	v, err := l.reg(i.Ops[0])
	if err != nil {
		return err
	}
	for k, c := range i.Cases {
		next := l.blocks[i.Default]
		if k < len(i.Cases)-1 {
			next = l.fn.NewBlock(fmt.Sprintf("%s.case%d", origin.Name(), k+1))
			l.origin[next] = origin
			l.extra[origin] = append(l.extra[origin], next)
		}
		cond := l.vreg(mir.Integer(1))
		dest := l.blocks[c.Block]
		l.emit(
			mir.NewCompare(mir.OpCmp, mir.CmpEqual, cond, v, mir.Imm(v.Type, c.Value.Value)),
			mir.NewInstruction(mir.OpBranch, cond, mir.BlockRef(dest), mir.BlockRef(next)),
		)
		l.cur.AddEdge(dest)
		l.cur.AddEdge(next)
		l.cur = next
	}
	return nil
}

// lowerPhis creates the phis of every block once all predecessor edges of
// the MIR graph exist. Inputs follow the MIR predecessor order.
func (l *lowering) lowerPhis() error {
	for _, b := range l.src.Blocks {
		phis := b.Phis()
		if len(phis) == 0 {
			continue
		}
		mb := l.blocks[b]
		var out []*mir.Instruction
		for _, phi := range phis {
			def, err := l.result(phi)
			if err != nil {
				return err
			}
			ops := []mir.Operand{def}
			for _, p := range mb.Preds {
				v, ok := phi.IncomingFor(l.origin[p])
				if !ok || v == nil {
					tlog.V("mirgen").Printw("undefined phi input", "func", l.src.Name(), "phi", phi.Name(), "pred", p.Name)
					ops = append(ops, mir.NoReg())
					continue
				}
				l.cur, l.beforeTerm = p, true
				o, err := l.operand(v)
				l.beforeTerm = false
				if err != nil {
					return err
				}
				ops = append(ops, o)
			}
			out = append(out, mir.NewInstruction(mir.OpPhi, ops...))
		}
		mb.Prepend(out...)
	}
	return nil
}
