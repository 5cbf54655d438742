package irtext

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

var (
	binaryOps = map[string]ir.BinaryOp{}
	compares  = map[string]ir.ComparePred{}
	casts     = map[string]ir.CastOp{}
)

func init() {
	for op := ir.Mul; op <= ir.Or; op++ {
		binaryOps[op.String()] = op
	}
	for p := ir.ULess; p <= ir.FNotEqual; p++ {
		compares[p.String()] = p
	}
	for op := ir.ITrunc; op <= ir.Bitcast; op++ {
		casts[op.String()] = op
	}
}

type pendingPhi struct {
	phi  *ir.Instruction
	line int
}

// parseBody builds the blocks and instructions of fn from its body lines.
func (p *parser) parseBody(fn *ir.Function, lines []line) error {
	p.fn = fn
	p.bld = ir.NewBuilder(fn)
	p.locals = make(map[string]ir.Value)
	p.blocks = make(map[string]*ir.BasicBlock)
	p.forwards = make(map[string]*ir.Placeholder)
	defer func() { p.locals, p.blocks, p.forwards = nil, nil, nil }()

	for _, param := range fn.Params {
		p.locals[param.Name()] = param
	}

	for _, l := range lines {
		if name, ok := labelOf(l); ok {
			if _, dup := p.blocks[name]; dup {
				return p.errorf(l.num, "duplicate label %s", name)
			}
			p.blocks[name] = fn.NewBlock(name)
		}
	}
	if len(p.blocks) == 0 {
		return p.errorf(lines[0].num, "function @%s has no blocks", fn.Name())
	}

	var phis []pendingPhi
	for _, l := range lines {
		if name, ok := labelOf(l); ok {
			p.bld.SetInsertPoint(p.blocks[name])
			continue
		}
		if p.bld.Block() == nil {
			return p.errorf(l.num, "instruction before the first label")
		}
		c := &cursor{p: p, line: l}
		i, err := c.parseInstruction()
		if err != nil {
			return err
		}
		if i.Op == ir.OpPhi {
			phis = append(phis, pendingPhi{phi: i, line: l.num})
		}
	}

	for name, ph := range p.forwards {
		def, ok := p.locals[name]
		if !ok {
			return errors.Input("UNDEFINED_VALUE", "use of undefined value %"+name, map[string]interface{}{
				"file":     p.file,
				"function": fn.Name(),
			})
		}
		if !def.Type().Equal(ph.Type()) && !def.Type().IsPointer() {
			return errors.Input("TYPE_MISMATCH", "value %"+name+" used as "+ph.Type().String()+
				" but defined as "+def.Type().String(), map[string]interface{}{
				"file":     p.file,
				"function": fn.Name(),
			})
		}
		fn.ReplaceAllUsesWith(ph, def)
	}

	for _, pp := range phis {
		if err := p.orderIncoming(pp); err != nil {
			return err
		}
	}
	return nil
}

func labelOf(l line) (string, bool) {
	if len(l.toks) == 2 && l.toks[1].Kind == TokenPunct && l.toks[1].Text == ":" &&
		(l.toks[0].Kind == TokenIdent || l.toks[0].Kind == TokenNumber) {
		return l.toks[0].Text, true
	}
	return "", false
}

// orderIncoming sorts the arguments of a phi into predecessor order.
func (p *parser) orderIncoming(pp pendingPhi) error {
	phi := pp.phi
	blk := phi.Parent
	if len(phi.Incoming) != len(blk.Preds) {
		return p.errorf(pp.line, "phi %s has %d arguments for %d predecessors",
			phi.Ref(), len(phi.Incoming), len(blk.Preds))
	}
	used := make([]bool, len(phi.Incoming))
	ordered := make([]ir.PhiArg, 0, len(phi.Incoming))
	for _, pred := range blk.Preds {
		found := false
		for n, arg := range phi.Incoming {
			if !used[n] && arg.Block == pred {
				used[n] = true
				ordered = append(ordered, arg)
				found = true
				break
			}
		}
		if !found {
			return p.errorf(pp.line, "phi %s has no argument for predecessor %s", phi.Ref(), pred.Name())
		}
	}
	phi.Incoming = ordered
	return nil
}

func (c *cursor) define(name string, i *ir.Instruction) (*ir.Instruction, error) {
	if name == "" {
		return i, nil
	}
	if _, dup := c.p.locals[name]; dup {
		return nil, c.errorf("redefinition of %%%s", name)
	}
	c.p.locals[name] = i
	return i, nil
}

func (c *cursor) parseInstruction() (*ir.Instruction, error) {
	name := ""
	if t := c.peek(); t.Kind == TokenLocal {
		c.next()
		name = t.Text
		if err := c.expect("="); err != nil {
			return nil, err
		}
	}
	i, err := c.parseOperation(name)
	if err != nil {
		return nil, err
	}
	if err := c.done(); err != nil {
		return nil, err
	}
	if name != "" && !i.HasResult() {
		return nil, c.errorf("%s does not produce a value", i.Op)
	}
	if name == "" && i.HasResult() {
		return nil, c.errorf("%s result must be named", i.Op)
	}
	return c.define(name, i)
}

func (c *cursor) parseOperation(name string) (*ir.Instruction, error) {
	bld := c.p.bld
	op, err := c.expectKind(TokenIdent)
	if err != nil {
		return nil, err
	}

	if pred, ok := compares[op.Text+" "+c.peek().Text]; ok && (op.Text == "icmp" || op.Text == "fcmp") {
		c.next()
		t, err := c.parseType()
		if err != nil {
			return nil, err
		}
		l, r, err := c.parsePair(t)
		if err != nil {
			return nil, err
		}
		return bld.Compare(pred, l, r, name), nil
	}
	if bop, ok := binaryOps[op.Text]; ok {
		t, err := c.parseType()
		if err != nil {
			return nil, err
		}
		l, r, err := c.parsePair(t)
		if err != nil {
			return nil, err
		}
		return bld.Binary(bop, l, r, name), nil
	}
	if cop, ok := casts[op.Text]; ok {
		v, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect("to"); err != nil {
			return nil, err
		}
		to, err := c.parseType()
		if err != nil {
			return nil, err
		}
		return bld.Cast(cop, v, to, name), nil
	}

	switch op.Text {
	case "alloca":
		t, err := c.parseType()
		if err != nil {
			return nil, err
		}
		return bld.Alloca(t, name), nil

	case "load":
		volatile := c.accept("volatile")
		if _, err := c.parseType(); err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		ptr, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if !ptr.Type().IsPointer() {
			return nil, c.errorf("load from non-pointer %s", ptr.Type())
		}
		if volatile {
			return bld.LoadVolatile(ptr, name), nil
		}
		return bld.Load(ptr, name), nil

	case "store":
		volatile := c.accept("volatile")
		v, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		ptr, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if volatile {
			return bld.StoreVolatile(v, ptr), nil
		}
		return bld.Store(v, ptr), nil

	case "member":
		deref := c.accept("deref")
		ptr, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		idx, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if !ptr.Type().IsPointer() {
			return nil, c.errorf("member of non-pointer %s", ptr.Type())
		}
		if deref && ptr.Type().Elem.IsStruct() {
			k, ok := idx.(*ir.IntConstant)
			if !ok || k.Value < 0 || int(k.Value) >= len(ptr.Type().Elem.Fields) {
				return nil, c.errorf("invalid field index %s", idx.Ref())
			}
		}
		return bld.Member(ptr, idx, deref, name), nil

	case "call":
		return c.parseCall(name)

	case "memcpy":
		dst, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		src, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		size, err := c.parseInt()
		if err != nil {
			return nil, err
		}
		return bld.MemCopy(dst, src, size), nil

	case "memset":
		dst, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		fill, err := c.parseInt()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		size, err := c.parseInt()
		if err != nil {
			return nil, err
		}
		return bld.MemSet(dst, uint8(fill), size), nil

	case "phi":
		return c.parsePhi(name)

	case "br":
		if c.is("label") {
			target, err := c.parseBlockRef()
			if err != nil {
				return nil, err
			}
			return bld.Br(target), nil
		}
		cond, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		t, err := c.parseBlockRef()
		if err != nil {
			return nil, err
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		f, err := c.parseBlockRef()
		if err != nil {
			return nil, err
		}
		return bld.CondBr(cond, t, f), nil

	case "ret":
		if c.accept("void") {
			return bld.Ret(nil), nil
		}
		v, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		return bld.Ret(v), nil

	case "switch":
		return c.parseSwitch()
	}
	return nil, c.errorf("unknown instruction %s", op.Text)
}

func (c *cursor) parsePair(t *ir.Type) (ir.Value, ir.Value, error) {
	l, err := c.parseValue(t)
	if err != nil {
		return nil, nil, err
	}
	if err := c.expect(","); err != nil {
		return nil, nil, err
	}
	r, err := c.parseValue(t)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (c *cursor) parseCall(name string) (*ir.Instruction, error) {
	ret, err := c.parseType()
	if err != nil {
		return nil, err
	}
	calleeTok := c.peek()
	var callee ir.Value
	if calleeTok.Kind == TokenGlobal {
		c.next()
		fn, ok := c.p.globals[calleeTok.Text].(*ir.Function)
		if !ok {
			return nil, c.errorf("call of non-function @%s", calleeTok.Text)
		}
		callee = fn
	}
	start := c.pos
	if callee == nil {
		// Indirect call: the callee type is recovered from the arguments.
		c.next()
	}
	if err := c.expect("("); err != nil {
		return nil, err
	}
	var args []ir.Value
	for !c.accept(")") {
		if len(args) > 0 {
			if err := c.expect(","); err != nil {
				return nil, err
			}
		}
		v, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if callee == nil {
		params := make([]*ir.Type, len(args))
		for n, a := range args {
			params[n] = a.Type()
		}
		end := c.pos
		c.pos = start
		v, err := c.parseValue(ir.PointerTo(ir.FunctionOf(ret, params, false)))
		if err != nil {
			return nil, err
		}
		c.pos = end
		callee = v
	}
	return c.p.bld.Call(callee, args, name), nil
}

func (c *cursor) parsePhi(name string) (*ir.Instruction, error) {
	t, err := c.parseType()
	if err != nil {
		return nil, err
	}
	blk := c.p.bld.Block()
	if len(blk.Phis()) != len(blk.Instrs) {
		return nil, c.errorf("phi after a non-phi instruction")
	}
	phi := ir.NewPhi(blk, t, name)
	phi.Incoming = nil
	for {
		if err := c.expect("["); err != nil {
			return nil, err
		}
		var v ir.Value
		if !c.accept("undef") {
			if v, err = c.parseValue(t); err != nil {
				return nil, err
			}
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		tok, err := c.expectKind(TokenLocal)
		if err != nil {
			return nil, err
		}
		pred, ok := c.p.blocks[tok.Text]
		if !ok {
			return nil, c.errorf("undefined block %%%s", tok.Text)
		}
		if err := c.expect("]"); err != nil {
			return nil, err
		}
		phi.Incoming = append(phi.Incoming, ir.PhiArg{Block: pred, Value: v})
		if !c.accept(",") {
			return phi, nil
		}
	}
}

func (c *cursor) parseSwitch() (*ir.Instruction, error) {
	v, err := c.parseTypedValue()
	if err != nil {
		return nil, err
	}
	if err := c.expect(","); err != nil {
		return nil, err
	}
	def, err := c.parseBlockRef()
	if err != nil {
		return nil, err
	}
	if err := c.expect("["); err != nil {
		return nil, err
	}
	var cases []ir.SwitchCase
	for !c.accept("]") {
		cv, err := c.parseTypedValue()
		if err != nil {
			return nil, err
		}
		k, ok := cv.(*ir.IntConstant)
		if !ok {
			return nil, c.errorf("switch case %s is not an integer constant", cv.Ref())
		}
		if err := c.expect(","); err != nil {
			return nil, err
		}
		target, err := c.parseBlockRef()
		if err != nil {
			return nil, err
		}
		cases = append(cases, ir.SwitchCase{Value: k, Block: target})
	}
	return c.p.bld.Switch(v, def, cases...), nil
}
