package opt

import (
	"fmt"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/constfold"
	"github.com/orizon-lang/ancl/internal/domtree"
	"github.com/orizon-lang/ancl/internal/ir"
)

type dvnt struct {
	fn     *ir.Function
	tree   *domtree.Tree
	scopes []map[string]ir.Value
	number map[ir.Value]ir.Value

	removed int
	folded  int
}

// DVNT performs dominator-based value numbering on fn. Redundant binary,
// compare, cast and member instructions are replaced by the dominating
// equivalent, constant expressions are folded, phis merging a single value
// are removed and branches on constant conditions become jumps. It reports
// whether fn changed.
func DVNT(fn *ir.Function) bool {
	if fn.IsDeclaration() {
		return false
	}
	v := &dvnt{
		fn:     fn,
		tree:   domtree.New(fn),
		number: make(map[ir.Value]ir.Value),
	}
	changed := v.walk(fn.Entry())
	if removeUnreachable(fn) {
		changed = true
	}
	if v.collapsePhis() {
		changed = true
	}
	v.substitute()
	tlog.V("dvnt").Printw("value numbering", "func", fn.Name(), "removed", v.removed, "folded_branches", v.folded)
	return changed
}

func (v *dvnt) resolve(val ir.Value) ir.Value {
	for {
		n, ok := v.number[val]
		if !ok || n == val {
			return val
		}
		val = n
	}
}

func (v *dvnt) lookup(key string) (ir.Value, bool) {
	for n := len(v.scopes) - 1; n >= 0; n-- {
		if val, ok := v.scopes[n][key]; ok {
			return val, true
		}
	}
	return nil, false
}

// operandKey identifies a value for hashing. Constants are keyed by their
// literal so that equal constants number alike.
func operandKey(val ir.Value) string {
	switch c := val.(type) {
	case *ir.IntConstant:
		return fmt.Sprintf("$%s:%d", c.Type(), c.Value)
	case *ir.FloatConstant:
		return fmt.Sprintf("$%s:%s", c.Type(), c.Ref())
	}
	return fmt.Sprintf("%p", val)
}

func sameValue(a, b ir.Value) bool {
	if a == b {
		return true
	}
	if ir.IsConstant(a) && ir.IsConstant(b) {
		return operandKey(a) == operandKey(b)
	}
	return false
}

// expressionKey builds the canonical hash key of a reducible instruction.
func expressionKey(i *ir.Instruction) (string, bool) {
	switch i.Op {
	case ir.OpBinary:
		l, r := operandKey(i.Ops[0]), operandKey(i.Ops[1])
		if i.BinOp.IsCommutative() && l > r {
			l, r = r, l
		}
		return i.BinOp.String() + "|" + l + "|" + r, true
	case ir.OpCompare:
		l, r := operandKey(i.Ops[0]), operandKey(i.Ops[1])
		pred := i.Pred
		if l > r {
			if pred.IsEquality() {
				l, r = r, l
			} else if !pred.IsFloat() {
				l, r, pred = r, l, pred.Swapped()
			}
		}
		return pred.String() + "|" + l + "|" + r, true
	case ir.OpCast:
		return i.CastOp.String() + " " + i.Type().String() + "|" + operandKey(i.Ops[0]), true
	case ir.OpMember:
		op := "member"
		if i.Deref {
			op = "member deref"
		}
		return op + "|" + operandKey(i.Ops[0]) + "|" + operandKey(i.Ops[1]), true
	}
	return "", false
}

// uniqueIncoming returns the only value merged by phi, ignoring the phi
// itself.
func (v *dvnt) uniqueIncoming(phi *ir.Instruction) (ir.Value, bool) {
	var only ir.Value
	for _, arg := range phi.Incoming {
		if arg.Value == nil {
			return nil, false
		}
		val := v.resolve(arg.Value)
		if val == ir.Value(phi) {
			continue
		}
		if only == nil {
			only = val
			continue
		}
		if !sameValue(only, val) {
			return nil, false
		}
	}
	return only, only != nil
}

func (v *dvnt) walk(b *ir.BasicBlock) bool {
	changed := false
	v.scopes = append(v.scopes, make(map[string]ir.Value))

	for _, i := range append([]*ir.Instruction(nil), b.Instrs...) {
		if i.Op == ir.OpPhi {
			if only, ok := v.uniqueIncoming(i); ok {
				v.number[i] = only
				i.EraseFromParent()
				v.removed++
				changed = true
			}
			continue
		}

		for n, op := range i.Ops {
			i.Ops[n] = v.resolve(op)
		}

		if c, ok := constfold.Fold(i); ok {
			v.number[i] = c
			i.EraseFromParent()
			v.removed++
			changed = true
			continue
		}

		switch i.Op {
		case ir.OpCall:
			if callee, ok := i.Callee().(*ir.Function); ok && !callee.IsDeclaration() {
				if ret, ok := callee.ReturnValue(); ok && ir.IsConstant(ret) {
					v.number[i] = ret
				}
			}
		case ir.OpBranch:
			if v.foldBranch(b, i) {
				removeUnreachable(v.fn)
				changed = true
			}
		case ir.OpSwitch:
			if v.foldSwitch(b, i) {
				removeUnreachable(v.fn)
				changed = true
			}
		default:
			key, ok := expressionKey(i)
			if !ok {
				continue
			}
			if prev, found := v.lookup(key); found {
				v.number[i] = prev
				i.EraseFromParent()
				v.removed++
				changed = true
				continue
			}
			v.scopes[len(v.scopes)-1][key] = i
		}
	}

	for _, succ := range b.Successors() {
		for _, phi := range succ.Phis() {
			for n, arg := range phi.Incoming {
				if arg.Block == b && arg.Value != nil {
					phi.Incoming[n].Value = v.resolve(arg.Value)
				}
			}
		}
	}

	for _, c := range v.tree.Children(b) {
		if c.Parent != nil && v.walk(c) {
			changed = true
		}
	}

	v.scopes = v.scopes[:len(v.scopes)-1]
	return changed
}

// foldBranch turns a branch on a constant condition into a jump and drops
// the untaken edge.
func (v *dvnt) foldBranch(b *ir.BasicBlock, br *ir.Instruction) bool {
	if !br.IsConditional() {
		return false
	}
	c, ok := br.Ops[0].(*ir.IntConstant)
	if !ok {
		return false
	}
	taken, dead := br.True, br.False
	if c.Value == 0 {
		taken, dead = dead, taken
	}
	dead.RemovePred(b)
	br.MakeJump(taken)
	v.folded++
	return true
}

// foldSwitch turns a switch on a constant into a jump.
func (v *dvnt) foldSwitch(b *ir.BasicBlock, sw *ir.Instruction) bool {
	c, ok := sw.Ops[0].(*ir.IntConstant)
	if !ok {
		return false
	}
	taken := sw.Default
	for _, cs := range sw.Cases {
		if cs.Value.Value == c.Value {
			taken = cs.Block
			break
		}
	}
	removedTaken := false
	for _, s := range sw.Successors() {
		if s == taken && !removedTaken {
			removedTaken = true
			continue
		}
		s.RemovePred(b)
	}
	sw.MakeJump(taken)
	v.folded++
	return true
}

// collapsePhis removes phis left with a single incoming value once folded
// branches dropped their edges. Phis in blocks walked before the fold are
// only reached here.
func (v *dvnt) collapsePhis() bool {
	changed := false
	for again := true; again; {
		again = false
		for _, b := range v.fn.Blocks {
			for _, phi := range append([]*ir.Instruction(nil), b.Phis()...) {
				if only, ok := v.uniqueIncoming(phi); ok {
					v.number[phi] = only
					phi.EraseFromParent()
					v.removed++
					again, changed = true, true
				}
			}
		}
	}
	return changed
}

// substitute rewrites the remaining uses of numbered values everywhere,
// including blocks the dominator walk did not reach.
func (v *dvnt) substitute() {
	for _, b := range v.fn.Blocks {
		for _, i := range b.Instrs {
			for n, op := range i.Ops {
				i.Ops[n] = v.resolve(op)
			}
			for n := range i.Incoming {
				if i.Incoming[n].Value != nil {
					i.Incoming[n].Value = v.resolve(i.Incoming[n].Value)
				}
			}
		}
	}
}
